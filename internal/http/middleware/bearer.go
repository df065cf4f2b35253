package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireBearer rejects requests whose Authorization header is not
// "Bearer <secret>". An empty secret rejects everything.
func RequireBearer(secret string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + strings.TrimSpace(secret))
	configured := strings.TrimSpace(secret) != ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if !configured || subtle.ConstantTimeCompare(got, want) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
