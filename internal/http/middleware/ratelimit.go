package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEviction drops limiters of sources that stayed quiet this long.
const idleEviction = 10 * time.Minute

// RateLimiter keeps one token bucket per source address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*sourceLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per source with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*sourceLimiter),
		limit:    rate.Limit(perSecond),
		burst:    max(burst, 1),
		now:      time.Now,
	}
}

// Allow reports whether source may proceed now. It also evicts idle sources.
func (rl *RateLimiter) Allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, s := range rl.limiters {
		if now.Sub(s.lastSeen) > idleEviction {
			delete(rl.limiters, key)
		}
	}
	s, ok := rl.limiters[source]
	if !ok {
		s = &sourceLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[source] = s
	}
	s.lastSeen = now
	return s.limiter.AllowN(now, 1)
}

// RateLimit rejects requests over the per-source rate with 429. Chi's RealIP
// middleware should run first so proxies do not share one bucket.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst)
	retryAfter := "1"
	if perSecond > 0 && perSecond < 1 {
		retryAfter = strconv.Itoa(int(1/perSecond + 0.5))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(sourceOf(r)) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sourceOf(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
