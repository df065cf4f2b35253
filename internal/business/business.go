// Package business loads per-tenant settings: opening hours, timezone,
// calendar credentials and escalation contacts.
package business

import (
	"context"
	"errors"
	"strings"
	"time"
	_ "time/tzdata" // tenant zones must resolve on minimal images

	"golang.org/x/oauth2"
)

var (
	// ErrNotFound is returned for an unknown tenant.
	ErrNotFound = errors.New("business: not found")
	// ErrNoCalendar is returned when a tenant never connected a calendar.
	ErrNoCalendar = errors.New("business: calendar not connected")
)

// Business is one tenant.
type Business struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Timezone    string `json:"timezone"`
	OpenHour    int    `json:"open_hour"`
	CloseHour   int    `json:"close_hour"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// Location resolves the tenant timezone, falling back to fallback and then UTC.
func (b *Business) Location(fallback string) *time.Location {
	for _, name := range []string{b.Timezone, fallback} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// CalendarCredentials is the stored OAuth grant for a tenant's calendar.
type CalendarCredentials struct {
	CalendarID string
	Token      *oauth2.Token
}

// Store reads tenant settings.
type Store interface {
	Get(ctx context.Context, id string) (*Business, error)
	CalendarCredentials(ctx context.Context, id string) (CalendarCredentials, error)
}
