package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

const (
	// DefaultTTL is the sliding idle window of a conversation.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxTurns caps stored history.
	DefaultMaxTurns = 40
	// StateVersion is the schema version of BookingState.
	StateVersion = 1
)

// ErrNotFound is returned when updating a conversation that does not exist.
var ErrNotFound = errors.New("conversation: not found")

// BookingState is the structured state of a booking conversation.
type BookingState struct {
	Version         int    `json:"version"`
	Service         string `json:"service,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	LastDateChecked string `json:"last_date_checked,omitempty"`
	Booked          bool   `json:"booked"`
	EventID         string `json:"event_id,omitempty"`
	AppointmentDate string `json:"appointment_date,omitempty"`
	AppointmentTime string `json:"appointment_time,omitempty"`
}

// Conversation is the multi-turn state of one customer with one tenant.
type Conversation struct {
	ID            string
	TenantID      string
	CustomerID    string
	Intent        intent.Intent
	State         BookingState
	History       []llm.Turn
	LastMessageAt time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Active reports whether the conversation has not yet expired at now.
func (c *Conversation) Active(now time.Time) bool {
	return c != nil && c.ExpiresAt.After(now)
}

// Store persists conversations keyed by tenant and customer.
//
// Updates to the same conversation are not serialized here; callers process
// one message per customer at a time.
type Store interface {
	// GetActive returns the newest non-expired conversation, or nil.
	GetActive(ctx context.Context, tenantID, customerID string) (*Conversation, error)
	// GetOrCreate returns the active conversation or starts an empty one.
	GetOrCreate(ctx context.Context, tenantID, customerID string, in intent.Intent) (*Conversation, error)
	// Update replaces state and history and slides expiry to now + TTL.
	Update(ctx context.Context, id string, state BookingState, history []llm.Turn) error
}

// Option configures a store.
type Option func(*settings)

type settings struct {
	ttl      time.Duration
	maxTurns int
	now      func() time.Time
}

func defaultSettings() settings {
	return settings{
		ttl:      DefaultTTL,
		maxTurns: DefaultMaxTurns,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithTTL sets the sliding expiry window.
func WithTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxTurns caps the stored history length.
func WithMaxTurns(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// CapHistory keeps at most limit turns. Older turns are dropped up to the next
// plain user turn so a tool result never loses the call that produced it.
func CapHistory(history []llm.Turn, limit int) []llm.Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	for start := len(history) - limit; start < len(history); start++ {
		if history[start].Role == llm.RoleUser {
			out := make([]llm.Turn, len(history)-start)
			copy(out, history[start:])
			return out
		}
	}
	return []llm.Turn{}
}

func newState() BookingState {
	return BookingState{Version: StateVersion}
}
