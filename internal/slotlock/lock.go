// Package slotlock provides a short-lived Redis mutex over a calendar slot.
// There is no fencing or ownership check: the lock is released explicitly
// only by the caller that acquired it after a failed write, otherwise it
// expires.
package slotlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block a slot.
const DefaultTTL = 300 * time.Second

// Key identifies a bookable slot of a tenant.
type Key struct {
	TenantID string
	Date     string // YYYY-MM-DD
	Time     string // HH:MM
}

func (k Key) String() string {
	return fmt.Sprintf("slot:%s:%s:%s", k.TenantID, k.Date, k.Time)
}

// Locker acquires and inspects slot locks.
type Locker struct {
	redis   *redis.Client
	timeout time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithTimeout bounds each Redis round-trip.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func New(client *redis.Client, opts ...Option) *Locker {
	if client == nil {
		panic("slotlock: redis client cannot be nil")
	}
	l := &Locker{redis: client, timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire sets the key if absent with the given TTL. It reports whether this
// caller now holds the lock.
func (l *Locker) Acquire(ctx context.Context, key Key, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ok, err := l.redis.SetNX(ctx, key.String(), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("slotlock: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Exists reports whether the slot is currently locked.
func (l *Locker) Exists(ctx context.Context, key Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	n, err := l.redis.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("slotlock: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Release deletes the lock regardless of holder.
func (l *Locker) Release(ctx context.Context, key Key) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.redis.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("slotlock: release %s: %w", key, err)
	}
	return nil
}
