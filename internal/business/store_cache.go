package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

// CachedStore serves settings from Redis and falls back to the inner store.
// Calendar credentials are never cached.
type CachedStore struct {
	inner  Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if inner == nil {
		panic("business: inner store cannot be nil")
	}
	if client == nil {
		panic("business: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func (s *CachedStore) key(id string) string {
	return fmt.Sprintf("business:%s", id)
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Business, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	switch {
	case err == nil:
		var b Business
		if jsonErr := json.Unmarshal(data, &b); jsonErr == nil {
			return &b, nil
		}
		s.logger.Warn("discarding corrupt business cache entry", "tenant_id", id)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("business cache read failed", "tenant_id", id, "error", err)
	}

	b, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(b); err == nil {
		if err := s.redis.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
			s.logger.Warn("business cache write failed", "tenant_id", id, "error", err)
		}
	}
	return b, nil
}

func (s *CachedStore) CalendarCredentials(ctx context.Context, id string) (CalendarCredentials, error) {
	return s.inner.CalendarCredentials(ctx, id)
}

// Invalidate drops the cached settings of a tenant.
func (s *CachedStore) Invalidate(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("business: invalidate cache: %w", err)
	}
	return nil
}
