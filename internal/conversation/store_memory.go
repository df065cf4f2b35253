package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

// MemoryStore keeps conversations in process. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   settings
	convs map[string]*Conversation
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{cfg: cfg, convs: make(map[string]*Conversation)}
}

func (s *MemoryStore) GetActive(ctx context.Context, tenantID, customerID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.activeLocked(tenantID, customerID)), nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, tenantID, customerID string, in intent.Intent) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.activeLocked(tenantID, customerID); c != nil {
		return clone(c), nil
	}
	now := s.cfg.now()
	c := &Conversation{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		CustomerID:    customerID,
		Intent:        in,
		State:         newState(),
		History:       []llm.Turn{},
		LastMessageAt: now,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.ttl),
	}
	s.convs[c.ID] = c
	return clone(c), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, state BookingState, history []llm.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	now := s.cfg.now()
	c.State = state
	c.History = append([]llm.Turn(nil), CapHistory(history, s.cfg.maxTurns)...)
	c.LastMessageAt = now
	c.ExpiresAt = now.Add(s.cfg.ttl)
	return nil
}

func (s *MemoryStore) activeLocked(tenantID, customerID string) *Conversation {
	now := s.cfg.now()
	var best *Conversation
	for _, c := range s.convs {
		if c.TenantID != tenantID || c.CustomerID != customerID || !c.Active(now) {
			continue
		}
		if best == nil || c.LastMessageAt.After(best.LastMessageAt) {
			best = c
		}
	}
	return best
}

func clone(c *Conversation) *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.History = append([]llm.Turn(nil), c.History...)
	return &out
}
