package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process queue for local runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items []*Item
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) FetchPending(ctx context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]Item, 0, limit)
	for _, it := range s.items {
		if it.Status != StatusPending {
			continue
		}
		out = append(out, *it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.find(id)
	if it == nil || it.Status != StatusPending {
		return false, nil
	}
	it.Status = StatusProcessing
	it.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, id string) error {
	return s.settle(id, StatusCompleted, "")
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.settle(id, StatusFailed, truncateReason(reason))
}

func (s *MemoryStore) settle(id string, status Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.find(id)
	if it == nil || it.Status != StatusProcessing {
		return ErrNotFound
	}
	it.Status = status
	it.Error = reason
	it.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Enqueue(ctx context.Context, tenantID string, payload json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	it := &Item{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Payload:   append(json.RawMessage(nil), payload...),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items = append(s.items, it)
	return it.ID, nil
}

// Get returns a copy of an item.
func (s *MemoryStore) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.find(id)
	if it == nil {
		return Item{}, false
	}
	return *it, true
}

func (s *MemoryStore) find(id string) *Item {
	for _, it := range s.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}
