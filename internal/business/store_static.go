package business

import (
	"context"
	"sync"
)

// StaticStore serves tenants registered in process. Local runs use it with
// the default tenant and no calendar grant.
type StaticStore struct {
	mu    sync.RWMutex
	items map[string]Business
	creds map[string]CalendarCredentials
}

var _ Store = (*StaticStore)(nil)

func NewStaticStore(businesses ...Business) *StaticStore {
	s := &StaticStore{
		items: make(map[string]Business, len(businesses)),
		creds: make(map[string]CalendarCredentials),
	}
	for _, b := range businesses {
		s.items[b.ID] = b
	}
	return s
}

// Put registers or replaces a tenant and, when creds carries a token, its
// calendar grant.
func (s *StaticStore) Put(b Business, creds CalendarCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.ID] = b
	if creds.Token != nil {
		s.creds[b.ID] = creds
	}
}

func (s *StaticStore) Get(ctx context.Context, id string) (*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *StaticStore) CalendarCredentials(ctx context.Context, id string) (CalendarCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.items[id]; !ok {
		return CalendarCredentials{}, ErrNotFound
	}
	c, ok := s.creds[id]
	if !ok {
		return CalendarCredentials{}, ErrNoCalendar
	}
	return c, nil
}
