package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process calendar for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	seq    int
	events map[string]map[string]Event
}

func NewMemory() *Memory {
	return &Memory{events: make(map[string]map[string]Event)}
}

func (m *Memory) BusyIntervals(ctx context.Context, tenantID string, from, to time.Time) ([]Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	busy := []Interval{}
	for _, ev := range m.events[tenantID] {
		if ev.Start.Before(to) && ev.End.After(from) {
			busy = append(busy, Interval{Start: ev.Start, End: ev.End})
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (m *Memory) InsertEvent(ctx context.Context, tenantID string, ev Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("evt-%d", m.seq)
	if m.events[tenantID] == nil {
		m.events[tenantID] = make(map[string]Event)
	}
	m.events[tenantID][id] = ev
	return id, nil
}

func (m *Memory) DeleteEvent(ctx context.Context, tenantID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events[tenantID], eventID)
	return nil
}

// Events returns the events of a tenant keyed by id.
func (m *Memory) Events(tenantID string) map[string]Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Event, len(m.events[tenantID]))
	for id, ev := range m.events[tenantID] {
		out[id] = ev
	}
	return out
}
