package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process.
type MemoryRepository struct {
	mu    sync.Mutex
	appts []Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = StatusConfirmed
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	r.appts = append(r.appts, *appt)
	return nil
}

func (r *MemoryRepository) NextUpcoming(ctx context.Context, tenantID, customerChatID string, from time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := from.Format("2006-01-02")
	var matches []Appointment
	for _, a := range r.appts {
		if a.TenantID == tenantID && a.CustomerChatID == customerChatID && a.Status == StatusConfirmed && a.Date >= day {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Date != matches[j].Date {
			return matches[i].Date < matches[j].Date
		}
		return matches[i].Time < matches[j].Time
	})
	out := matches[0]
	return &out, nil
}

func (r *MemoryRepository) Cancel(ctx context.Context, tenantID, customerChatID, eventID string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.appts {
		a := &r.appts[i]
		if a.TenantID == tenantID && a.CustomerChatID == customerChatID && a.ExternalEventID == eventID && a.Status == StatusConfirmed {
			a.Status = StatusCancelled
			out := *a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// All returns a copy of every stored appointment.
func (r *MemoryRepository) All() []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Appointment(nil), r.appts...)
}
