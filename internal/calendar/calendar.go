// Package calendar talks to a tenant's external calendar and computes
// bookable slots from its free/busy data.
package calendar

import (
	"context"
	"time"
)

// Interval is a busy period.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Event is an appointment to write to the calendar.
type Event struct {
	Summary         string
	Description     string
	Start           time.Time
	End             time.Time
	TimeZone        string
	ReminderMinutes []int64
}

// Client is the external calendar service.
type Client interface {
	BusyIntervals(ctx context.Context, tenantID string, from, to time.Time) ([]Interval, error)
	InsertEvent(ctx context.Context, tenantID string, ev Event) (string, error)
	DeleteEvent(ctx context.Context, tenantID, eventID string) error
}

// Hours are the daily opening hours of a tenant in its own timezone.
type Hours struct {
	Open     int // hour of day, inclusive
	Close    int // hour of day, exclusive
	Location *time.Location
}

// DefaultHours is 08:00 to 18:00.
func DefaultHours(loc *time.Location) Hours {
	if loc == nil {
		loc = time.UTC
	}
	return Hours{Open: 8, Close: 18, Location: loc}
}

// Day returns the opening and closing instants of date (YYYY-MM-DD).
func (h Hours) Day(date string) (time.Time, time.Time, error) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), h.Open, 0, 0, 0, loc)
	closing := time.Date(day.Year(), day.Month(), day.Day(), h.Close, 0, 0, 0, loc)
	return open, closing, nil
}

// Slots lists the start times (HH:MM) of width-long slots between open and
// close that overlap no busy interval and do not start before notBefore.
func Slots(open, closing time.Time, width time.Duration, busy []Interval, notBefore time.Time) []string {
	if width <= 0 {
		width = time.Hour
	}
	slots := []string{}
	for start := open; !start.Add(width).After(closing); start = start.Add(width) {
		end := start.Add(width)
		if !notBefore.IsZero() && start.Before(notBefore) {
			continue
		}
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, start.Format("15:04"))
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}
