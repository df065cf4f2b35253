package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// ErrNotFound is returned when no matching appointment exists.
var ErrNotFound = errors.New("bookings: appointment not found")

// Appointment is a confirmed booking written after a successful calendar insert.
type Appointment struct {
	ID              string
	TenantID        string
	CustomerChatID  string
	CustomerName    string
	CustomerPhone   string
	ServiceType     string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	DurationMinutes int
	ExternalEventID string
	Status          string
	CreatedAt       time.Time
}

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	// NextUpcoming returns the earliest confirmed appointment on or after
	// from, or ErrNotFound.
	NextUpcoming(ctx context.Context, tenantID, customerChatID string, from time.Time) (*Appointment, error)
	// Cancel marks the customer's confirmed appointment with eventID as
	// cancelled and returns it, or ErrNotFound.
	Cancel(ctx context.Context, tenantID, customerChatID, eventID string) (*Appointment, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository stores appointments in Postgres.
type PGRepository struct {
	db querier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PGRepository{db: pool}
}

func newRepositoryWithQuerier(q querier) *PGRepository {
	if q == nil {
		panic("bookings: querier required")
	}
	return &PGRepository{db: q}
}

func (r *PGRepository) Create(ctx context.Context, appt *Appointment) error {
	date, err := toPGDate(appt.Date)
	if err != nil {
		return err
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = StatusConfirmed
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO appointments (
			id, business_id, customer_chat_id, customer_name, customer_phone, service_type,
			appointment_date, appointment_time, duration_minutes, google_event_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Exec(ctx, query,
		appt.ID, appt.TenantID, appt.CustomerChatID, appt.CustomerName, appt.CustomerPhone, appt.ServiceType,
		date, appt.Time, appt.DurationMinutes, appt.ExternalEventID, appt.Status, toPGTime(appt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return nil
}

const appointmentColumns = `id, business_id, customer_chat_id, customer_name, customer_phone, service_type,
			appointment_date, appointment_time, duration_minutes, google_event_id, status, created_at`

func (r *PGRepository) NextUpcoming(ctx context.Context, tenantID, customerChatID string, from time.Time) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1 AND customer_chat_id = $2 AND status = 'confirmed' AND appointment_date >= $3
		ORDER BY appointment_date ASC, appointment_time ASC
		LIMIT 1
	`
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, tenantID, customerChatID, pgtype.Date{Time: from, Valid: true}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: next upcoming: %w", err)
	}
	return appt, nil
}

func (r *PGRepository) Cancel(ctx context.Context, tenantID, customerChatID, eventID string) (*Appointment, error) {
	query := `
		UPDATE appointments SET status = 'cancelled'
		WHERE business_id = $1 AND customer_chat_id = $2 AND google_event_id = $3 AND status = 'confirmed'
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, tenantID, customerChatID, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: cancel appointment: %w", err)
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt    Appointment
		date    pgtype.Date
		created pgtype.Timestamptz
	)
	err := row.Scan(
		&appt.ID, &appt.TenantID, &appt.CustomerChatID, &appt.CustomerName, &appt.CustomerPhone, &appt.ServiceType,
		&date, &appt.Time, &appt.DurationMinutes, &appt.ExternalEventID, &appt.Status, &created,
	)
	if err != nil {
		return nil, err
	}
	if date.Valid {
		appt.Date = date.Time.Format("2006-01-02")
	}
	if created.Valid {
		appt.CreatedAt = created.Time
	}
	return &appt, nil
}

func toPGDate(date string) (pgtype.Date, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return pgtype.Date{}, fmt.Errorf("bookings: invalid date %q: %w", date, err)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t,
		Valid: true,
	}
}
