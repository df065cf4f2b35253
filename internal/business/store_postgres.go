package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads businesses from Postgres.
type PGStore struct {
	db rowQuerier
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("business: pgx pool cannot be nil")
	}
	return &PGStore{db: pool}
}

func newPGStoreWithExec(db rowQuerier) *PGStore {
	if db == nil {
		panic("business: exec cannot be nil")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, id string) (*Business, error) {
	query := `
		SELECT id, name, timezone, open_hour, close_hour, COALESCE(notify_email, '')
		FROM businesses
		WHERE id = $1
	`
	var b Business
	err := s.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.Timezone, &b.OpenHour, &b.CloseHour, &b.NotifyEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("business: get %s: %w", id, err)
	}
	return &b, nil
}

func (s *PGStore) CalendarCredentials(ctx context.Context, id string) (CalendarCredentials, error) {
	query := `SELECT COALESCE(calendar_id, 'primary'), google_calendar_token FROM businesses WHERE id = $1`
	var (
		creds CalendarCredentials
		raw   []byte
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&creds.CalendarID, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CalendarCredentials{}, ErrNotFound
		}
		return CalendarCredentials{}, fmt.Errorf("business: calendar credentials %s: %w", id, err)
	}
	if len(raw) == 0 {
		return CalendarCredentials{}, ErrNoCalendar
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return CalendarCredentials{}, fmt.Errorf("business: decode calendar token: %w", err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return CalendarCredentials{}, ErrNoCalendar
	}
	creds.Token = &tok
	return creds, nil
}
