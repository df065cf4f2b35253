package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the request_queue table.
type PGStore struct {
	db pgExec
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("queue: pgx pool cannot be nil")
	}
	return &PGStore{db: pool}
}

func newPGStoreWithExec(db pgExec) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FetchPending(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, raw_payload, status, COALESCE(error, ''), created_at, updated_at
		FROM request_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: fetch pending: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it     Item
			status string
		)
		if err := rows.Scan(&it.ID, &it.TenantID, &it.Payload, &status, &it.Error, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("queue: scan item: %w", err)
		}
		it.Status = Status(status)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate items: %w", err)
	}
	return items, nil
}

func (s *PGStore) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE request_queue SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("queue: claim %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) MarkCompleted(ctx context.Context, id string) error {
	return s.settle(ctx, id, StatusCompleted, "")
}

func (s *PGStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.settle(ctx, id, StatusFailed, truncateReason(reason))
}

func (s *PGStore) settle(ctx context.Context, id string, status Status, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE request_queue SET status = $2, error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("queue: mark %s %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Enqueue(ctx context.Context, tenantID string, payload json.RawMessage) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO request_queue (business_id, raw_payload, status)
		VALUES ($1, $2, 'pending')
		RETURNING id
	`, tenantID, []byte(payload)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return id, nil
}
