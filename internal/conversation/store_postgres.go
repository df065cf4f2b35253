package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists conversations in Postgres with JSONB state and history.
type PGStore struct {
	db  rowQuerier
	cfg settings
}

func NewPGStore(pool *pgxpool.Pool, opts ...Option) *PGStore {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return newPGStoreWithExec(pool, opts...)
}

func newPGStoreWithExec(db rowQuerier, opts ...Option) *PGStore {
	if db == nil {
		panic("conversation: exec cannot be nil")
	}
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PGStore{db: db, cfg: cfg}
}

const selectActiveSQL = `
	SELECT id, business_id, customer_chat_id, intent, state, history, last_message_at, created_at, expires_at
	FROM conversations
	WHERE business_id = $1 AND customer_chat_id = $2 AND expires_at > $3
	ORDER BY last_message_at DESC
	LIMIT 1
`

func (s *PGStore) GetActive(ctx context.Context, tenantID, customerID string) (*Conversation, error) {
	var (
		c              Conversation
		in             string
		state, history []byte
	)
	err := s.db.QueryRow(ctx, selectActiveSQL, tenantID, customerID, s.cfg.now()).Scan(
		&c.ID, &c.TenantID, &c.CustomerID, &in, &state, &history,
		&c.LastMessageAt, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: get active: %w", err)
	}
	c.Intent = intent.Intent(in)
	if err := decodeState(state, &c.State); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.History); err != nil {
			return nil, fmt.Errorf("conversation: decode history: %w", err)
		}
	}
	if c.History == nil {
		c.History = []llm.Turn{}
	}
	return &c, nil
}

func (s *PGStore) GetOrCreate(ctx context.Context, tenantID, customerID string, in intent.Intent) (*Conversation, error) {
	existing, err := s.GetActive(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.cfg.now()
	c := &Conversation{
		TenantID:      tenantID,
		CustomerID:    customerID,
		Intent:        in,
		State:         newState(),
		History:       []llm.Turn{},
		LastMessageAt: now,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.ttl),
	}
	state, err := json.Marshal(c.State)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode state: %w", err)
	}
	query := `
		INSERT INTO conversations (business_id, customer_chat_id, intent, state, history, last_message_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $5, $6)
		RETURNING id
	`
	if err := s.db.QueryRow(ctx, query, tenantID, customerID, string(in), state, now, c.ExpiresAt).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	return c, nil
}

func (s *PGStore) Update(ctx context.Context, id string, state BookingState, history []llm.Turn) error {
	if state.Version == 0 {
		state.Version = StateVersion
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("conversation: encode state: %w", err)
	}
	capped := CapHistory(history, s.cfg.maxTurns)
	if capped == nil {
		capped = []llm.Turn{}
	}
	historyJSON, err := json.Marshal(capped)
	if err != nil {
		return fmt.Errorf("conversation: encode history: %w", err)
	}

	now := s.cfg.now()
	query := `
		UPDATE conversations
		SET state = $2, history = $3, last_message_at = $4, expires_at = $5
		WHERE id = $1
	`
	ct, err := s.db.Exec(ctx, query, id, stateJSON, historyJSON, now, now.Add(s.cfg.ttl))
	if err != nil {
		return fmt.Errorf("conversation: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeState(raw []byte, dst *BookingState) error {
	*dst = newState()
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("conversation: decode state: %w", err)
	}
	if dst.Version == 0 {
		dst.Version = StateVersion
	}
	return nil
}

var (
	_ Store = (*PGStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

