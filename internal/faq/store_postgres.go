package faq

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExec interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps FAQ documents in faq_documents with a pgvector column and
// searches them with the match_faqs SQL function.
type PGStore struct {
	db pgExec
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("faq: pgx pool cannot be nil")
	}
	return &PGStore{db: pool}
}

func newPGStoreWithExec(db pgExec) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Search(ctx context.Context, tenantID string, embedding []float32, threshold float64, limit int) ([]Match, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, question, answer, similarity
		FROM match_faqs($1::vector, $2, $3, $4)
	`, vectorLiteral(embedding), threshold, limit, tenantID)
	if err != nil {
		return nil, fmt.Errorf("faq: match_faqs: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Question, &m.Answer, &m.Similarity); err != nil {
			return nil, fmt.Errorf("faq: scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faq: iterate matches: %w", err)
	}
	return out, nil
}

// Insert stores a document with its embedding and returns its id.
func (s *PGStore) Insert(ctx context.Context, doc Document, embedding []float32) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO faq_documents (business_id, question, answer, embedding)
		VALUES ($1, $2, $3, $4::vector)
		RETURNING id
	`, doc.TenantID, doc.Question, doc.Answer, vectorLiteral(embedding)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("faq: insert document: %w", err)
	}
	return id, nil
}

// vectorLiteral renders the pgvector text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
