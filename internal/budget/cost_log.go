package budget

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wolfman30/booking-agent/internal/intent"
)

// CostLog is one committed charge.
type CostLog struct {
	TenantID  string
	AmountUSD float64
	Model     string
	Tier      intent.Tier
	TokensIn  int
	TokensOut int
	Label     string
}

// CostRecorder persists committed charges.
type CostRecorder interface {
	Record(ctx context.Context, entry CostLog) error
}

// SQLCostRecorder writes cost_logs rows through database/sql.
type SQLCostRecorder struct {
	db *sql.DB
}

func NewSQLCostRecorder(db *sql.DB) *SQLCostRecorder {
	if db == nil {
		panic("budget: sql db cannot be nil")
	}
	return &SQLCostRecorder{db: db}
}

func (r *SQLCostRecorder) Record(ctx context.Context, entry CostLog) error {
	query := `
		INSERT INTO cost_logs (business_id, amount_usd, model_used, tier, tokens_in, tokens_out, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.TenantID,
		entry.AmountUSD,
		entry.Model,
		string(entry.Tier),
		entry.TokensIn,
		entry.TokensOut,
		entry.Label,
	)
	if err != nil {
		return fmt.Errorf("budget: insert cost log: %w", err)
	}
	return nil
}
