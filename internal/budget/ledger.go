package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoLedger is returned when a tenant has no budget row.
var ErrNoLedger = errors.New("budget: no ledger for tenant")

// Ledger is the per-tenant two-phase budget.
type Ledger interface {
	// Reserve atomically checks remaining budget and adds amount to pending
	// usage. It returns false when the budget is insufficient.
	Reserve(ctx context.Context, tenantID string, amount float64) (bool, error)
	// Commit moves a reservation from pending to committed at the actual cost.
	Commit(ctx context.Context, tenantID string, reserved, actual float64) error
	// Release drops a reservation without charging it.
	Release(ctx context.Context, tenantID string, amount float64) error
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLedger keeps budgets in Postgres and relies on the reserve_budget and
// commit_reserved_budget functions for atomicity.
type PGLedger struct {
	db rowQuerier
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	if pool == nil {
		panic("budget: pgx pool cannot be nil")
	}
	return &PGLedger{db: pool}
}

func newPGLedgerWithExec(db rowQuerier) *PGLedger {
	if db == nil {
		panic("budget: exec cannot be nil")
	}
	return &PGLedger{db: db}
}

func (l *PGLedger) Reserve(ctx context.Context, tenantID string, amount float64) (bool, error) {
	var ok bool
	if err := l.db.QueryRow(ctx, `SELECT reserve_budget($1, $2)`, tenantID, amount).Scan(&ok); err != nil {
		return false, fmt.Errorf("budget: reserve: %w", err)
	}
	return ok, nil
}

func (l *PGLedger) Commit(ctx context.Context, tenantID string, reserved, actual float64) error {
	var ok bool
	if err := l.db.QueryRow(ctx, `SELECT commit_reserved_budget($1, $2, $3)`, tenantID, reserved, actual).Scan(&ok); err != nil {
		return fmt.Errorf("budget: commit: %w", err)
	}
	if !ok {
		return ErrNoLedger
	}
	return nil
}

func (l *PGLedger) Release(ctx context.Context, tenantID string, amount float64) error {
	query := `
		UPDATE tenant_budgets
		SET pending_usd = GREATEST(0, pending_usd - $2), updated_at = now()
		WHERE business_id = $1
	`
	ct, err := l.db.Exec(ctx, query, tenantID, amount)
	if err != nil {
		return fmt.Errorf("budget: release: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNoLedger
	}
	return nil
}

// MemoryLedger is an in-process ledger for local runs and tests.
type MemoryLedger struct {
	mu         sync.Mutex
	defaultCap float64
	accounts   map[string]*account
}

type account struct {
	limit     float64
	pending   float64
	committed float64
}

// NewMemoryLedger creates a ledger where unknown tenants start with defaultCap.
func NewMemoryLedger(defaultCap float64) *MemoryLedger {
	return &MemoryLedger{defaultCap: defaultCap, accounts: make(map[string]*account)}
}

// SetCap sets the spending cap of a tenant.
func (l *MemoryLedger) SetCap(tenantID string, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(tenantID).limit = limit
}

// Snapshot returns pending, committed and the cap for a tenant.
func (l *MemoryLedger) Snapshot(tenantID string) (pending, committed, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(tenantID)
	return a.pending, a.committed, a.limit
}

func (l *MemoryLedger) account(tenantID string) *account {
	a, ok := l.accounts[tenantID]
	if !ok {
		a = &account{limit: l.defaultCap}
		l.accounts[tenantID] = a
	}
	return a
}

func (l *MemoryLedger) Reserve(ctx context.Context, tenantID string, amount float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(tenantID)
	if a.committed+a.pending+amount > a.limit {
		return false, nil
	}
	a.pending += amount
	return true, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, tenantID string, reserved, actual float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(tenantID)
	a.pending = max(0, a.pending-reserved)
	// Overage past the cap is recorded in cost logs, not the ledger.
	// Committed spend never decreases, even after the cap was lowered.
	a.committed = max(a.committed, min(a.committed+actual, a.limit-a.pending))
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, tenantID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(tenantID)
	a.pending = max(0, a.pending-amount)
	return nil
}
