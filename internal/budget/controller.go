package budget

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

var (
	// ErrBudgetExceeded means the tenant cannot afford the call. It is a hard
	// stop, not a retryable condition.
	ErrBudgetExceeded = errors.New("budget: exceeded")
	// ErrReservationSettled is returned when a reservation is committed or
	// released a second time.
	ErrReservationSettled = errors.New("budget: reservation already settled")
)

// DefaultSafetyMargin inflates estimates before reserving.
const DefaultSafetyMargin = 1.2

// Controller gates paid oracle calls behind a budget reservation.
type Controller struct {
	ledger    Ledger
	estimator *Estimator
	recorder  CostRecorder
	margin    float64
	logger    *logging.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSafetyMargin overrides the reservation multiplier.
func WithSafetyMargin(m float64) Option {
	return func(c *Controller) {
		if m >= 1 {
			c.margin = m
		}
	}
}

// WithCostRecorder persists a cost log row for each commit.
func WithCostRecorder(r CostRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewController(ledger Ledger, estimator *Estimator, opts ...Option) *Controller {
	if ledger == nil {
		panic("budget: ledger cannot be nil")
	}
	if estimator == nil {
		estimator = NewEstimator(nil, llm.Models{})
	}
	c := &Controller{
		ledger:    ledger,
		estimator: estimator,
		margin:    DefaultSafetyMargin,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Estimate prices a call on tier for the given input.
func (c *Controller) Estimate(tier intent.Tier, input string, expectedOut int) Estimate {
	return c.estimator.Estimate(tier, input, expectedOut)
}

// Reserve holds the estimate plus the safety margin against the tenant's
// budget. It returns ErrBudgetExceeded when the tenant cannot afford it.
// The returned reservation must be committed or released exactly once.
func (c *Controller) Reserve(ctx context.Context, tenantID string, est Estimate) (*Reservation, error) {
	amount := est.CostUSD * c.margin
	ok, err := c.ledger.Reserve(ctx, tenantID, amount)
	if err != nil {
		return nil, fmt.Errorf("budget: reserve for %s: %w", tenantID, err)
	}
	if !ok {
		c.logger.Info("budget reservation denied", "tenant_id", tenantID, "amount_usd", amount, "tier", est.Tier)
		return nil, ErrBudgetExceeded
	}
	return &Reservation{
		ctrl:     c,
		TenantID: tenantID,
		Tier:     est.Tier,
		Amount:   amount,
	}, nil
}

// Reservation is a pending budget hold.
type Reservation struct {
	ctrl     *Controller
	TenantID string
	Tier     intent.Tier
	Amount   float64
	settled  atomic.Bool
}

// Commit charges actual usage at the reservation tier's rate and records a
// cost log. If the ledger rejects the commit the reservation stays open so a
// later Release can return it.
func (r *Reservation) Commit(ctx context.Context, usage llm.Usage, label string) (float64, error) {
	if !r.settled.CompareAndSwap(false, true) {
		return 0, ErrReservationSettled
	}
	actual := r.ctrl.estimator.Cost(r.Tier, usage.InputTokens, usage.OutputTokens)
	if err := r.ctrl.ledger.Commit(ctx, r.TenantID, r.Amount, actual); err != nil {
		r.settled.Store(false)
		return 0, fmt.Errorf("budget: commit for %s: %w", r.TenantID, err)
	}
	if actual > r.Amount {
		r.ctrl.logger.Warn("usage exceeded reservation",
			"tenant_id", r.TenantID, "reserved_usd", r.Amount, "actual_usd", actual, "label", label)
	}
	if r.ctrl.recorder != nil {
		entry := CostLog{
			TenantID:  r.TenantID,
			AmountUSD: actual,
			Model:     usage.Model,
			Tier:      r.Tier,
			TokensIn:  usage.InputTokens,
			TokensOut: usage.OutputTokens,
			Label:     label,
		}
		if err := r.ctrl.recorder.Record(ctx, entry); err != nil {
			r.ctrl.logger.Error("failed to record cost log", "tenant_id", r.TenantID, "error", err)
		}
	}
	return actual, nil
}

// Release returns the reservation without charging it. Releasing a settled
// reservation is a no-op that reports ErrReservationSettled, so callers can
// defer it right after Reserve.
func (r *Reservation) Release(ctx context.Context) error {
	if !r.settled.CompareAndSwap(false, true) {
		return ErrReservationSettled
	}
	if err := r.ctrl.ledger.Release(ctx, r.TenantID, r.Amount); err != nil {
		r.settled.Store(false)
		return fmt.Errorf("budget: release for %s: %w", r.TenantID, err)
	}
	return nil
}

// Settled reports whether the reservation was committed or released.
func (r *Reservation) Settled() bool {
	return r.settled.Load()
}
