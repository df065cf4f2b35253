package budget

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

type recordingRecorder struct {
	mu      sync.Mutex
	entries []CostLog
	err     error
}

func (r *recordingRecorder) Record(ctx context.Context, entry CostLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

type failingLedger struct {
	*MemoryLedger
	commitErr error
}

func (l *failingLedger) Commit(ctx context.Context, tenantID string, reserved, actual float64) error {
	if l.commitErr != nil {
		return l.commitErr
	}
	return l.MemoryLedger.Commit(ctx, tenantID, reserved, actual)
}

func TestReserveAppliesSafetyMargin(t *testing.T) {
	ledger := NewMemoryLedger(1)
	c := NewController(ledger, NewEstimator(nil, llm.Models{}))

	res, err := c.Reserve(context.Background(), "t1", Estimate{Tier: intent.TierCheap, CostUSD: 0.5})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !almostEqual(res.Amount, 0.6) {
		t.Fatalf("expected 20%% margin, got %v", res.Amount)
	}
	pending, _, _ := ledger.Snapshot("t1")
	if !almostEqual(pending, 0.6) {
		t.Fatalf("expected pending 0.6, got %v", pending)
	}
}

func TestReserveDeniedWhenInsufficient(t *testing.T) {
	ledger := NewMemoryLedger(0.5)
	c := NewController(ledger, nil)

	_, err := c.Reserve(context.Background(), "t1", Estimate{CostUSD: 0.5})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	pending, _, _ := ledger.Snapshot("t1")
	if pending != 0 {
		t.Fatalf("denied reservation must not touch pending, got %v", pending)
	}
}

func TestCommitChargesActualUsageOnce(t *testing.T) {
	ledger := NewMemoryLedger(10)
	rec := &recordingRecorder{}
	c := NewController(ledger, NewEstimator(nil, llm.Models{}), WithCostRecorder(rec))
	ctx := context.Background()

	res, err := c.Reserve(ctx, "t1", Estimate{Tier: intent.TierCapable, CostUSD: 0.01})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	actual, err := res.Commit(ctx, llm.Usage{Model: "big", InputTokens: 1000, OutputTokens: 100}, "booking")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	want := 1000*2.50/1e6 + 100*10.00/1e6
	if !almostEqual(actual, want) {
		t.Fatalf("expected capable-rate charge %v, got %v", want, actual)
	}
	pending, committed, _ := ledger.Snapshot("t1")
	if pending != 0 || !almostEqual(committed, want) {
		t.Fatalf("unexpected ledger state pending=%v committed=%v", pending, committed)
	}
	if len(rec.entries) != 1 || rec.entries[0].Label != "booking" || rec.entries[0].Tier != intent.TierCapable {
		t.Fatalf("unexpected cost logs %+v", rec.entries)
	}

	if _, err := res.Commit(ctx, llm.Usage{InputTokens: 1}, "booking"); !errors.Is(err, ErrReservationSettled) {
		t.Fatalf("expected second commit to be rejected, got %v", err)
	}
	if err := res.Release(ctx); !errors.Is(err, ErrReservationSettled) {
		t.Fatalf("expected release after commit to be rejected, got %v", err)
	}
	_, committedAfter, _ := ledger.Snapshot("t1")
	if !almostEqual(committedAfter, want) {
		t.Fatalf("ledger changed after settled reservation")
	}
}

func TestReleaseReturnsPending(t *testing.T) {
	ledger := NewMemoryLedger(1)
	c := NewController(ledger, nil)
	ctx := context.Background()

	res, err := c.Reserve(ctx, "t1", Estimate{CostUSD: 0.5})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := res.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !res.Settled() {
		t.Fatal("expected settled reservation")
	}
	pending, committed, _ := ledger.Snapshot("t1")
	if pending != 0 || committed != 0 {
		t.Fatalf("unexpected ledger state pending=%v committed=%v", pending, committed)
	}
}

func TestFailedCommitLeavesReservationReleasable(t *testing.T) {
	ledger := &failingLedger{MemoryLedger: NewMemoryLedger(1), commitErr: errors.New("db down")}
	c := NewController(ledger, nil)
	ctx := context.Background()

	res, err := c.Reserve(ctx, "t1", Estimate{CostUSD: 0.5})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := res.Commit(ctx, llm.Usage{InputTokens: 10}, "faq"); err == nil {
		t.Fatal("expected commit error")
	}
	if err := res.Release(ctx); err != nil {
		t.Fatalf("expected release to succeed after failed commit, got %v", err)
	}
	pending, _, _ := ledger.Snapshot("t1")
	if pending != 0 {
		t.Fatalf("expected no leaked pending usage, got %v", pending)
	}
}

func TestMemoryLedgerReleaseClampsAtZero(t *testing.T) {
	ledger := NewMemoryLedger(1)
	if err := ledger.Release(context.Background(), "t1", 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	pending, _, _ := ledger.Snapshot("t1")
	if pending != 0 {
		t.Fatalf("pending must never go negative, got %v", pending)
	}
}

func TestBudgetConservationUnderConcurrency(t *testing.T) {
	const limit = 1.0
	ledger := NewMemoryLedger(limit)
	c := NewController(ledger, NewEstimator(nil, llm.Models{}))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var violations int
	check := func() {
		pending, committed, _ := ledger.Snapshot("t1")
		if pending < 0 || pending+committed > limit+1e-9 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
	}

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			est := Estimate{Tier: intent.TierCapable, CostUSD: rng.Float64() * 0.05}
			res, err := c.Reserve(ctx, "t1", est)
			check()
			if err != nil {
				return
			}
			defer res.Release(ctx)
			if rng.Intn(2) == 0 {
				usage := llm.Usage{InputTokens: rng.Intn(20_000), OutputTokens: rng.Intn(2_000)}
				if _, err := res.Commit(ctx, usage, "test"); err != nil {
					t.Errorf("commit: %v", err)
				}
			}
			check()
		}(int64(i))
	}
	wg.Wait()

	if violations > 0 {
		t.Fatalf("observed %d conservation violations", violations)
	}
	pending, committed, _ := ledger.Snapshot("t1")
	if !almostEqual(pending, 0) && pending > 1e-9 {
		t.Fatalf("expected every reservation settled, pending=%v", pending)
	}
	if committed > limit+1e-9 {
		t.Fatalf("committed %v exceeds cap %v", committed, limit)
	}
}
