package budget

import (
	"math"
	"testing"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestEstimateTokens(t *testing.T) {
	tests := map[string]int{
		"":        0,
		"a":       1,
		"abc":     1,
		"abcd":    2,
		"Hello!!": 3,
	}
	for text, want := range tests {
		if got := EstimateTokens(text); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
	// Multi-byte text counts characters, not bytes.
	if got := EstimateTokens("ආයුබෝවන්"); got != 3 {
		t.Errorf("expected 3 tokens for 8 runes, got %d", got)
	}
}

func TestEstimatorPricesPerTier(t *testing.T) {
	e := NewEstimator(nil, llm.Models{Cheap: "mini", Capable: "big"})

	cheap := e.Estimate(intent.TierCheap, "abcdef", 150)
	if cheap.TokensIn != 2 || cheap.TokensOut != 150 || cheap.Model != "mini" {
		t.Fatalf("unexpected cheap estimate %+v", cheap)
	}
	wantCheap := 2*0.15/1e6 + 150*0.60/1e6
	if !almostEqual(cheap.CostUSD, wantCheap) {
		t.Fatalf("cheap cost = %v, want %v", cheap.CostUSD, wantCheap)
	}

	capable := e.Estimate(intent.TierCapable, "abcdef", 150)
	wantCapable := 2*2.50/1e6 + 150*10.00/1e6
	if !almostEqual(capable.CostUSD, wantCapable) || capable.Model != "big" {
		t.Fatalf("capable estimate = %+v, want cost %v", capable, wantCapable)
	}
}

func TestCostUnknownTierUsesCapableRate(t *testing.T) {
	e := NewEstimator(nil, llm.Models{})
	if !almostEqual(e.Cost(intent.Tier("mystery"), 1_000_000, 0), 2.50) {
		t.Fatalf("expected capable input rate for unknown tier")
	}
}
