package budget

import (
	"math"
	"unicode/utf8"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

// charsPerToken is the fixed character-to-token ratio used for estimates.
const charsPerToken = 3

// Price is USD per one million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Pricing maps a model tier to its unit price.
type Pricing map[intent.Tier]Price

// DefaultPricing matches gpt-4o (capable) and gpt-4o-mini (cheap) list prices.
func DefaultPricing() Pricing {
	return Pricing{
		intent.TierCheap:   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		intent.TierCapable: {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	}
}

// Estimate is the predicted cost of one paid call. It is never persisted.
type Estimate struct {
	Tier      intent.Tier
	Model     string
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// Estimator prices token counts per tier.
type Estimator struct {
	pricing Pricing
	models  llm.Models
}

func NewEstimator(pricing Pricing, models llm.Models) *Estimator {
	if len(pricing) == 0 {
		pricing = DefaultPricing()
	}
	return &Estimator{pricing: pricing, models: models}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return int(math.Ceil(float64(n) / charsPerToken))
}

// Estimate predicts the cost of sending input and receiving expectedOut tokens.
func (e *Estimator) Estimate(tier intent.Tier, input string, expectedOut int) Estimate {
	in := EstimateTokens(input)
	return Estimate{
		Tier:      tier,
		Model:     e.models.For(tier),
		TokensIn:  in,
		TokensOut: expectedOut,
		CostUSD:   e.Cost(tier, in, expectedOut),
	}
}

// Cost prices actual token usage at the tier's rate. Unknown tiers are
// priced as capable.
func (e *Estimator) Cost(tier intent.Tier, tokensIn, tokensOut int) float64 {
	price, ok := e.pricing[tier]
	if !ok {
		price = e.pricing[intent.TierCapable]
	}
	return float64(tokensIn)*price.InputPerMillion/1_000_000 +
		float64(tokensOut)*price.OutputPerMillion/1_000_000
}
