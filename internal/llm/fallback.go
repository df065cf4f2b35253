package llm

import (
	"context"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

// FallbackOracle wraps a primary oracle with a secondary provider.
// If the primary fails, the request is retried once on the fallback.
type FallbackOracle struct {
	primary  Oracle
	fallback Oracle
	logger   *logging.Logger
}

// NewFallbackOracle creates a fallback-enabled oracle.
// If fallback is nil, only the primary provider is used.
func NewFallbackOracle(primary, fallback Oracle, logger *logging.Logger) *FallbackOracle {
	if primary == nil {
		panic("llm: primary oracle cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackOracle{primary: primary, fallback: fallback, logger: logger}
}

func (o *FallbackOracle) Chat(ctx context.Context, req Request) (Response, error) {
	resp, err := o.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	// A spent deadline would fail the fallback too.
	if ctx.Err() != nil || o.fallback == nil {
		return Response{}, err
	}

	o.logger.Warn("primary oracle failed, attempting fallback", "error", err, "tier", req.Tier)
	fallbackResp, fallbackErr := o.fallback.Chat(ctx, req)
	if fallbackErr != nil {
		o.logger.Error("fallback oracle also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}
	o.logger.Info("fallback oracle succeeded after primary failure")
	return fallbackResp, nil
}
