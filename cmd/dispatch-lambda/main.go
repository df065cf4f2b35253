package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/booking-agent/cmd/mainconfig"
	"github.com/wolfman30/booking-agent/internal/app/bootstrap"
	"github.com/wolfman30/booking-agent/internal/http/handlers"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// result is returned to the scheduler and mirrors the cron endpoint body.
type result struct {
	Success        bool   `json:"success"`
	ProcessedCount int    `json:"processedCount"`
	DurationMs     int64  `json:"durationMs"`
	Timestamp      string `json:"timestamp"`
}

type handler struct {
	processor handlers.BatchProcessor
	batchSize int
	now       func() time.Time
	logger    *logging.Logger
}

// handle runs one batch per scheduled event. The Lambda deadline bounds the
// batch through ctx.
func (h *handler) handle(ctx context.Context, evt events.CloudWatchEvent) (result, error) {
	start := h.now()
	processed, err := h.processor.ProcessBatch(ctx, h.batchSize)
	if err != nil {
		h.logger.Error("scheduled batch failed", "event_id", evt.ID, "error", err)
		return result{}, fmt.Errorf("process batch: %w", err)
	}
	res := result{
		Success:        true,
		ProcessedCount: processed,
		DurationMs:     h.now().Sub(start).Milliseconds(),
		Timestamp:      start.UTC().Format(time.RFC3339),
	}
	h.logger.Info("scheduled batch processed", "event_id", evt.ID, "processed", processed, "duration_ms", res.DurationMs)
	return res, nil
}

func main() {
	cfg, _ := mainconfig.Load()
	logger := mainconfig.Logger(cfg)

	rt, err := bootstrap.BuildRuntime(context.Background(), cfg, logger, nil)
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	h := &handler{processor: rt.Dispatcher, batchSize: cfg.DispatchBatchSize, now: time.Now, logger: logger.Component("dispatch-lambda")}
	lambda.Start(h.handle)
}
