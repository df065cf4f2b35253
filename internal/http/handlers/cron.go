package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

// BatchProcessor runs one dispatcher batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, maxItems int) (int, error)
}

// CronHandler triggers queue processing from an external scheduler.
// Authentication is applied by the router.
type CronHandler struct {
	processor BatchProcessor
	batchSize int
	now       func() time.Time
	logger    *logging.Logger
}

func NewCronHandler(processor BatchProcessor, batchSize int, logger *logging.Logger) *CronHandler {
	if processor == nil {
		panic("handlers: batch processor cannot be nil")
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CronHandler{processor: processor, batchSize: batchSize, now: time.Now, logger: logger}
}

type cronResponse struct {
	Success        bool   `json:"success"`
	ProcessedCount int    `json:"processedCount"`
	DurationMs     int64  `json:"durationMs"`
	Timestamp      string `json:"timestamp"`
	Error          string `json:"error,omitempty"`
}

func (h *CronHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	processed, err := h.processor.ProcessBatch(r.Context(), h.batchSize)
	duration := h.now().Sub(start)
	if err != nil {
		h.logger.Error("queue processing failed", "error", err, "duration_ms", duration.Milliseconds())
		writeJSON(w, http.StatusInternalServerError, cronResponse{Success: false, Error: err.Error()})
		return
	}
	h.logger.Info("queue processing completed", "processed", processed, "duration_ms", duration.Milliseconds())
	writeJSON(w, http.StatusOK, cronResponse{
		Success:        true,
		ProcessedCount: processed,
		DurationMs:     duration.Milliseconds(),
		Timestamp:      start.UTC().Format(time.RFC3339),
	})
}
