package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/booking-agent/internal/observability/metrics"
	"github.com/wolfman30/booking-agent/internal/queue"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	// MaxWebhookBody is the largest accepted update. Text updates are far
	// smaller.
	MaxWebhookBody = 8 << 10
)

// Enqueuer stores inbound payloads for the dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID string, payload json.RawMessage) (string, error)
}

// TelegramWebhookHandler ingests Telegram updates into the request queue. It
// never calls a model; all work happens in the dispatcher.
type TelegramWebhookHandler struct {
	secret   string
	tenantID string
	queue    Enqueuer
	metrics  *metrics.DispatchMetrics
	logger   *logging.Logger
}

func NewTelegramWebhookHandler(secret, tenantID string, q Enqueuer, m *metrics.DispatchMetrics, logger *logging.Logger) *TelegramWebhookHandler {
	if q == nil {
		panic("handlers: enqueuer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TelegramWebhookHandler{
		secret:   strings.TrimSpace(secret),
		tenantID: strings.TrimSpace(tenantID),
		queue:    q,
		metrics:  m,
		logger:   logger,
	}
}

func (h *TelegramWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.logger.Error("telegram webhook secret not configured")
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		return
	}
	got := r.Header.Get(telegramSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.metrics.ObserveInbound("unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.ContentLength > MaxWebhookBody {
		h.metrics.ObserveInbound("too_large")
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload Too Large"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.ObserveInbound("too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload Too Large"})
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	update, err := queue.ParseUpdate(body)
	if err != nil {
		h.metrics.ObserveInbound("invalid")
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if !update.HasMessage() {
		h.metrics.ObserveInbound("ignored")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}

	id, err := h.queue.Enqueue(r.Context(), h.tenantID, json.RawMessage(body))
	if err != nil {
		// Telegram retries non-2xx answers, which would only pile up duplicates.
		h.logger.Error("failed to enqueue telegram update", "update_id", update.UpdateID, "error", err)
		h.metrics.ObserveInbound("enqueue_failed")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Database Error"))
		return
	}
	h.logger.Debug("telegram update queued", "update_id", update.UpdateID, "queue_item_id", id)
	h.metrics.ObserveInbound("queued")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
