package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-agent/internal/http/middleware"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	TelegramWebhook *handlers.TelegramWebhookHandler
	Cron            *handlers.CronHandler
	CronSecret      string
	MetricsHandler  http.Handler

	// Webhook rate limit per source IP. Zero disables it.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.TelegramWebhook != nil {
		r.Group(func(webhooks chi.Router) {
			if cfg.WebhookRatePerSecond > 0 {
				webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, max(cfg.WebhookBurst, 1)))
			}
			webhooks.Post("/webhooks/telegram", cfg.TelegramWebhook.Handle)
		})
	}

	if cfg.Cron != nil {
		r.Route("/cron", func(cron chi.Router) {
			cron.Use(httpmiddleware.RequireBearer(cfg.CronSecret))
			cron.Get("/process-queue", cfg.Cron.ProcessQueue)
			cron.Post("/process-queue", cfg.Cron.ProcessQueue)
		})
	}

	return r
}
