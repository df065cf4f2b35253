package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-agent/cmd/mainconfig"
	"github.com/wolfman30/booking-agent/internal/api/router"
	"github.com/wolfman30/booking-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/internal/http/handlers"
	dispatchworker "github.com/wolfman30/booking-agent/internal/worker/dispatch"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

func main() {
	cfg, dotenv := mainconfig.Load()
	logger := mainconfig.Logger(cfg)
	logger.Info("starting booking-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"dotenv", dotenv,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, registry := setupMetrics()

	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, rt, metricsHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DispatchItemTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerDone := startInlineWorker(ctx, cfg, rt, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	waitForInlineWorker(shutdownCtx, workerDone, logger)
	logger.Info("server stopped")
	return nil
}

// setupMetrics builds a private registry with the runtime collectors.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func newRouter(cfg *appconfig.Config, rt *bootstrap.Runtime, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	if cfg.DefaultBusinessID == "" {
		logger.Warn("DEFAULT_BUSINESS_ID not set; webhook updates are queued without a tenant")
	}
	return router.New(&router.Config{
		Logger: logger,
		TelegramWebhook: handlers.NewTelegramWebhookHandler(
			cfg.TelegramSecretToken, cfg.DefaultBusinessID, rt.Stores.Queue, rt.Metrics, logger.Component("telegram-webhook"),
		),
		Cron:                 handlers.NewCronHandler(rt.Dispatcher, cfg.DispatchBatchSize, logger.Component("cron")),
		CronSecret:           cfg.CronSecret,
		MetricsHandler:       metricsHandler,
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
	})
}

// startInlineWorker runs the poller inside the API process when enabled. The
// returned channel closes once the poller exits; it is nil when disabled.
func startInlineWorker(ctx context.Context, cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger) <-chan struct{} {
	if !cfg.DispatchWorkerEnabled {
		return nil
	}
	poller := dispatchworker.NewPoller(rt.Dispatcher, logger.Component("dispatch-poller")).
		WithInterval(cfg.DispatchInterval).
		WithBatchSize(cfg.DispatchBatchSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()
	return done
}

func waitForInlineWorker(ctx context.Context, done <-chan struct{}, logger *logging.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("inline dispatch worker did not stop before shutdown deadline")
	}
}
