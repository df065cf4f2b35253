package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-agent/cmd/mainconfig"
	"github.com/wolfman30/booking-agent/internal/app/bootstrap"
	dispatchworker "github.com/wolfman30/booking-agent/internal/worker/dispatch"
)

// dispatch-worker drains the request queue on DISPATCH_INTERVAL and serves
// /metrics on PORT.
func main() {
	cfg, _ := mainconfig.Load()
	logger := mainconfig.Logger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	dispatchworker.NewPoller(rt.Dispatcher, logger.Component("dispatch-poller")).
		WithInterval(cfg.DispatchInterval).
		WithBatchSize(cfg.DispatchBatchSize).
		Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("dispatch worker stopped")
}
