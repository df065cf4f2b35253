// Package dispatchworker drives the dispatcher on a fixed interval for
// deployments without an external scheduler.
package dispatchworker

import (
	"context"
	"time"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

// BatchProcessor is satisfied by *dispatch.Dispatcher.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, maxItems int) (int, error)
}

// Poller periodically drains the request queue.
type Poller struct {
	processor BatchProcessor
	logger    *logging.Logger
	interval  time.Duration
	batch     int
	timeout   time.Duration
}

func NewPoller(processor BatchProcessor, logger *logging.Logger) *Poller {
	if processor == nil {
		panic("dispatchworker: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		processor: processor,
		logger:    logger,
		interval:  time.Minute,
		batch:     10,
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Poller) WithBatchSize(n int) *Poller {
	if n > 0 {
		p.batch = n
	}
	return p
}

// WithBatchTimeout bounds one drain. Zero leaves it unbounded.
func (p *Poller) WithBatchTimeout(d time.Duration) *Poller {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// Run drains once immediately, then on every tick until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("dispatch poller started", "interval", p.interval, "batch_size", p.batch)
	p.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dispatch poller stopped")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	n, err := p.processor.ProcessBatch(ctx, p.batch)
	if err != nil {
		p.logger.Error("dispatch poll failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Debug("dispatch poll processed items", "processed", n)
	}
}
