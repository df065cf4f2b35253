// Package dispatch drains the request queue: it claims pending items,
// classifies them, gates paid work behind a budget reservation, routes them to
// a handler and delivers the reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-agent/internal/budget"
	"github.com/wolfman30/booking-agent/internal/conversation"
	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/observability/metrics"
	"github.com/wolfman30/booking-agent/internal/queue"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

var tracer = otel.Tracer("booking-agent/dispatch")

const (
	// DefaultBatchSize is used when ProcessBatch gets a non-positive size.
	DefaultBatchSize = 10
	// DefaultExpectedOutputTokens sizes the pre-call estimate.
	DefaultExpectedOutputTokens = 150
	// settleTimeout bounds the terminal status write and the reply send. Both
	// run detached from the batch context so a cancelled batch cannot leave a
	// claimed item in processing.
	settleTimeout = 10 * time.Second
)

// Sender delivers a reply to a chat.
type Sender interface {
	Reply(ctx context.Context, chatID string, replyTo int64, text string) error
}

// Config tunes per-item processing.
type Config struct {
	ExpectedOutputTokens int
	// ItemTimeout bounds one handler call. Zero means no extra bound.
	ItemTimeout time.Duration
}

// Dispatcher processes queue batches.
type Dispatcher struct {
	queue         queue.Store
	classifier    *intent.Classifier
	budget        *budget.Controller
	conversations conversation.Store
	handlers      Handlers
	sender        Sender
	metrics       *metrics.DispatchMetrics
	cfg           Config
	now           func() time.Time
	logger        *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a dispatcher. conversations is consulted so that unclassified
// replies inside an active booking keep going to the booking handler.
func New(q queue.Store, classifier *intent.Classifier, ctrl *budget.Controller, conversations conversation.Store, handlers Handlers, sender Sender, cfg Config, opts ...Option) *Dispatcher {
	if q == nil {
		panic("dispatch: queue store cannot be nil")
	}
	if ctrl == nil {
		panic("dispatch: budget controller cannot be nil")
	}
	if conversations == nil {
		panic("dispatch: conversation store cannot be nil")
	}
	if sender == nil {
		panic("dispatch: sender cannot be nil")
	}
	if classifier == nil {
		classifier = intent.NewClassifier()
	}
	if cfg.ExpectedOutputTokens <= 0 {
		cfg.ExpectedOutputTokens = DefaultExpectedOutputTokens
	}
	d := &Dispatcher{
		queue:         q,
		classifier:    classifier,
		budget:        ctrl,
		conversations: conversations,
		handlers:      handlers.withDefaults(),
		sender:        sender,
		cfg:           cfg,
		now:           time.Now,
		logger:        logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessBatch handles up to maxItems pending items, oldest first, one at a
// time. It returns how many claimed items reached a terminal state. Item
// failures never abort the batch; only a failed fetch returns an error.
func (d *Dispatcher) ProcessBatch(ctx context.Context, maxItems int) (int, error) {
	if maxItems <= 0 {
		maxItems = DefaultBatchSize
	}
	start := d.now()
	defer func() {
		d.metrics.ObserveBatch(d.now().Sub(start).Seconds())
	}()

	items, err := d.queue.FetchPending(ctx, maxItems)
	if err != nil {
		return 0, fmt.Errorf("dispatch: fetch pending: %w", err)
	}
	if len(items) == 0 {
		d.logger.Debug("no pending queue items")
		return 0, nil
	}

	processed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			d.logger.Warn("batch interrupted", "processed", processed, "error", ctx.Err())
			break
		}
		if d.processItem(ctx, item) {
			processed++
		}
	}
	d.logger.Info("batch processed", "fetched", len(items), "processed", processed)
	return processed, nil
}

// outcome is the result of handling one claimed item.
type outcome struct {
	intent  intent.Intent
	reply   string
	msg     *queue.Message
	denied  bool
	err     error
	costUSD float64
}

func (o outcome) label() string {
	switch {
	case o.err != nil:
		return "failed"
	case o.denied:
		return "denied"
	default:
		return "completed"
	}
}

// processItem claims and settles one item. It reports whether the item
// reached a terminal state.
func (d *Dispatcher) processItem(ctx context.Context, item queue.Item) bool {
	log := d.logger.With("queue_item_id", item.ID, "tenant_id", item.TenantID)
	claimed, err := d.queue.Claim(ctx, item.ID)
	if err != nil {
		log.Error("failed to claim queue item", "error", err)
		return false
	}
	if !claimed {
		log.Debug("queue item already claimed")
		return false
	}

	ctx, span := tracer.Start(ctx, "dispatch.item", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("queue.item_id", item.ID),
		attribute.String("queue.tenant_id", item.TenantID),
	)

	start := d.now()
	out := d.handle(ctx, item)
	span.SetAttributes(attribute.String("dispatch.intent", string(out.intent)), attribute.String("dispatch.outcome", out.label()))
	defer func() {
		d.metrics.ObserveItem(string(out.intent), out.label(), d.now().Sub(start).Seconds())
	}()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		log.Error("queue item failed", "intent", out.intent, "error", out.err)
		if err := d.queue.MarkFailed(sctx, item.ID, out.err.Error()); err != nil {
			log.Error("failed to mark queue item failed", "error", err)
			return false
		}
		return true
	}

	if err := d.queue.MarkCompleted(sctx, item.ID); err != nil {
		log.Error("failed to mark queue item completed", "error", err)
		return false
	}
	log.Info("queue item completed", "intent", out.intent, "denied", out.denied, "cost_usd", out.costUSD)
	d.deliver(sctx, log, out)
	return true
}

func (d *Dispatcher) handle(ctx context.Context, item queue.Item) outcome {
	out := outcome{intent: intent.Unknown}
	msg, err := queue.ExtractMessage(item.Payload)
	if err != nil {
		out.err = err
		return out
	}
	if msg == nil {
		return out
	}
	out.msg = msg

	classified := d.classifier.Classify(msg.Text)
	routed, err := d.resolve(ctx, item.TenantID, msg.ChatID, classified)
	if err != nil {
		out.intent = classified
		out.err = err
		return out
	}
	out.intent = routed
	tier := intent.SelectTier(routed)

	est := d.budget.Estimate(tier, msg.Text, d.cfg.ExpectedOutputTokens)
	res, err := d.budget.Reserve(ctx, item.TenantID, est)
	if errors.Is(err, budget.ErrBudgetExceeded) {
		out.denied = true
		out.reply = BudgetExceededReply
		return out
	}
	if err != nil {
		out.err = err
		return out
	}
	defer func() {
		if res.Settled() {
			return
		}
		if err := res.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Error("failed to release budget reservation", "tenant_id", item.TenantID, "queue_item_id", item.ID, "error", err)
		}
	}()

	hctx, cancel := d.itemContext(ctx)
	defer cancel()
	reply, herr := d.handlers.route(routed).Handle(hctx, Request{
		ItemID:     item.ID,
		TenantID:   item.TenantID,
		Intent:     routed,
		Tier:       tier,
		Message:    *msg,
		ReceivedAt: item.CreatedAt,
	})

	// Tokens already consumed are charged even when the handler failed.
	if reply.spent() {
		cost, err := res.Commit(context.WithoutCancel(ctx), reply.Usage, string(routed))
		if err != nil {
			d.logger.Error("failed to commit usage", "tenant_id", item.TenantID, "queue_item_id", item.ID, "error", err)
		} else {
			out.costUSD = cost
			d.metrics.AddCost(string(tier), cost)
		}
	}
	if herr != nil {
		out.err = herr
		return out
	}
	out.reply = reply.Text
	return out
}

// resolve keeps unclassified messages in an active booking conversation on
// the booking route.
func (d *Dispatcher) resolve(ctx context.Context, tenantID, chatID string, classified intent.Intent) (intent.Intent, error) {
	if classified != intent.Unknown {
		return classified, nil
	}
	conv, err := d.conversations.GetActive(ctx, tenantID, chatID)
	if err != nil {
		return classified, fmt.Errorf("dispatch: load conversation: %w", err)
	}
	if conv != nil && conv.Intent == intent.Booking {
		return intent.Booking, nil
	}
	return classified, nil
}

func (d *Dispatcher) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.ItemTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.ItemTimeout)
}

// deliver sends the reply. Failures are logged and counted; the item stays
// completed.
func (d *Dispatcher) deliver(ctx context.Context, log *logging.Logger, out outcome) {
	if out.msg == nil || out.reply == "" {
		return
	}
	if out.msg.ChatID == "unknown" {
		log.Warn("reply dropped, message has no chat")
		return
	}
	err := d.sender.Reply(ctx, out.msg.ChatID, out.msg.MessageID, out.reply)
	d.metrics.ObserveDelivery(err == nil)
	if err != nil {
		log.Error("reply delivery failed", "chat_id", out.msg.ChatID, "error", err)
	}
}
