package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-agent/internal/booking"
	"github.com/wolfman30/booking-agent/internal/budget"
	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/internal/calendar"
	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/internal/dispatch"
	"github.com/wolfman30/booking-agent/internal/faq"
	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/messaging/telegram"
	"github.com/wolfman30/booking-agent/internal/notify"
	"github.com/wolfman30/booking-agent/internal/observability/metrics"
	"github.com/wolfman30/booking-agent/internal/slotlock"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// Runtime is the fully wired dispatcher with everything it owns.
type Runtime struct {
	Config     *appconfig.Config
	Stores     *Stores
	Oracle     *Oracle
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.DispatchMetrics
	redis      *redis.Client
}

// BuildRuntime wires stores, oracle, calendar, slot locks and the dispatcher.
// reg nil registers metrics on the default registry.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		return nil, errors.New("bootstrap: redis is required for slot locks")
	}
	rt := &Runtime{Config: cfg, redis: redisClient}

	stores, err := BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Stores = stores

	oracle, err := BuildOracle(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Oracle = oracle
	rt.Metrics = metrics.NewDispatchMetrics(reg)

	executor := booking.NewExecutor(
		buildCalendar(cfg, stores.Businesses, logger),
		slotlock.New(redisClient, slotlock.WithTimeout(cfg.LockTimeout)),
		stores.Appointments,
		stores.Businesses,
		booking.ExecutorConfig{
			CalendarTimeout: cfg.CalendarTimeout,
			LockTTL:         cfg.SlotLockTTL,
			DefaultTimezone: cfg.DefaultTimezone,
			OpenHour:        cfg.BusinessOpenHour,
			CloseHour:       cfg.BusinessCloseHour,
		},
		booking.WithExecutorLogger(logger.Component("booking-tools")),
	)
	agent := booking.NewAgent(oracle.Chat, executor, stores.Conversations,
		booking.AgentConfig{
			MaxIterations:   cfg.AgentMaxIterations,
			OracleTimeout:   cfg.OracleTimeout,
			DefaultTimezone: cfg.DefaultTimezone,
		},
		booking.WithBusinesses(stores.Businesses),
		booking.WithAgentLogger(logger.Component("booking-agent")),
	)

	ctrlOpts := []budget.Option{
		budget.WithSafetyMargin(cfg.BudgetSafetyMargin),
		budget.WithLogger(logger.Component("budget")),
	}
	if stores.CostLog != nil {
		ctrlOpts = append(ctrlOpts, budget.WithCostRecorder(stores.CostLog))
	}
	ctrl := budget.NewController(stores.Ledger, budget.NewEstimator(Pricing(cfg), oracle.Models), ctrlOpts...)

	answerer := faq.NewAnswerer(oracle.Embedder, stores.FAQ, oracle.Chat, cfg.FAQMatchThreshold, cfg.FAQMatchCount, logger.Component("faq"))
	escalator := notify.NewEscalator(BuildEmailSender(ctx, cfg, logger), stores.Businesses, logger.Component("notify"))

	sender, err := BuildSender(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Dispatcher = dispatch.New(stores.Queue, intent.NewClassifier(), ctrl, stores.Conversations,
		dispatch.Handlers{
			FAQ:       dispatch.FAQ(answerer),
			Booking:   dispatch.Booking(agent, rt.Metrics),
			Status:    dispatch.Status(stores.Appointments, stores.Businesses, cfg.DefaultTimezone, nil),
			Complaint: dispatch.Complaint(escalator, logger.Component("complaints")),
		},
		sender,
		dispatch.Config{ItemTimeout: cfg.DispatchItemTimeout},
		dispatch.WithMetrics(rt.Metrics),
		dispatch.WithLogger(logger.Component("dispatch")),
	)
	return rt, nil
}

func (r *Runtime) Close() {
	if r.Oracle != nil {
		r.Oracle.Close()
	}
	if r.Stores != nil {
		r.Stores.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

// Pricing builds the per-tier price table from config.
func Pricing(cfg *appconfig.Config) budget.Pricing {
	return budget.Pricing{
		intent.TierCheap:   {InputPerMillion: cfg.PriceCheapInput, OutputPerMillion: cfg.PriceCheapOutput},
		intent.TierCapable: {InputPerMillion: cfg.PriceCapableInput, OutputPerMillion: cfg.PriceCapableOutput},
	}
}

func buildCalendar(cfg *appconfig.Config, businesses business.Store, logger *logging.Logger) calendar.Client {
	if strings.TrimSpace(cfg.GoogleOAuthClientID) == "" {
		logger.Warn("google oauth client not configured; using in-memory calendar")
		return calendar.NewMemory()
	}
	return calendar.NewGoogleClient(calendar.GoogleConfig{
		ClientID:     cfg.GoogleOAuthClientID,
		ClientSecret: cfg.GoogleOAuthClientSecret,
	}, businesses)
}

// BuildSender returns the Telegram client, or a logging sender when no bot
// token is configured outside production.
func BuildSender(cfg *appconfig.Config, logger *logging.Logger) (dispatch.Sender, error) {
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		if cfg.Env == "production" {
			return nil, errors.New("bootstrap: TELEGRAM_BOT_TOKEN is required in production")
		}
		logger.Warn("telegram bot token not set; replies are only logged")
		return logSender{logger: logger}, nil
	}
	client, err := telegram.New(telegram.Config{
		BaseURL: cfg.TelegramAPIBaseURL,
		Token:   cfg.TelegramBotToken,
		Logger:  logger.Component("telegram"),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telegram: %w", err)
	}
	return client, nil
}

type logSender struct {
	logger *logging.Logger
}

func (s logSender) Reply(ctx context.Context, chatID string, replyTo int64, text string) error {
	s.logger.Info("reply (not sent)", "chat_id", chatID, "reply_to", replyTo, "text", text)
	return nil
}
