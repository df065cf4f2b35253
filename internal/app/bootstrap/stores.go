package bootstrap

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-agent/internal/bookings"
	"github.com/wolfman30/booking-agent/internal/budget"
	"github.com/wolfman30/booking-agent/internal/business"
	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/internal/conversation"
	"github.com/wolfman30/booking-agent/internal/faq"
	"github.com/wolfman30/booking-agent/internal/queue"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// Stores groups the persistence layer. With a database every store is
// Postgres-backed; without one they live in memory for local runs.
type Stores struct {
	Queue         queue.Store
	Conversations conversation.Store
	Ledger        budget.Ledger
	CostLog       budget.CostRecorder
	Appointments  bookings.Repository
	Businesses    business.Store
	FAQ           faq.Store
	Local         bool

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// BuildStores opens the database from cfg. redisClient, when set, fronts the
// business store with a cache.
func BuildStores(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if logger == nil {
		logger = logging.Default()
	}
	convOpts := []conversation.Option{
		conversation.WithTTL(cfg.ConversationTTL),
		conversation.WithMaxTurns(cfg.ConversationMaxTurns),
	}

	pool, sqlDB, err := BuildDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores", "default_business_id", cfg.DefaultBusinessID)
		return localStores(cfg, convOpts), nil
	}

	var businesses business.Store = business.NewPGStore(pool)
	if redisClient != nil {
		businesses = business.NewCachedStore(businesses, redisClient, cfg.BusinessCacheTTL, logger)
	}
	return &Stores{
		Queue:         queue.NewPGStore(pool),
		Conversations: conversation.NewPGStore(pool, convOpts...),
		Ledger:        budget.NewPGLedger(pool),
		CostLog:       budget.NewSQLCostRecorder(sqlDB),
		Appointments:  bookings.NewRepository(pool),
		Businesses:    businesses,
		FAQ:           faq.NewPGStore(pool),
		pool:          pool,
		sqlDB:         sqlDB,
	}, nil
}

func localStores(cfg *appconfig.Config, convOpts []conversation.Option) *Stores {
	return &Stores{
		Queue:         queue.NewMemoryStore(),
		Conversations: conversation.NewMemoryStore(convOpts...),
		Ledger:        budget.NewMemoryLedger(cfg.LocalBudgetUSD),
		Appointments:  bookings.NewMemoryRepository(),
		Businesses: business.NewStaticStore(business.Business{
			ID:        cfg.DefaultBusinessID,
			Name:      "Local business",
			Timezone:  cfg.DefaultTimezone,
			OpenHour:  cfg.BusinessOpenHour,
			CloseHour: cfg.BusinessCloseHour,
		}),
		FAQ:   faq.NewMemoryStore(),
		Local: true,
	}
}

// Pool exposes the pgx pool, nil for local stores.
func (s *Stores) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Stores) Close() {
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
