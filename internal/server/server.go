package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/deepwater-mud/economy/internal/auction"
	"github.com/deepwater-mud/economy/internal/auditindex"
	"github.com/deepwater-mud/economy/internal/auth"
	"github.com/deepwater-mud/economy/internal/bank"
	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/config"
	"github.com/deepwater-mud/economy/internal/emissions"
	"github.com/deepwater-mud/economy/internal/enforcement"
	"github.com/deepwater-mud/economy/internal/identity"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/market"
	"github.com/deepwater-mud/economy/internal/middleware"
	"github.com/deepwater-mud/economy/internal/notification"
	"github.com/deepwater-mud/economy/internal/outbox"
	"github.com/deepwater-mud/economy/internal/routes"
	"github.com/deepwater-mud/economy/internal/scheduler"
	"github.com/deepwater-mud/economy/internal/schema"
	"github.com/deepwater-mud/economy/internal/settlement"
	"github.com/deepwater-mud/economy/internal/store"
	"github.com/deepwater-mud/economy/internal/trade"
	"github.com/deepwater-mud/economy/internal/wallet"
	"github.com/deepwater-mud/economy/internal/work"
)

// Infra holds the external clients the server runs against. Any of them may
// be nil in development; Postgres and Redis are required elsewhere.
type Infra struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Kafka  sarama.SyncProducer
	Search *elasticsearch.Client
}

// Server wraps the Fiber application, the background scheduler and the
// services both of them drive.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// New wires every economy service, syncs the catalog and registers routes
// and periodic tasks.
func New(ctx context.Context, cfg config.Config, in Infra, cat *catalog.Catalog, logger *slog.Logger) (*Server, error) {
	if !cfg.IsDevelopment() && (in.DB == nil || in.Cache == nil) {
		return nil, fmt.Errorf("postgres and redis are required when APP_ENV=%s", cfg.AppEnv)
	}

	var (
		st     store.Store
		idRepo identity.Repository
	)
	if in.DB != nil {
		st = store.NewPostgres(in.DB)
		idRepo = identity.NewPostgresRepository(in.DB)
	} else {
		logger.Warn("running on the in-memory store; state is lost on exit")
		st = store.NewMemory()
		idRepo = identity.NewMemoryRepository()
	}

	led := ledger.New(logger, ledger.Options{AuditIndex: in.Search != nil})
	inv := inventory.New()
	if err := catalog.Sync(ctx, st, cat, led, inv, logger); err != nil {
		return nil, fmt.Errorf("sync catalog: %w", err)
	}
	schemas, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	notifier := notification.NewLoggerNotifier(logger)
	econ := cfg.Economy

	wallets := wallet.NewService(st, led, inv)
	auctions := auction.NewService(st, led, inv, notifier, auction.Config{
		TaxRate:     econ.AuctionTaxRate,
		MinDuration: econ.AuctionMinDuration,
		MaxDuration: econ.AuctionMaxDuration,
	}, logger)
	d := routes.Deps{
		Cfg:      cfg,
		Logger:   logger,
		DB:       in.DB,
		Cache:    in.Cache,
		Store:    st,
		Ledger:   led,
		Schemas:  schemas,
		Identity: identity.NewService(idRepo, wallets),
		Auth: auth.NewService(auth.Config{
			AccessSecret:  cfg.JWTSecret,
			RefreshSecret: cfg.RefreshSecret,
			AccessTTL:     cfg.AccessTokenTTL,
			RefreshTTL:    cfg.RefreshTokenTTL,
		}, idRepo),
		Wallet: wallets,
		Bank: bank.NewService(st, led, bank.Config{
			LoanMin:   econ.LoanMin,
			LoanMax:   econ.LoanMax,
			DailyRate: econ.LoanDailyRate,
			Term:      econ.LoanTerm,
		}, logger),
		Market:  market.NewService(st, led, inv, cat, logger),
		Trade:   trade.NewService(st, led, inv, notifier, econ.TradeMaxTTL, logger),
		Auction: auctions,
		Emissions: emissions.NewService(st, led, auctions,
			emissions.StaticOracle{Value: econ.PriceOracleRate},
			emissions.StaticReserve{Value: econ.EmissionReserve},
			econ.EmissionAnnualRate, cat.NPCWallets(), logger),
		Enforcement: enforcement.NewService(st, inv,
			enforcement.LoggingCombat{Logger: logger},
			enforcement.OpenWorld{Logger: logger},
			notifier, enforcement.Config{
				Cooldown:         econ.EnforcementCooldown,
				EncounterTimeout: econ.EncounterTimeout,
				BaseUnits:        econ.EnforcementBaseUnits,
				XPReward:         econ.EnforcementXP,
				JailPerUnit:      econ.JailPerUnit,
				JailMin:          econ.JailMin,
				JailMax:          econ.JailMax,
				ReleaseLocation:  econ.ReleaseLocation,
			}, logger),
		Work: work.NewService(st, led, cat, logger),
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})
	routes.Setup(app, d)

	dispatcher, err := newDispatcher(ctx, cfg, in, st, logger)
	if err != nil {
		return nil, err
	}

	var locker scheduler.Locker = scheduler.NewLocalLocker()
	if in.Cache != nil {
		locker = scheduler.NewRedisLocker(in.Cache)
	}
	sched := scheduler.New(locker, logger)
	sched.AddTask("trade-sweep", cfg.Schedule.TradeSweep, func(ctx context.Context) error {
		_, err := d.Trade.SweepExpired(ctx)
		return err
	})
	sched.AddTask("auction-sweep", cfg.Schedule.AuctionSweep, func(ctx context.Context) error {
		_, err := d.Auction.SweepEnded(ctx)
		return err
	})
	sched.AddTask("enforcement-sweep", cfg.Schedule.EnforcementSweep, func(ctx context.Context) error {
		_, err := d.Enforcement.Sweep(ctx)
		return err
	})
	sched.AddTask("emissions", cfg.Schedule.Emissions, func(ctx context.Context) error {
		_, err := d.Emissions.Run(ctx)
		return err
	})
	sched.AddTask("outbox-dispatch", cfg.Schedule.OutboxDispatch, func(ctx context.Context) error {
		_, err := dispatcher.DispatchOnce(ctx)
		return err
	})

	return &Server{app: app, cfg: cfg, scheduler: sched, logger: logger}, nil
}

func newDispatcher(ctx context.Context, cfg config.Config, in Infra, st store.Store, logger *slog.Logger) (*outbox.Dispatcher, error) {
	dispatcher := outbox.NewDispatcher(st, outbox.Config{
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BaseBackoff: cfg.Outbox.BaseBackoff,
	}, logger)

	var adapter settlement.Adapter
	switch {
	case in.Kafka != nil:
		adapter = settlement.NewKafkaAdapter(in.Kafka, cfg.SettlementTopic)
	case cfg.IsDevelopment():
		adapter = settlement.StaticAdapter{}
	default:
		adapter = settlement.DisabledAdapter{}
	}
	dispatcher.Register(ledger.TopicSettlement, settlement.OutboxHandler(adapter, cfg.SettlementSecret, logger))

	if in.Search != nil {
		indexer := auditindex.New(in.Search, cfg.AuditIndex, logger)
		if err := indexer.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		dispatcher.Register(ledger.TopicAudit, indexer.OutboxHandler())
	}
	return dispatcher, nil
}

// Start launches the periodic tasks and then serves HTTP until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.scheduler.Start(ctx)
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then waits for running tasks.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.scheduler.Stop()
	return err
}
