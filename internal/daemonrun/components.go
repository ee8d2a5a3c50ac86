package daemonrun

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/enrichment"
	"launchlock/internal/gatekeeper"
	"launchlock/internal/guardrails"
	"launchlock/internal/handlers"
	"launchlock/internal/idempotency"
	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/notifications"
	"launchlock/internal/policy"
	"launchlock/internal/pricing"
	"launchlock/internal/queue"
	"launchlock/internal/scheduler"
	"launchlock/internal/stage"
	"launchlock/internal/services/marketplace"
	"launchlock/internal/storage"
	"launchlock/internal/trust"
	"launchlock/internal/workflow"
)

// Components is the fully wired worker runtime shared by the daemon and the
// one-shot CLI commands.
type Components struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *storage.DB
	Queue       *queue.Store
	Catalog     *catalog.Store
	Listings    *listings.Store
	Locker      locks.Locker
	Marketplace marketplace.Client
	Workflow    *workflow.Manager
	Housekeeper *scheduler.Housekeeper
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	market   marketplace.Client
	notifier notifications.Service
	clock    clock.Clock
}

// WithMarketplace replaces the HTTP marketplace client.
func WithMarketplace(client marketplace.Client) BuildOption {
	return func(o *buildOptions) { o.market = client }
}

// WithNotifier replaces the ntfy notifier built from config.
func WithNotifier(notifier notifications.Service) BuildOption {
	return func(o *buildOptions) { o.notifier = notifier }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) BuildOption {
	return func(o *buildOptions) { o.clock = clk }
}

// Build opens storage and wires every component of the worker. The returned
// logger tees records carrying a command id into the command log table.
func Build(cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	options := buildOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	clk := clock.OrReal(options.clock)
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	commands := queue.NewStore(db, clk)
	logger = logging.TeeLogger(logger, logging.NewCommandLogHandler(commands, slog.LevelInfo))

	locker, err := locks.New(cfg, db, clk)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build resource locker: %w", err)
	}

	market := options.market
	if market == nil {
		market = marketplace.NewHTTPClient(marketplace.ConfigFrom(cfg))
	}

	sources := catalog.NewStore(db, clk)
	listingStore := listings.NewStore(db, clk)
	images := catalog.NewFSImageSource(cfg.ImagesDir())
	prices := pricing.NewEngine(cfg)

	gate := gatekeeper.New(cfg, gatekeeper.Dependencies{
		Enricher: enrichment.WithFallback(enrichment.Cleaner{}, logger),
		Trust:    trust.NewScorer(cfg, clk),
		Policy:   policy.NewEvaluator(cfg),
		Pricer:   prices,
		Images:   images,
	}, logger)

	deps := handlers.Dependencies{
		Config:      cfg,
		Sources:     sources,
		Listings:    listingStore,
		Guardrails:  guardrails.NewEngine(cfg, sources, listingStore, market, clk, logger),
		Gatekeeper:  gate,
		Photos:      idempotency.NewPhotoCache(db, market, clk),
		Images:      images,
		Locker:      locker,
		Marketplace: market,
		Margins:     prices,
		Progress:    commands,
		Clock:       clk,
		Logger:      logger,
	}

	managerOpts := []workflow.ManagerOption{workflow.WithClock(clk)}
	if options.notifier != nil {
		managerOpts = append(managerOpts, workflow.WithNotifier(options.notifier))
	}
	manager := workflow.NewManager(cfg, commands, logger, managerOpts...)
	for commandType, handler := range map[queue.Type]stage.Handler{
		queue.TypePublish:     handlers.NewPublishHandler(deps),
		queue.TypePriceUpdate: handlers.NewPriceUpdateHandler(deps),
		queue.TypeWithdraw:    handlers.NewWithdrawHandler(deps),
	} {
		if err := manager.Register(commandType, handler); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Components{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Queue:       commands,
		Catalog:     sources,
		Listings:    listingStore,
		Locker:      locker,
		Marketplace: market,
		Workflow:    manager,
		Housekeeper: scheduler.New(cfg.Scheduler.HousekeepingCron, commands, locker, clk, logger),
	}, nil
}

// Close releases the lock backend and the database.
func (c *Components) Close() error {
	var errs []error
	if closer, ok := c.Locker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close locker: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
