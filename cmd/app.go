package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quickedit/internal/bootstrap"
	"quickedit/internal/catalog"
	"quickedit/internal/config"
	cronpkg "quickedit/internal/cron"
	"quickedit/internal/engine"
	"quickedit/internal/governor"
	"quickedit/internal/history"
	"quickedit/internal/models"
	"quickedit/internal/repository"
	"quickedit/internal/telemetry"
)

const storeTimeout = 5 * time.Second

// app holds the wired components shared by serve and run.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	history   *history.Log
	scheduler *cronpkg.Scheduler
	runs      *repository.RunRepository
	triggers  *repository.TriggerRepository
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.New(),
	}

	// --- Database (optional audit store) ---
	if cfg.Database.Enabled() {
		db, err := config.NewDatabase(&cfg.Database, cfg.Server.Env == "development", logger)
		if err != nil {
			logger.Warn("Audit database unavailable, runs are kept in memory only", zap.Error(err))
		} else if err := bootstrap.Migrate(db); err != nil {
			logger.Warn("Failed to migrate audit tables", zap.Error(err))
		} else {
			a.runs = repository.NewRunRepository(db)
			a.triggers = repository.NewTriggerRepository(db)
		}
	}

	// --- History (Redis mirror with in-memory fallback) ---
	mirror, err := history.NewMirror(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, cfg.History.RedisKey, cfg.History.Cap)
	if err != nil {
		logger.Warn("Redis unavailable for history mirror, using memory only", zap.Error(err))
	}
	a.history = history.New(cfg.History.Cap, history.WithMirror(mirror), history.WithLogger(logger))

	// --- Sync engine ---
	client := catalog.NewShopifyClient(cfg.Shopify.Store, cfg.Shopify.AccessToken, cfg.Shopify.APIVersion, cfg.Shopify.Timeout, logger)
	eng := engine.New(client, engine.Config{
		PageSize:   cfg.Sync.PageSize,
		Deadline:   cfg.Sync.Deadline,
		MaxRetries: cfg.Sync.MaxRetries,
		RetryBase:  cfg.Sync.RetryBase,
		RetryMax:   cfg.Sync.RetryMax,
		CostMargin: cfg.Sync.CostMargin,
	}, logger,
		engine.WithBudget(governor.NewBudget()),
		engine.WithMetrics(a.metrics),
	)

	// --- Cron Scheduler ---
	opts := []cronpkg.Option{
		cronpkg.WithRunObserver(a.metrics.ObserveRun),
	}
	if a.runs != nil {
		opts = append(opts, cronpkg.WithRunObserver(a.archive))
	}
	if a.triggers != nil {
		opts = append(opts, cronpkg.WithTriggerStore(a.triggers))
	}
	a.scheduler = cronpkg.New(eng, a.history, cronpkg.Config{MaxTriggers: cfg.Scheduler.MaxTriggers}, logger, opts...)
	a.metrics.TrackTriggers(a.scheduler.ActiveCount)

	return a
}

// archive writes a finished run to the audit store.
func (a *app) archive(summary models.RunSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.runs.Save(ctx, summary); err != nil {
		a.logger.Warn("Failed to archive run", zap.String("run_id", summary.ID), zap.Error(err))
	}
}

// restore reloads the history and the persisted triggers.
func (a *app) restore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if n, err := a.history.Restore(ctx); err != nil {
		a.logger.Warn("Failed to restore history", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("History restored", zap.Int("entries", n))
	}

	if a.triggers == nil {
		return
	}
	triggers, err := a.triggers.FindAll(ctx)
	if err != nil {
		a.logger.Warn("Failed to load persisted triggers", zap.Error(err))
		return
	}
	n, err := a.scheduler.RestoreTriggers(triggers)
	if err != nil {
		a.logger.Warn("Some triggers could not be restored", zap.Error(err))
	}
	a.logger.Info("Triggers restored", zap.Int("count", n))
}
