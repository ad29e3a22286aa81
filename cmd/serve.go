package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quickedit/internal/handler/api"
	"quickedit/internal/middleware"
	"quickedit/internal/router"
)

func serve(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a := newApp(cfg, logger)
	a.restore(ctx)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Request Deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewRequestDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		10*time.Minute,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for request dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Routes ---
	var archive api.RunArchive
	if a.runs != nil {
		archive = a.runs
	}
	syncHandler := api.NewSyncHandler(a.scheduler, a.history, archive, cfg.Sync.VendorKey, logger)
	router.Setup(e, syncHandler, a.metrics.Handler(), logger, cfg.API.Key, deduper)

	a.scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting QuickEdit server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron and wait for running syncs
	<-a.scheduler.Stop().Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
