package main

import (
	"context"
	"os"
	"time"

	"expensee/internal/auth"
	"expensee/internal/cli"
	applog "expensee/internal/log"
	"expensee/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentOverdue)
	logger.Info("Starting overdue-worker",
		"interval", cfg.OverdueInterval,
		"session_cleanup_interval", cfg.SessionCleanupInterval)

	ctx := context.Background()
	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if res.Events == nil {
		logger.Warn("AMQP disabled, overdue loans are only logged")
	}

	authSvc := auth.NewService(res.Backend, cfg.SessionTTL, cfg.BcryptCost)
	scanner := services.NewOverdueScanner(res.Backend, res.Events, authSvc, services.OverdueConfig{
		PollInterval:    cfg.OverdueInterval,
		CleanupInterval: cfg.SessionCleanupInterval,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scanner.Stop(ctx); err != nil {
			logger.Error("Error stopping overdue scanner", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if err := scanner.Start(shutdownCtx); err != nil {
		logger.Error("Failed to start overdue scanner", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Overdue worker stopped")
}
