package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensee/internal/auth"
	"expensee/internal/cli"
	apphttp "expensee/internal/http"
	applog "expensee/internal/log"
	"expensee/internal/middleware/ratelimit"
	"expensee/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)
	logger.Info("Starting expensee server", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx := context.Background()
	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	defaults, err := cli.LoadSeed(ctx, logger, cfg, res.Backend)
	if err != nil {
		logger.Error("Failed to apply seed", "error", err, "file", cfg.SeedFile)
		_ = res.Cleanup()
		os.Exit(1)
	}

	ledger := services.NewLedgerService(res.Backend, res.Events, defaults)
	authSvc := auth.NewService(res.Backend, cfg.SessionTTL, cfg.BcryptCost)

	var scanner *services.OverdueScanner
	if cfg.OverdueInProcess {
		scanner = services.NewOverdueScanner(res.Backend, res.Events, authSvc, services.OverdueConfig{
			PollInterval:    cfg.OverdueInterval,
			CleanupInterval: cfg.SessionCleanupInterval,
		})
	}

	srv := apphttp.NewServer(ledger, authSvc, apphttp.Options{
		Addr: ":" + cfg.Port,
		RateLimit: ratelimit.Config{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
		},
		CacheSize:         cfg.CacheSize,
		CacheTTL:          cfg.CacheTTL,
		Ready:             readiness(res.Backend),
		Logger:            logger.WithComponent(applog.ComponentHTTP),
		AllowRegistration: cfg.AllowRegistration,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if scanner != nil {
			if err := scanner.Stop(ctx); err != nil {
				logger.Error("Overdue scanner stop error", "error", err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if scanner != nil {
		if err := scanner.Start(shutdownCtx); err != nil {
			logger.Error("Failed to start overdue scanner", "error", err)
			os.Exit(1)
		}
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// readiness pings the store when it supports it.
func readiness(store any) func(context.Context) error {
	p, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping
}
