// Package cli holds the start-up steps shared by the expensee binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"expensee/internal/backend"
	"expensee/internal/config"
	"expensee/internal/core"
	applog "expensee/internal/log"
	"expensee/internal/services"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default. A nil cfg gives an info level text logger.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Level = cfg.SlogLevel()
		if cfg.LogFormat != "" {
			lc.Format = cfg.LogFormat
		}
	}
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment, sets up
// the logger for component and exits the process when the configuration is
// invalid.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the configured store and, when AMQP is set up, the
// event publisher.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return res, nil
}

// LoadSeed reads the seed file and installs its global categories. The
// returned settings are the defaults for accounts without saved settings.
func LoadSeed(ctx context.Context, logger *applog.Logger, cfg *config.Config, store backend.Backend) (core.Settings, error) {
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		return core.Settings{}, err
	}
	cats := seed.GlobalCategories()
	if len(cats) > 0 {
		// Seeding only touches global categories, so no events are needed.
		seeder := services.NewLedgerService(store, nil, seed.Settings)
		n, err := seeder.EnsureGlobalCategories(ctx, cats)
		if err != nil {
			return core.Settings{}, err
		}
		logger.InfoContext(ctx, "Seed applied", "file", cfg.SeedFile, "new_categories", n, "total_categories", len(cats))
	}
	return seed.Settings, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM, after
// cleanup ran. done is closed once cleanup finished or timeout passed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()
		cancel()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ended.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
