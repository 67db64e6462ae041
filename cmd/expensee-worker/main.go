package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensee/internal/amqp"
	"expensee/internal/cli"
	applog "expensee/internal/log"
	"expensee/internal/sheets"
	gsheet "expensee/internal/sheets/google"
	mem "expensee/internal/sheets/memory"
	"expensee/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentMirror)
	logger.Info("Starting expensee-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the mirror worker")
		os.Exit(1)
	}

	ctx := context.Background()
	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	client, ok := res.Events.(*amqp.Client)
	if !ok {
		logger.Error("AMQP broker unavailable, cannot consume ledger events", "queue", cfg.AMQPQueue)
		_ = res.Cleanup()
		os.Exit(1)
	}

	var ledger sheets.Ledger
	if cfg.SheetsEnabled() {
		sheetsClient, err := gsheet.NewClient(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			YearlySheets:    cfg.GoogleYearlySheets,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			_ = res.Cleanup()
			os.Exit(1)
		}
		ledger = sheetsClient
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "yearly_sheets", cfg.GoogleYearlySheets)
	} else {
		ledger = mem.New()
		logger.Warn("Google Sheets disabled, mirroring into memory only")
	}

	mirror := worker.NewMirrorWorker(res.Backend, ledger, cfg.MirrorBatchSize)

	consumeDone := make(chan struct{})
	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-consumeDone:
		case <-ctx.Done():
			logger.Warn("Consumer did not stop in time")
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if cfg.MirrorResyncOnStart {
		logger.Info("Performing startup resync")
		if err := mirror.Resync(shutdownCtx); err != nil {
			// Events still flow; the next resync repairs what was missed.
			logger.Error("Startup resync failed", "error", err)
		}
	}

	go func() {
		defer close(consumeDone)
		if err := client.Consume(shutdownCtx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped")
}
