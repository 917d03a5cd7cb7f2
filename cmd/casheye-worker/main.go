package main

import (
	"context"
	"os"
	"time"

	"casheye/internal/cli"
	"casheye/internal/log"
	"casheye/internal/services"
	gsheet "casheye/internal/sheets/google"
	"casheye/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting casheye-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Sheets configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	res := cli.OpenBackend(context.Background(), logger, cfg)
	if res.AMQP == nil {
		logger.Error("AMQP broker unavailable - nothing to consume", "url_set", cfg.AMQPURL != "")
		_ = res.Close()
		os.Exit(1)
	}

	sheetsClient, err := gsheet.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = res.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	syncCfg := services.DefaultSheetsSyncConfig()
	syncCfg.ResyncInterval = cfg.SheetsResyncInterval
	syncCfg.SummarySheet = cfg.GoogleSummarySheetName
	syncCfg.AnalysisSheets = cfg.SheetsAnalysis

	// The backend's ledger is the source of truth for resyncs.
	mirror := services.NewSheetsSync(sheetsClient, res.Ledger, res.Service.Engine(), syncCfg, logger)
	w := worker.NewSyncWorker(res.AMQP, mirror, logger)

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("Sync worker failed", log.FieldError, err)
		stop()
		<-done
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
