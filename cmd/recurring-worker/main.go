package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"casheye/internal/backend"
	"casheye/internal/cli"
	"casheye/internal/core"
	"casheye/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.OpenBackend(context.Background(), logger, cfg)
	if res.AMQP == nil {
		logger.Info("AMQP disabled - projected lines will not sync to Google Sheets")
	}

	now := cli.Clock(cfg)
	run := func(ctx context.Context) {
		today := core.DateOf(now())
		added, err := res.Service.RunRecurring(ctx, today)
		if err != nil {
			logger.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err, "date", today.String())
			return
		}
		logger.InfoContext(ctx, "Recurring processing complete", log.FieldAdded, len(added), "date", today.String())
	}

	scheduler := cron.New(cron.WithLocation(cfg.Location()))

	ctx, _, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down recurring-worker...")
		<-scheduler.Stop().Done()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, func() { run(ctx) }); err != nil {
		logger.Error("Invalid recurring schedule", log.FieldError, err, "schedule", cfg.RecurringSchedule)
		_ = res.Close()
		os.Exit(1)
	}

	// Catch up on startup so a missed schedule never leaves a gap.
	logger.Info("Running initial recurring processing...")
	run(ctx)

	scheduler.Start()
	logger.Info("Recurring processor scheduled",
		"schedule", cfg.RecurringSchedule,
		"timezone", cfg.Timezone,
		"backend", cfg.DataBackend)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
