package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"casheye/internal/cli"
	apphttp "casheye/internal/http"
	"casheye/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.OpenBackend(context.Background(), logger, cfg)

	opts := apphttp.Options{
		History:           res.History,
		Metrics:           res.Metrics,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Now:               cli.Clock(cfg),
	}
	if res.OCR != nil {
		opts.Models = res.OCR
	}
	srv := apphttp.NewServer(":"+cfg.Port, res.Service, opts)

	// Scans can wait on the OCR provider for up to OCRTimeout.
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = cfg.OCRTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, _, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting casheye server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ocr_enabled", res.OCR != nil,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = res.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
