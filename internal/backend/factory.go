package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casheye/internal/adapters"
	"casheye/internal/amqp"
	"casheye/internal/cache"
	"casheye/internal/category"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/metrics"
	"casheye/internal/ocr"
	"casheye/internal/parser"
	"casheye/internal/services"
	"casheye/internal/storage"
)

const cacheSweepInterval = 10 * time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []func() error
	result := &BackendResult{Metrics: metrics.New()}
	result.Cleanup = func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}

	switch config.Type {
	case SQLiteBackend:
		kv, err := storage.NewSQLiteKV(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		cleanups = append(cleanups, kv.Close)
		result.KV = kv
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		result.KV = storage.NewMemoryKV()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	registry := category.Load(ctx, ledger.NewCategoryStore(result.KV), category.WithLogger(f.logger))
	p := parser.New(registry, parser.WithLogger(f.logger))
	result.Ledger = ledger.NewStore(result.KV, p, f.logger)

	opts := []services.Option{
		services.WithLogger(f.logger),
		services.WithObserver(result.Metrics),
	}

	// AMQP is optional; the ledger works without it
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			result.AMQP = client
			cleanups = append(cleanups, client.Close)
			opts = append(opts, services.WithPublisher(client))
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if config.OCR.APIKey != "" {
		result.OCR = f.createOCR(config.OCR, result.Metrics, &cleanups)
		opts = append(opts, services.WithAnalyzer(result.OCR))
	}

	if src, ok := result.KV.(adapters.HistorySource); ok {
		result.History = adapters.NewLedgerHistory(src, result.Ledger, p)
	}

	result.Service = services.NewLedgerService(result.Ledger, ledger.NewRuleStore(result.KV, f.logger), registry, p, opts...)

	if lines, err := result.Ledger.Load(ctx); err == nil {
		result.Metrics.SetLedgerSize(len(lines))
	}

	f.logger.Info("Backend ready",
		"backend", config.Type.String(),
		"amqp_enabled", result.AMQP != nil,
		"ocr_enabled", result.OCR != nil,
		"history_enabled", result.History != nil)

	return result, nil
}

func (f *DefaultFactory) createOCR(cfg ocr.Config, m *metrics.Metrics, cleanups *[]func() error) *ocr.Client {
	opts := []ocr.Option{
		ocr.WithLogger(f.logger),
		ocr.WithObserver(m.ObserveOCR),
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		lru := cache.NewLRUCache[string](cfg.CacheSize, cfg.CacheTTL)
		manager := cache.NewManager(f.logger)
		manager.Register(lru)
		manager.StartCleanup(cacheSweepInterval)
		*cleanups = append(*cleanups, func() error {
			manager.Stop()
			return nil
		})
		opts = append(opts, ocr.WithCache(lru))
	}

	client := ocr.New(cfg, opts...)
	f.logger.Info("Initialized OCR client", "model", client.Model(), "timeout", cfg.Timeout)
	return client
}
