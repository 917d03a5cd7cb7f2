package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casheye/internal/amqp"
	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/report"
	"casheye/internal/sheets"
)

// SheetsSyncConfig holds configuration for the sheets mirror
type SheetsSyncConfig struct {
	// ResyncInterval is how often the whole ledger is re-sent (default: 10m)
	ResyncInterval time.Duration

	// SummarySheet receives the monthly income/expense/balance table
	SummarySheet string

	// AnalysisSheets also writes the major and minor matrices to sheets
	// named after their section labels
	AnalysisSheets bool
}

// DefaultSheetsSyncConfig returns sensible defaults
func DefaultSheetsSyncConfig() SheetsSyncConfig {
	return SheetsSyncConfig{
		ResyncInterval: 10 * time.Minute,
		SummarySheet:   "月次集計",
	}
}

// LedgerSource provides the authoritative ledger for periodic resyncs.
type LedgerSource interface {
	Load(ctx context.Context) ([]core.ReceiptLine, error)
}

// SheetsSync mirrors ledger events into a spreadsheet and keeps the summary
// sheet current. Appends are de-duplicated by the sink, so redelivered
// events are harmless.
type SheetsSync struct {
	sink   sheets.Sink
	source LedgerSource
	engine *report.Engine
	config SheetsSyncConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSheetsSync creates a new sheets mirror. source may be nil, in which
// case the periodic resync only rebuilds the summary from the sheet.
func NewSheetsSync(sink sheets.Sink, source LedgerSource, engine *report.Engine, config SheetsSyncConfig, logger *log.Logger) *SheetsSync {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &SheetsSync{
		sink:   sink,
		source: source,
		engine: engine,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerAppended is the amqp.Handler for ledger events.
func (s *SheetsSync) HandleLedgerAppended(ctx context.Context, msg *amqp.LedgerAppendedMessage) error {
	if s.sink == nil {
		return fmt.Errorf("sheets sync not properly initialized")
	}
	written, err := s.sink.AppendLines(ctx, msg.Lines)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	s.logger.InfoContext(ctx, "Mirrored ledger lines to sheets",
		"source", msg.Source,
		"received", len(msg.Lines),
		"written", written)

	if written == 0 {
		return nil
	}
	return s.RefreshSummary(ctx)
}

// RefreshSummary rebuilds the report tables from the mirrored lines.
func (s *SheetsSync) RefreshSummary(ctx context.Context) error {
	lines, err := s.sink.ListLines(ctx)
	if err != nil {
		return fmt.Errorf("list mirrored lines: %w", err)
	}

	summary := report.ExportMonthlyTable(s.engine.MonthlySummaries(lines))
	if err := s.sink.WriteTable(ctx, s.config.SummarySheet, summary); err != nil {
		return fmt.Errorf("write summary sheet: %w", err)
	}
	if s.config.AnalysisSheets {
		for _, t := range s.engine.ExportFullAnalysis(lines)[1:] {
			if err := s.sink.WriteTable(ctx, t.Name, t); err != nil {
				return fmt.Errorf("write %s sheet: %w", t.Name, err)
			}
		}
	}

	s.logger.DebugContext(ctx, "Summary sheet refreshed", "periods", len(summary.Periods))
	return nil
}

// Resync re-sends the authoritative ledger and rebuilds the summary.
func (s *SheetsSync) Resync(ctx context.Context) error {
	if s.source != nil {
		lines, err := s.source.Load(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		written, err := s.sink.AppendLines(ctx, lines)
		if err != nil {
			return fmt.Errorf("append to sheets: %w", err)
		}
		if written > 0 {
			s.logger.InfoContext(ctx, "Resync wrote missing lines", "written", written)
		}
	}
	return s.RefreshSummary(ctx)
}

// Start begins the resync loop. Returns an error if already running.
func (s *SheetsSync) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sheets sync is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Sheets sync started",
		"resync_interval", s.config.ResyncInterval,
		"summary_sheet", s.config.SummarySheet)

	return nil
}

// Stop gracefully stops the loop and waits for completion.
func (s *SheetsSync) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "Sheets sync stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Sheets sync stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the loop is currently running
func (s *SheetsSync) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SheetsSync) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.ResyncInterval)
	defer ticker.Stop()

	// Resync immediately on startup
	s.resync(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.resync(ctx)
		}
	}
}

func (s *SheetsSync) resync(ctx context.Context) {
	if err := s.Resync(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Sheets resync failed", log.FieldError, err)
	}
}
