// Package services composes the ledger, parser, category registry, OCR
// client and event publisher into the operations the outer surfaces call.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"casheye/internal/amqp"
	"casheye/internal/category"
	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/ocr"
	"casheye/internal/parser"
	"casheye/internal/recurring"
	"casheye/internal/report"
)

// Sources recorded on published events.
const (
	SourceImport = "import"
	SourceScan   = "scan"
	SourceManual = "manual"
)

var (
	ErrStale        = errors.New("stale result discarded")
	ErrLineNotFound = errors.New("ledger line not found")
	ErrOCRDisabled  = errors.New("receipt analysis is not configured")
)

type (
	// Publisher announces merged lines to other processes.
	Publisher interface {
		PublishLedgerAppended(ctx context.Context, msg *amqp.LedgerAppendedMessage) error
	}

	// Analyzer reads receipt images.
	Analyzer interface {
		Analyze(ctx context.Context, prompt string, images []ocr.Image) ocr.Result
	}

	// Observer receives merge statistics. *metrics.Metrics implements it.
	Observer interface {
		ObserveImport(added, duplicates, skipped int)
		ObserveRecurring(added int)
		SetLedgerSize(n int)
		StaleResult()
	}
)

// Generation identifies one scan. Only the latest generation may merge.
type Generation uint64

type ImportOptions struct {
	// AllowDuplicates appends every parsed line, bypassing de-duplication.
	AllowDuplicates bool
	Source          string
}

type ImportResult struct {
	Strategy          string              `json:"strategy"`
	Parsed            int                 `json:"parsed"`
	Added             []core.ReceiptLine  `json:"added"`
	Duplicates        int                 `json:"duplicates"`
	Skipped           []parser.SkippedRow `json:"skipped,omitempty"`
	UnknownCategories []string            `json:"unknownCategories,omitempty"`
}

type ScanResult struct {
	ImportResult
	OCR ocr.Result `json:"ocr"`
}

type LedgerService struct {
	store      *ledger.Store
	rules      *ledger.RuleStore
	registry   *category.Registry
	parser     *parser.Parser
	engine     *report.Engine
	analyzer   Analyzer
	publisher  Publisher
	observer   Observer
	logger     *log.Logger
	structured *log.StructuredLogger
	generation atomic.Uint64
}

type Option func(*LedgerService)

func WithAnalyzer(a Analyzer) Option {
	return func(s *LedgerService) { s.analyzer = a }
}

func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *LedgerService) { s.observer = o }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func NewLedgerService(store *ledger.Store, rules *ledger.RuleStore, registry *category.Registry, p *parser.Parser, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:    store,
		rules:    rules,
		registry: registry,
		parser:   p,
		engine:   report.NewEngine(registry),
		logger:   log.Default(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.structured = log.NewStructuredLogger(s.logger)
	return s
}

func (s *LedgerService) Registry() *category.Registry { return s.registry }
func (s *LedgerService) Engine() *report.Engine       { return s.engine }

// Import parses raw text and merges it into the ledger.
func (s *LedgerService) Import(ctx context.Context, raw string, opts ImportOptions) (ImportResult, error) {
	rep := s.parser.ParseReport(ctx, raw)
	return s.merge(ctx, rep, opts)
}

// Begin starts a scan and invalidates every earlier one.
func (s *LedgerService) Begin() Generation {
	return Generation(s.generation.Add(1))
}

// Cancel invalidates the outstanding scan, if any.
func (s *LedgerService) Cancel() {
	s.generation.Add(1)
}

func (s *LedgerService) current(g Generation) bool {
	return Generation(s.generation.Load()) == g
}

// MergeIfCurrent merges rep only when g is still the latest generation.
func (s *LedgerService) MergeIfCurrent(ctx context.Context, g Generation, rep parser.Report, opts ImportOptions) (ImportResult, error) {
	if !s.current(g) {
		if s.observer != nil {
			s.observer.StaleResult()
		}
		s.logger.InfoContext(ctx, "Discarding stale scan result", log.FieldGeneration, uint64(g))
		return ImportResult{}, ErrStale
	}
	return s.merge(ctx, rep, opts)
}

// Scan reads images and merges the result. Provider failures are reported
// in ScanResult.OCR with an empty import, not as errors. A scan superseded
// by Begin or Cancel while in flight returns ErrStale.
func (s *LedgerService) Scan(ctx context.Context, images []ocr.Image) (ScanResult, error) {
	if s.analyzer == nil {
		return ScanResult{}, ErrOCRDisabled
	}
	g := s.Begin()
	res := s.analyzer.Analyze(ctx, parser.BuildPrompt(s.registry), images)
	if !res.OK() {
		return ScanResult{OCR: res}, nil
	}

	rep := s.parser.ParseReport(ctx, res.Text)
	imp, err := s.MergeIfCurrent(ctx, g, rep, ImportOptions{Source: SourceScan})
	res.Text = ""
	return ScanResult{ImportResult: imp, OCR: res}, err
}

func (s *LedgerService) merge(ctx context.Context, rep parser.Report, opts ImportOptions) (ImportResult, error) {
	if opts.Source == "" {
		opts.Source = SourceImport
	}
	out := ImportResult{
		Strategy:          rep.Strategy,
		Parsed:            len(rep.Lines),
		Skipped:           rep.Skipped,
		UnknownCategories: rep.UnknownCategories,
	}

	var size int
	err := s.store.Update(ctx, func(existing []core.ReceiptLine) ([]core.ReceiptLine, error) {
		if opts.AllowDuplicates {
			out.Added = rep.Lines
		} else {
			out.Added = ledger.Diff(existing, rep.Lines)
		}
		next := append(existing, out.Added...)
		size = len(next)
		return next, nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("merge into ledger: %w", err)
	}
	out.Duplicates = out.Parsed - len(out.Added)

	s.structured.LogLedgerMerged(ctx, log.OpMerge, out.Parsed, len(out.Added), out.Duplicates, len(out.Skipped))
	if s.observer != nil {
		s.observer.ObserveImport(len(out.Added), out.Duplicates, len(out.Skipped))
		s.observer.SetLedgerSize(size)
	}
	s.publish(ctx, opts.Source, out.Added)
	return out, nil
}

// LinesAdded publishes lines created outside an import. It satisfies
// recurring.Notifier.
func (s *LedgerService) LinesAdded(ctx context.Context, source string, lines []core.ReceiptLine) {
	if s.observer != nil && source == core.RecurringStore {
		s.observer.ObserveRecurring(len(lines))
	}
	s.publish(ctx, source, lines)
}

func (s *LedgerService) publish(ctx context.Context, source string, lines []core.ReceiptLine) {
	if len(lines) == 0 {
		return
	}
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping ledger event")
		return
	}
	if err := s.publisher.PublishLedgerAppended(ctx, amqp.NewLedgerAppendedMessage(source, lines)); err != nil {
		// The ledger write already succeeded.
		s.structured.LogError(ctx, "Failed to publish ledger event", err, log.ComponentAMQP, log.OpSync,
			log.NewFields().WithMerge(len(lines), len(lines), 0, 0))
	}
}

// AddManual appends one hand-entered line. Manual entries are never
// de-duplicated.
func (s *LedgerService) AddManual(ctx context.Context, l core.ReceiptLine) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.Store == "" {
		l.Store = core.ManualStore
	}
	_, err := s.merge(ctx, parser.Report{Strategy: SourceManual, Lines: []core.ReceiptLine{l}},
		ImportOptions{AllowDuplicates: true, Source: SourceManual})
	return err
}

// UpdateLine replaces the first line with identity key.
func (s *LedgerService) UpdateLine(ctx context.Context, key core.LineKey, l core.ReceiptLine) error {
	if err := l.Validate(); err != nil {
		return err
	}
	return s.store.Update(ctx, func(lines []core.ReceiptLine) ([]core.ReceiptLine, error) {
		i := slices.IndexFunc(lines, func(x core.ReceiptLine) bool { return x.Key() == key })
		if i < 0 {
			return nil, ErrLineNotFound
		}
		lines[i] = l
		return lines, nil
	})
}

// DeleteLine removes the first line with identity key.
func (s *LedgerService) DeleteLine(ctx context.Context, key core.LineKey) error {
	return s.store.Update(ctx, func(lines []core.ReceiptLine) ([]core.ReceiptLine, error) {
		i := slices.IndexFunc(lines, func(x core.ReceiptLine) bool { return x.Key() == key })
		if i < 0 {
			return nil, ErrLineNotFound
		}
		return slices.Delete(lines, i, i+1), nil
	})
}

// SwapTax converts the line between net and gross entry and returns the
// updated line.
func (s *LedgerService) SwapTax(ctx context.Context, key core.LineKey, toNet bool) (core.ReceiptLine, error) {
	var updated core.ReceiptLine
	err := s.store.Update(ctx, func(lines []core.ReceiptLine) ([]core.ReceiptLine, error) {
		i := slices.IndexFunc(lines, func(x core.ReceiptLine) bool { return x.Key() == key })
		if i < 0 {
			return nil, ErrLineNotFound
		}
		lines[i] = core.SwapTax(lines[i], toNet)
		updated = lines[i]
		return lines, nil
	})
	return updated, err
}

func (s *LedgerService) Ledger(ctx context.Context) ([]core.ReceiptLine, error) {
	return s.store.Load(ctx)
}

// Export renders the whole ledger in the delimited format.
func (s *LedgerService) Export(ctx context.Context) (string, error) {
	lines, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return ledger.Export(lines), nil
}

func (s *LedgerService) Summaries(ctx context.Context) ([]core.MonthlySummary, error) {
	lines, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.MonthlySummaries(lines), nil
}

func (s *LedgerService) MajorMatrix(ctx context.Context) (report.Matrix, error) {
	lines, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.MajorCategoryMatrix(lines), nil
}

func (s *LedgerService) MinorMatrix(ctx context.Context, major string) (report.Matrix, error) {
	lines, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.MinorCategoryMatrix(lines, major), nil
}

// Analysis returns the summary, major and minor tables.
func (s *LedgerService) Analysis(ctx context.Context) ([]report.Table, error) {
	lines, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.ExportFullAnalysis(lines), nil
}

func (s *LedgerService) Rules(ctx context.Context) ([]core.RecurringRule, error) {
	return s.rules.Load(ctx)
}

// PutRule validates r, assigns an id to new rules and stores it. An income
// rule whose major is not tagged as income is filed under the income major.
func (s *LedgerService) PutRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if r.ID == "" {
		r = core.NewRecurringRule(r)
	}
	if r.IsIncome && !s.registry.IsIncome(r.MajorCategory) {
		r.MajorCategory = category.IncomeMajor
	}
	if err := s.rules.Put(ctx, r); err != nil {
		return core.RecurringRule{}, err
	}
	return r, nil
}

func (s *LedgerService) DeleteRule(ctx context.Context, id string) error {
	return s.rules.Delete(ctx, id)
}

// RunRecurring projects the rules up to today into the ledger.
func (s *LedgerService) RunRecurring(ctx context.Context, today core.Date) ([]core.ReceiptLine, error) {
	return recurring.NewProcessor(s.rules, s.store, s.registry, s, s.logger).Run(ctx, today)
}
