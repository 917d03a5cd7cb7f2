// Package parser turns raw receipt text (OCR output, pasted clipboard text or
// a persisted ledger blob) into receipt lines. It never fails: rows it cannot
// use are skipped and reported.
package parser

import (
	"context"
	"slices"

	"casheye/internal/core"
	"casheye/internal/log"
)

// Categories is the slice of the category registry the parser consults.
type Categories interface {
	Has(major string) bool
}

// Report is the detailed outcome of a parse.
type Report struct {
	Strategy          string             `json:"strategy"`
	Lines             []core.ReceiptLine `json:"lines"`
	Skipped           []SkippedRow       `json:"skipped,omitempty"`
	UnknownCategories []string           `json:"unknownCategories,omitempty"`
	Failure           Failure            `json:"-"`
}

type Parser struct {
	categories Categories
	strategies []Strategy
	logger     *log.Logger
}

type Option func(*Parser)

func WithLogger(l *log.Logger) Option {
	return func(p *Parser) { p.logger = l.WithComponent(log.ComponentParser) }
}

// WithStrategies replaces the default strategy order.
func WithStrategies(s ...Strategy) Option {
	return func(p *Parser) { p.strategies = s }
}

// New returns a parser that tries the JSON envelope first, then delimited
// text. categories may be nil.
func New(categories Categories, opts ...Option) *Parser {
	p := &Parser{
		categories: categories,
		strategies: []Strategy{JSONEnvelope{}, Delimited{}},
		logger:     log.Default(log.ComponentParser),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the usable lines of raw in input order.
func (p *Parser) Parse(raw string) []core.ReceiptLine {
	return p.ParseReport(context.Background(), raw).Lines
}

// ParseReport runs the strategies in order. The first strategy whose result
// is not a failure wins.
func (p *Parser) ParseReport(ctx context.Context, raw string) Report {
	text := normalize(raw)
	var last Result
	for _, s := range p.strategies {
		res := s.Apply(text)
		if res.Failure != FailureNone {
			if res.Failure == FailureMalformed {
				p.logger.WarnContext(ctx, "Input rejected by strategy",
					log.FieldStrategy, s.Name(), log.FieldReason, res.Detail)
			}
			last = res
			continue
		}
		return p.report(ctx, s.Name(), res)
	}
	return Report{Failure: last.Failure}
}

func (p *Parser) report(ctx context.Context, strategy string, res Result) Report {
	for _, sk := range res.Skipped {
		p.logger.WarnContext(ctx, "Skipped row",
			log.FieldLine, sk.Line, log.FieldReason, sk.Reason, log.FieldFields, sk.Fields)
	}
	r := Report{Strategy: strategy, Lines: res.Lines, Skipped: res.Skipped}
	if p.categories != nil {
		for _, l := range res.Lines {
			if l.MajorCategory != "" && !p.categories.Has(l.MajorCategory) && !slices.Contains(r.UnknownCategories, l.MajorCategory) {
				r.UnknownCategories = append(r.UnknownCategories, l.MajorCategory)
			}
		}
	}
	p.logger.DebugContext(ctx, "Parsed input",
		log.FieldStrategy, strategy, log.FieldParsed, len(r.Lines), log.FieldSkipped, len(r.Skipped))
	return r
}
