package recurring

import (
	"context"
	"fmt"

	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
)

type (
	// RuleSource provides the recurring rules.
	RuleSource interface {
		Load(ctx context.Context) ([]core.RecurringRule, error)
	}

	// Ledger is the part of the ledger store the processor writes through.
	Ledger interface {
		Update(ctx context.Context, fn func([]core.ReceiptLine) ([]core.ReceiptLine, error)) error
	}

	// Notifier is told about lines the processor added.
	Notifier interface {
		LinesAdded(ctx context.Context, source string, lines []core.ReceiptLine)
	}
)

// Processor applies the projection to the stored ledger.
type Processor struct {
	rules    RuleSource
	ledger   Ledger
	income   IncomeClassifier
	notifier Notifier
	logger   *log.Logger
}

// NewProcessor wires a processor. income and notifier may be nil.
func NewProcessor(rules RuleSource, l Ledger, income IncomeClassifier, notifier Notifier, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default(log.ComponentRecurring)
	}
	return &Processor{
		rules:    rules,
		ledger:   l,
		income:   income,
		notifier: notifier,
		logger:   logger.WithComponent(log.ComponentRecurring),
	}
}

// Run projects every rule up to today and appends the new lines. It returns
// the lines that were added.
func (p *Processor) Run(ctx context.Context, today core.Date) ([]core.ReceiptLine, error) {
	if p.rules == nil || p.ledger == nil {
		return nil, fmt.Errorf("processor not properly initialized")
	}

	rules, err := p.rules.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring rules: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing recurring rules",
		"total_rules", len(rules),
		"processing_date", today.String())

	var added []core.ReceiptLine
	err = p.ledger.Update(ctx, func(existing []core.ReceiptLine) ([]core.ReceiptLine, error) {
		projected := Project(rules, existing, today, p.income)
		added = ledger.Diff(existing, projected)
		return append(existing, added...), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append projected lines: %w", err)
	}

	for _, l := range added {
		p.logger.InfoContext(ctx, "Created ledger line from recurring rule",
			log.FieldItemName, l.Name,
			log.FieldAmount, l.PriceIncludeTax,
			log.FieldMajorCategory, l.MajorCategory,
			"date", l.Date.String())
	}

	if len(added) > 0 && p.notifier != nil {
		p.notifier.LinesAdded(ctx, core.RecurringStore, added)
	}

	p.logger.InfoContext(ctx, "Recurring processing complete",
		log.FieldAdded, len(added),
		"total_rules", len(rules))

	return added, nil
}
