// Package report aggregates the ledger into monthly summaries and category
// matrices, and renders them as tables, CSV text, xlsx workbooks or
// terminal output.
//
// All aggregation is integer arithmetic over PriceIncludeTax. Nothing is
// cached: every call recomputes from the ledger it is given.
package report

import (
	"maps"
	"slices"

	"casheye/internal/core"
)

// IncomeClassifier tells income majors apart from expense majors.
type IncomeClassifier interface {
	IsIncome(major string) bool
}

// Matrix maps a row label (major or minor category) to period totals keyed
// by "YYYY-MM". A missing cell means zero.
type Matrix map[string]map[string]int64

// Get returns the cell value, zero when absent.
func (m Matrix) Get(row, period string) int64 {
	return m[row][period]
}

// Rows returns the row labels in sorted order.
func (m Matrix) Rows() []string {
	return slices.Sorted(maps.Keys(m))
}

// Periods returns every period present in m, ascending.
func (m Matrix) Periods() []string {
	seen := map[string]struct{}{}
	for _, cols := range m {
		for p := range cols {
			seen[p] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

type Engine struct {
	income IncomeClassifier
}

func NewEngine(income IncomeClassifier) *Engine {
	return &Engine{income: income}
}

func (e *Engine) isIncome(l core.ReceiptLine) bool {
	return e.income != nil && e.income.IsIncome(l.MajorCategory)
}

// MonthlySummaries groups lines by period, ascending.
func (e *Engine) MonthlySummaries(lines []core.ReceiptLine) []core.MonthlySummary {
	byPeriod := map[core.Period]*core.MonthlySummary{}
	for _, l := range lines {
		p := l.Period()
		s, ok := byPeriod[p]
		if !ok {
			s = &core.MonthlySummary{Period: p, MajorCategoryTotals: map[string]int64{}}
			byPeriod[p] = s
		}
		if e.isIncome(l) {
			s.IncomeTotal += l.PriceIncludeTax
			continue
		}
		s.ExpenseTotal += l.PriceIncludeTax
		s.MajorCategoryTotals[l.MajorCategory] += l.PriceIncludeTax
	}

	out := make([]core.MonthlySummary, 0, len(byPeriod))
	for _, s := range byPeriod {
		s.Balance = s.IncomeTotal - s.ExpenseTotal
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b core.MonthlySummary) int {
		switch {
		case a.Period.Before(b.Period):
			return -1
		case b.Period.Before(a.Period):
			return 1
		}
		return 0
	})
	return out
}

// MajorCategoryMatrix sums expense lines by major category and period.
func (e *Engine) MajorCategoryMatrix(lines []core.ReceiptLine) Matrix {
	return e.matrix(lines, func(l core.ReceiptLine) (string, bool) {
		return l.MajorCategory, true
	})
}

// MinorCategoryMatrix sums the expense lines of one major category by
// minor category and period.
func (e *Engine) MinorCategoryMatrix(lines []core.ReceiptLine, major string) Matrix {
	return e.matrix(lines, func(l core.ReceiptLine) (string, bool) {
		return l.MinorCategory, l.MajorCategory == major
	})
}

func (e *Engine) matrix(lines []core.ReceiptLine, row func(core.ReceiptLine) (string, bool)) Matrix {
	m := Matrix{}
	for _, l := range lines {
		if e.isIncome(l) {
			continue
		}
		label, ok := row(l)
		if !ok {
			continue
		}
		cols, ok := m[label]
		if !ok {
			cols = map[string]int64{}
			m[label] = cols
		}
		cols[l.Period().String()] += l.PriceIncludeTax
	}
	return m
}

// FilterPeriod keeps the lines dated in p.
func FilterPeriod(lines []core.ReceiptLine, p core.Period) []core.ReceiptLine {
	var out []core.ReceiptLine
	for _, l := range lines {
		if l.Period() == p {
			out = append(out, l)
		}
	}
	return out
}

// FilterYear keeps the lines dated in year.
func FilterYear(lines []core.ReceiptLine, year int) []core.ReceiptLine {
	var out []core.ReceiptLine
	for _, l := range lines {
		if l.Date.Year() == year {
			out = append(out, l)
		}
	}
	return out
}

// Balance returns the running balance over summaries.
func Balance(summaries []core.MonthlySummary) int64 {
	var total int64
	for _, s := range summaries {
		total += s.Balance
	}
	return total
}

// Periods lists the periods covered by summaries in their given order.
func Periods(summaries []core.MonthlySummary) []string {
	out := make([]string, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.Period.String())
	}
	return out
}
