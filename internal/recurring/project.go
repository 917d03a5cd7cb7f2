// Package recurring projects recurring rules onto the ledger.
package recurring

import (
	"casheye/internal/category"
	"casheye/internal/core"
)

// IncomeClassifier reports whether a major category is tagged as income.
type IncomeClassifier interface {
	IsIncome(major string) bool
}

// Project returns the ledger lines the rules owe up to today that are not
// yet present in ledger. It is pure: neither argument is modified, and
// calling it again with its own output merged into ledger yields nothing.
//
// A rule's day is clamped to the last day of short months. A month whose
// target date lies after today ends that rule's walk. A rule without a
// usable start period starts in today's period.
//
// The rule's IsIncome flag decides the sign. When income disagrees with the
// rule about its major, the line is filed under category.IncomeMajor or
// category.UnfiledMajor instead. income may be nil.
func Project(rules []core.RecurringRule, ledger []core.ReceiptLine, today core.Date, income IncomeClassifier) []core.ReceiptLine {
	seen := make(map[core.LineKey]struct{}, len(ledger))
	for _, l := range ledger {
		seen[l.Key()] = struct{}{}
	}

	current := today.Period()
	var out []core.ReceiptLine
	for _, r := range rules {
		start := r.StartPeriod
		if start.IsZero() {
			start = current
		}
		for p := start; !p.After(current); p = p.Next() {
			if r.EndPeriod != nil && p.After(*r.EndPeriod) {
				break
			}
			target := p.DateOn(r.DayOfMonth)
			if target.After(today) {
				break
			}
			line := lineFor(r, target, income)
			k := line.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, line)
		}
	}
	return out
}

func lineFor(r core.RecurringRule, on core.Date, income IncomeClassifier) core.ReceiptLine {
	return core.ReceiptLine{
		Date:            on,
		Store:           core.RecurringStore,
		Name:            r.Title,
		MajorCategory:   majorFor(r, income),
		MinorCategory:   r.MinorCategory,
		PriceNet:        r.Amount,
		PriceIncludeTax: r.Amount,
	}
}

func majorFor(r core.RecurringRule, income IncomeClassifier) string {
	major := r.MajorCategory
	if income == nil {
		if major == "" && r.IsIncome {
			return category.IncomeMajor
		}
		return major
	}
	switch tagged := income.IsIncome(major); {
	case r.IsIncome && !tagged:
		return category.IncomeMajor
	case !r.IsIncome && tagged:
		return category.UnfiledMajor
	}
	return major
}
