package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"casheye/internal/core"
	"casheye/internal/ledger"
)

// Section labels used by the analysis export.
const (
	LabelKind    = "区分"
	LabelSummary = "サマリー"
	LabelMajor   = "大分類"
	LabelMinor   = "中分類"
	LabelIncome  = "収入"
	LabelExpense = "支出"
	LabelBalance = "残高"
)

// Row is one labelled series of period totals.
type Row struct {
	Label  string  `json:"label"`
	Values []int64 `json:"values"`
}

// Table is a labelled grid with one column per period.
type Table struct {
	Name    string   `json:"name"`
	Periods []string `json:"periods"`
	Rows    []Row    `json:"rows"`
}

// Header returns the first row of the table: its name followed by the
// period columns.
func (t Table) Header() []string {
	return append([]string{t.Name}, t.Periods...)
}

// CSV renders the table as delimited text with escaped labels.
func (t Table) CSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Header(), ","))
	b.WriteByte('\n')
	for _, r := range t.Rows {
		b.WriteString(ledger.EscapeField(r.Label))
		for _, v := range r.Values {
			b.WriteByte(',')
			b.WriteString(strconv.FormatInt(v, 10))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ExportMonthlyTable lays out income, expense and balance per period.
func ExportMonthlyTable(summaries []core.MonthlySummary) Table {
	t := Table{Name: LabelKind, Periods: Periods(summaries)}
	income := Row{Label: LabelIncome}
	expense := Row{Label: LabelExpense}
	balance := Row{Label: LabelBalance}
	for _, s := range summaries {
		income.Values = append(income.Values, s.IncomeTotal)
		expense.Values = append(expense.Values, s.ExpenseTotal)
		balance.Values = append(balance.Values, s.Balance)
	}
	t.Rows = []Row{income, expense, balance}
	return t
}

// MatrixTable lays m out over periods. Missing cells become zero.
func MatrixTable(name string, m Matrix, periods []string) Table {
	t := Table{Name: name, Periods: periods}
	for _, label := range m.Rows() {
		r := Row{Label: label, Values: make([]int64, len(periods))}
		for i, p := range periods {
			r.Values[i] = m.Get(label, p)
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// ExportFullAnalysis returns the summary, major and minor sections over the
// periods present in lines. Minor rows are labelled "minor（major）" and
// ordered by major then minor.
func (e *Engine) ExportFullAnalysis(lines []core.ReceiptLine) []Table {
	summaries := e.MonthlySummaries(lines)
	periods := Periods(summaries)

	summary := ExportMonthlyTable(summaries)
	summary.Name = LabelSummary

	major := MatrixTable(LabelMajor, e.MajorCategoryMatrix(lines), periods)

	type pair struct{ major, minor string }
	var pairs []pair
	seen := map[pair]bool{}
	for _, l := range lines {
		if e.isIncome(l) {
			continue
		}
		p := pair{l.MajorCategory, l.MinorCategory}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].major != pairs[j].major {
			return pairs[i].major < pairs[j].major
		}
		return pairs[i].minor < pairs[j].minor
	})

	minor := Table{Name: LabelMinor, Periods: periods}
	matrices := map[string]Matrix{}
	for _, p := range pairs {
		m, ok := matrices[p.major]
		if !ok {
			m = e.MinorCategoryMatrix(lines, p.major)
			matrices[p.major] = m
		}
		r := Row{Label: fmt.Sprintf("%s（%s）", p.minor, p.major), Values: make([]int64, len(periods))}
		for i, period := range periods {
			r.Values[i] = m.Get(p.minor, period)
		}
		minor.Rows = append(minor.Rows, r)
	}

	return []Table{summary, major, minor}
}

// JoinCSV renders tables one after the other separated by a blank line.
func JoinCSV(tables []Table) string {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		parts = append(parts, t.CSV())
	}
	return strings.Join(parts, "\n")
}
