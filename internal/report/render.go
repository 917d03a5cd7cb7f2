package report

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable prints t as a rounded terminal table with right-aligned
// amounts.
func RenderTable(w io.Writer, t Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := table.Row{}
	for _, h := range t.Header() {
		header = append(header, h)
	}
	tw.AppendHeader(header)

	for _, r := range t.Rows {
		row := table.Row{r.Label}
		for _, v := range r.Values {
			row = append(row, formatYen(v))
		}
		tw.AppendRow(row)
	}

	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	configs := make([]table.ColumnConfig, 0, len(t.Periods))
	for i := range t.Periods {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

// formatYen groups digits by thousands.
func formatYen(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := false
	if v < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
