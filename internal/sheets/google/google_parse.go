package google

import (
	"fmt"
	"strings"

	"casheye/internal/core"
)

// parseLedgerRows converts a values matrix (as returned by the Sheets API)
// into ledger lines. The header row and rows that do not hold a date in
// column A are skipped, so hand-made notes in the sheet are tolerated.
func parseLedgerRows(values [][]any) []core.ReceiptLine {
	var out []core.ReceiptLine
	for _, raw := range values {
		row := toStrings(raw)
		date, err := core.ParseDate(safeGet(row, 0))
		if err != nil {
			continue
		}
		net, err := core.ParseAmount(safeGet(row, 5))
		if err != nil {
			continue
		}
		gross, err := core.ParseAmount(safeGet(row, 6))
		if err != nil {
			continue
		}
		out = append(out, core.ReceiptLine{
			Date:            date,
			Store:           safeGet(row, 1),
			Name:            safeGet(row, 2),
			MajorCategory:   safeGet(row, 3),
			MinorCategory:   safeGet(row, 4),
			PriceNet:        net,
			PriceIncludeTax: gross,
		})
	}
	return out
}

func lineRow(l core.ReceiptLine) []any {
	return []any{l.Date.String(), l.Store, l.Name, l.MajorCategory, l.MinorCategory, l.PriceNet, l.PriceIncludeTax}
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
