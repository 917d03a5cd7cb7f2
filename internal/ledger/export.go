package ledger

import (
	"strconv"
	"strings"

	"casheye/internal/core"
	"casheye/internal/parser"
)

// LegacyHeader is the header written by older releases, which also used
// slash-separated dates.
const LegacyHeader = "購入日,購入店舗,商品名,大分類,中分類,税抜価格,税込価格"

// Export renders lines as header plus one delimited row per line.
func Export(lines []core.ReceiptLine) string {
	var b strings.Builder
	b.WriteString(parser.Header)
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(Row(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// Row renders one line without a trailing newline.
func Row(l core.ReceiptLine) string {
	return strings.Join([]string{
		l.Date.String(),
		EscapeField(l.Store),
		EscapeField(l.Name),
		EscapeField(l.MajorCategory),
		EscapeField(l.MinorCategory),
		strconv.FormatInt(l.PriceNet, 10),
		strconv.FormatInt(l.PriceIncludeTax, 10),
	}, ",")
}

// EscapeField quotes s when it holds a comma, a double quote or a line
// break, doubling embedded quotes.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// UnescapeField reverses EscapeField. Unquoted input is returned unchanged.
func UnescapeField(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
}
