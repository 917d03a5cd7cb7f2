package parser

import (
	"strings"

	"golang.org/x/text/width"

	"casheye/internal/core"
)

// Header is the canonical first line of delimited ledger text.
const Header = "購入日,購入店舗,商品名,分類大分類,分類中分類,税抜価格,税込価格"

// FieldCount is the number of positional fields in a delimited row.
const FieldCount = 7

// maxRecordLines bounds how many physical lines one quoted field may span.
// A quote still open after that is treated as a stray literal.
const maxRecordLines = 8

// normalize strips the BOM, unifies line endings and drops code fence lines.
// Text fields are left untouched; only dates and prices are folded, after
// the row is split.
func normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\uFEFF", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// foldField folds full-width digits and punctuation (OCR output often
// carries "２０２５／０１／０５") in a date or price field.
func foldField(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

// records splits normalized text into trimmed, non-blank logical records.
// A line that leaves a quoted field open is joined with the following lines
// until the quote closes. When it does not close within maxRecordLines, or a
// complete row comes first, the line stands alone and parsing resumes on the
// next physical line.
func records(text string) []string {
	lines := strings.Split(text, "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !quoteOpen(line, false) {
			out = append(out, line)
			continue
		}
		end, ok := closingLine(lines, i)
		if !ok {
			out = append(out, line)
			continue
		}
		joined := make([]string, 0, end-i+1)
		for _, l := range lines[i : end+1] {
			joined = append(joined, strings.TrimSpace(l))
		}
		out = append(out, strings.Join(joined, "\n"))
		i = end
	}
	return out
}

// closingLine finds the line that closes the quoted field opened on
// lines[start].
func closingLine(lines []string, start int) (int, bool) {
	for j := start + 1; j < len(lines) && j-start < maxRecordLines; j++ {
		line := strings.TrimSpace(lines[j])
		if completeRow(line) {
			return 0, false
		}
		if !quoteOpen(line, true) {
			return j, true
		}
	}
	return 0, false
}

// completeRow reports whether line is a full dated row on its own, which
// never continues a quoted field.
func completeRow(line string) bool {
	if line == "" || quoteOpen(line, false) {
		return false
	}
	fields := splitRow(line)
	if len(fields) < FieldCount {
		return false
	}
	_, err := core.ParseDate(foldField(fields[0]))
	return err == nil
}

// quoteOpen reports whether s ends inside a quoted field. Only a quote at
// the start of a field opens one; stray quotes elsewhere are literal.
func quoteOpen(s string, inQuotes bool) bool {
	fieldStart := !inQuotes
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuotes {
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					i++
					continue
				}
				inQuotes = false
			}
			continue
		}
		if c == '"' && fieldStart {
			inQuotes = true
			fieldStart = false
			continue
		}
		fieldStart = c == ','
	}
	return inQuotes
}
