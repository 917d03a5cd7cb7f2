package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"casheye/internal/core"
)

// Failure says why a strategy produced nothing usable.
type Failure int

const (
	FailureNone Failure = iota
	// FailureNotApplicable means the input is not in this strategy's format.
	FailureNotApplicable
	// FailureMalformed means the input looked like this format but did not decode.
	FailureMalformed
	// FailureEmpty means there was no content after normalisation.
	FailureEmpty
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNotApplicable:
		return "not_applicable"
	case FailureMalformed:
		return "malformed"
	case FailureEmpty:
		return "empty"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// Skip reasons reported for rejected rows and items.
const (
	ReasonTooFewFields = "too few fields"
	ReasonInvalidDate  = "invalid date"
	ReasonInvalidPrice = "invalid price"
	ReasonMissingField = "missing field"
	ReasonNonInteger   = "non-integer price"
)

// SkippedRow is a row or JSON item that was dropped.
type SkippedRow struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
	Fields int    `json:"fields"`
}

// Result is what a strategy returns. It never carries an error; a strategy
// that cannot handle the input reports it through Failure.
type Result struct {
	Lines   []core.ReceiptLine
	Skipped []SkippedRow
	Failure Failure
	Detail  string
}

// Strategy is one input format. Strategies are tried in a fixed order.
type Strategy interface {
	Name() string
	Apply(text string) Result
}

// Delimited parses comma-separated rows behind a single header line.
type Delimited struct{}

func (Delimited) Name() string { return "delimited" }

func (Delimited) Apply(text string) Result {
	recs := records(text)
	if len(recs) == 0 {
		return Result{Failure: FailureEmpty}
	}
	var res Result
	// first content record is the header, dropped exactly once
	for i, rec := range recs[1:] {
		line, skip, ok := parseRow(rec)
		if !ok {
			skip.Line = i + 2
			res.Skipped = append(res.Skipped, skip)
			continue
		}
		res.Lines = append(res.Lines, line)
	}
	return res
}

// splitRow reads quoted fields with encoding/csv. A record whose quote never
// closes is split positionally, keeping the quote as literal text.
func splitRow(rec string) []string {
	if strings.Contains(rec, `"`) && !quoteOpen(rec, false) {
		r := csv.NewReader(strings.NewReader(rec))
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		if fields, err := r.Read(); err == nil {
			return fields
		}
	}
	return strings.Split(rec, ",")
}

func parseRow(rec string) (core.ReceiptLine, SkippedRow, bool) {
	fields := splitRow(rec)
	skip := SkippedRow{Text: rec, Fields: len(fields)}
	if len(fields) < FieldCount {
		skip.Reason = ReasonTooFewFields
		return core.ReceiptLine{}, skip, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	date, err := core.ParseDate(foldField(fields[0]))
	if err != nil {
		skip.Reason = ReasonInvalidDate
		return core.ReceiptLine{}, skip, false
	}
	net, err := core.ParseAmount(foldField(fields[5]))
	if err != nil {
		skip.Reason = ReasonInvalidPrice
		return core.ReceiptLine{}, skip, false
	}
	gross, err := core.ParseAmount(foldField(fields[6]))
	if err != nil {
		skip.Reason = ReasonInvalidPrice
		return core.ReceiptLine{}, skip, false
	}

	return core.ReceiptLine{
		Date:            date,
		Store:           fields[1],
		Name:            fields[2],
		MajorCategory:   fields[3],
		MinorCategory:   fields[4],
		PriceNet:        net,
		PriceIncludeTax: gross,
	}, skip, true
}

// JSONEnvelope accepts {"receipts":[{date,store,items:[...]}]} and flattens
// it into delimited text before row parsing.
type JSONEnvelope struct{}

func (JSONEnvelope) Name() string { return "json" }

type receiptJSON struct {
	Date  *string           `json:"date"`
	Store *string           `json:"store"`
	Items []json.RawMessage `json:"items"`
}

type itemJSON struct {
	Name     *string         `json:"name"`
	Major    *string         `json:"major_category"`
	Minor    *string         `json:"minor_category"`
	PriceNet json.RawMessage `json:"price_excl_tax"`
	PriceInc json.RawMessage `json:"price_incl_tax"`
}

func (JSONEnvelope) Apply(text string) Result {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Result{Failure: FailureNotApplicable}
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
		return Result{Failure: FailureMalformed, Detail: err.Error()}
	}
	rawReceipts, ok := root["receipts"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(rawReceipts), []byte("[")) {
		return Result{Failure: FailureNotApplicable}
	}
	var receipts []json.RawMessage
	if err := json.Unmarshal(rawReceipts, &receipts); err != nil {
		return Result{Failure: FailureMalformed, Detail: err.Error()}
	}

	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	var skipped []SkippedRow
	for ri, raw := range receipts {
		var rc receiptJSON
		if err := json.Unmarshal(raw, &rc); err != nil || rc.Date == nil {
			skipped = append(skipped, SkippedRow{Line: ri + 1, Text: string(raw), Reason: ReasonMissingField})
			continue
		}
		store := ""
		if rc.Store != nil {
			store = sanitize(*rc.Store)
		}
		for ii, rawItem := range rc.Items {
			row, reason := flattenItem(*rc.Date, store, rawItem)
			if reason != "" {
				skipped = append(skipped, SkippedRow{Line: ri + 1, Text: fmt.Sprintf("item %d: %s", ii+1, rawItem), Reason: reason})
				continue
			}
			b.WriteString(row)
			b.WriteByte('\n')
		}
	}

	res := Delimited{}.Apply(b.String())
	res.Skipped = append(skipped, res.Skipped...)
	if res.Failure == FailureEmpty {
		res.Failure = FailureNone
	}
	return res
}

func flattenItem(date, store string, raw json.RawMessage) (string, string) {
	var it itemJSON
	if err := json.Unmarshal(raw, &it); err != nil {
		return "", ReasonMissingField
	}
	if it.Name == nil || it.Major == nil || it.Minor == nil {
		return "", ReasonMissingField
	}
	net, ok := integerValue(it.PriceNet)
	if !ok {
		return "", ReasonNonInteger
	}
	gross, ok := integerValue(it.PriceInc)
	if !ok {
		return "", ReasonNonInteger
	}
	return strings.Join([]string{
		quote(sanitize(date)),
		quote(store),
		quote(sanitize(*it.Name)),
		quote(sanitize(*it.Major)),
		quote(sanitize(*it.Minor)),
		strconv.FormatInt(net, 10),
		strconv.FormatInt(gross, 10),
	}, ","), ""
}

// integerValue accepts a JSON number with no fractional part.
func integerValue(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return 0, false
	}
	if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

var sanitizer = strings.NewReplacer(",", " ", "\n", " ", "\r", " ")

func sanitize(s string) string {
	return strings.TrimSpace(sanitizer.Replace(s))
}

// quote protects a literal double quote from the row splitter.
func quote(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
