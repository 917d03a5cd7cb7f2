package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casheye/internal/amqp"
	"casheye/internal/category"
	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/ocr"
	"casheye/internal/parser"
	"casheye/internal/storage"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.LedgerAppendedMessage
	err      error
}

func (f *fakePublisher) PublishLedgerAppended(_ context.Context, msg *amqp.LedgerAppendedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.err
}

type fakeObserver struct {
	added, dups, skipped, recurring, size, stale int
}

func (f *fakeObserver) ObserveImport(added, dups, skipped int) {
	f.added += added
	f.dups += dups
	f.skipped += skipped
}
func (f *fakeObserver) ObserveRecurring(n int) { f.recurring += n }
func (f *fakeObserver) SetLedgerSize(n int)    { f.size = n }
func (f *fakeObserver) StaleResult()           { f.stale++ }

// fakeAnalyzer returns result, optionally running before first.
type fakeAnalyzer struct {
	result ocr.Result
	before func()
	prompt string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, prompt string, _ []ocr.Image) ocr.Result {
	f.prompt = prompt
	if f.before != nil {
		f.before()
	}
	return f.result
}

func newService(t *testing.T, opts ...Option) (*LedgerService, storage.KV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	registry := category.NewRegistry(ledger.NewCategoryStore(kv))
	p := parser.New(registry, parser.WithLogger(log.Discard()))
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	svc := NewLedgerService(
		ledger.NewStore(kv, p, log.Discard()),
		ledger.NewRuleStore(kv, log.Discard()),
		registry, p, opts...)
	return svc, kv
}

const sample = parser.Header + "\n" +
	"2025-01-05,スーパーA,牛乳,食費,乳製品,180,198\n" +
	"2025-01-05,スーパーA,卵,食費,卵,200,216\n" +
	"2025-01-25,会社,給料,収入,給与,300000,300000\n"

func TestImportMergesAndDeduplicates(t *testing.T) {
	pub := &fakePublisher{}
	obs := &fakeObserver{}
	svc, _ := newService(t, WithPublisher(pub), WithObserver(obs))
	ctx := context.Background()

	res, err := svc.Import(ctx, sample, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Parsed)
	assert.Len(t, res.Added, 3)
	assert.Zero(t, res.Duplicates)

	res, err = svc.Import(ctx, sample, ImportOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, 3, res.Duplicates)

	lines, err := svc.Ledger(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, SourceImport, pub.messages[0].Source)
	assert.Equal(t, 3, obs.added)
	assert.Equal(t, 3, obs.dups)
	assert.Equal(t, 3, obs.size)
}

func TestImportAllowDuplicates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, sample, ImportOptions{})
	require.NoError(t, err)
	res, err := svc.Import(ctx, sample, ImportOptions{AllowDuplicates: true})
	require.NoError(t, err)
	assert.Len(t, res.Added, 3)

	lines, err := svc.Ledger(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 6)
}

func TestImportReportsSkippedRows(t *testing.T) {
	svc, _ := newService(t)
	raw := parser.Header + "\n" +
		"2025-01-05,A,Milk,食費,乳製品,180,198\n" +
		"not a row\n"

	res, err := svc.Import(context.Background(), raw, ImportOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Skipped, 1)
}

func TestPublishFailureDoesNotFailImport(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, _ := newService(t, WithPublisher(pub))

	res, err := svc.Import(context.Background(), sample, ImportOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Added, 3)
}

const scanJSON = `{"receipts":[{"date":"2025-02-01","store":"コンビニ","items":[
 {"name":"おにぎり","major_category":"食費","minor_category":"主食","price_excl_tax":120,"price_incl_tax":129}]}]}`

func TestScanMergesAnalyzerOutput(t *testing.T) {
	an := &fakeAnalyzer{result: ocr.Result{Text: scanJSON, Model: "m"}}
	pub := &fakePublisher{}
	svc, _ := newService(t, WithAnalyzer(an), WithPublisher(pub))

	res, err := svc.Scan(context.Background(), []ocr.Image{{MIMEType: "image/jpeg", Data: []byte{1}}})
	require.NoError(t, err)
	assert.True(t, res.OCR.OK())
	require.Len(t, res.Added, 1)
	assert.Equal(t, "おにぎり", res.Added[0].Name)
	assert.Contains(t, an.prompt, "食費")
	require.Len(t, pub.messages, 1)
	assert.Equal(t, SourceScan, pub.messages[0].Source)
}

func TestScanFailureLeavesLedger(t *testing.T) {
	an := &fakeAnalyzer{result: ocr.Result{Err: ocr.KindTimeout, Detail: "deadline"}}
	svc, _ := newService(t, WithAnalyzer(an))
	ctx := context.Background()

	res, err := svc.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ocr.KindTimeout, res.OCR.Err)
	assert.Empty(t, res.Added)

	lines, err := svc.Ledger(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestScanSupersededIsDiscarded(t *testing.T) {
	obs := &fakeObserver{}
	an := &fakeAnalyzer{result: ocr.Result{Text: scanJSON}}
	svc, _ := newService(t, WithAnalyzer(an), WithObserver(obs))
	an.before = svc.Cancel
	ctx := context.Background()

	_, err := svc.Scan(ctx, nil)
	require.ErrorIs(t, err, ErrStale)
	assert.Equal(t, 1, obs.stale)

	lines, err := svc.Ledger(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestScanWithoutAnalyzer(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrOCRDisabled)
}

func TestMergeIfCurrent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	rep := parser.Report{Lines: []core.ReceiptLine{{
		Date: core.NewDate(2025, 3, 1), Name: "x", MajorCategory: "食費", PriceIncludeTax: 1,
	}}}

	first := svc.Begin()
	second := svc.Begin()

	_, err := svc.MergeIfCurrent(ctx, first, rep, ImportOptions{})
	assert.ErrorIs(t, err, ErrStale)

	res, err := svc.MergeIfCurrent(ctx, second, rep, ImportOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
}

func TestManualEdits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	l := core.ReceiptLine{Date: core.NewDate(2025, 4, 1), Name: "本", MajorCategory: "教養", PriceNet: 1000, PriceIncludeTax: 1100}

	require.NoError(t, svc.AddManual(ctx, l))
	require.NoError(t, svc.AddManual(ctx, l))
	lines, err := svc.Ledger(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, core.ManualStore, lines[0].Store)

	assert.ErrorIs(t, svc.AddManual(ctx, core.ReceiptLine{Date: core.NewDate(2025, 4, 1)}), core.ErrEmptyName)

	swapped, err := svc.SwapTax(ctx, l.Key(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), swapped.PriceNet)
	assert.Equal(t, int64(1210), swapped.PriceIncludeTax)

	edited := swapped
	edited.Name = "雑誌"
	require.NoError(t, svc.UpdateLine(ctx, swapped.Key(), edited))
	require.NoError(t, svc.DeleteLine(ctx, edited.Key()))

	lines, err = svc.Ledger(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "本", lines[0].Name)

	assert.ErrorIs(t, svc.DeleteLine(ctx, edited.Key()), ErrLineNotFound)
	assert.ErrorIs(t, svc.UpdateLine(ctx, edited.Key(), edited), ErrLineNotFound)
}

func TestQueries(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, sample, ImportOptions{})
	require.NoError(t, err)

	summaries, err := svc.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(300000), summaries[0].IncomeTotal)
	assert.Equal(t, int64(414), summaries[0].ExpenseTotal)

	major, err := svc.MajorMatrix(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(414), major.Get("食費", "2025-01"))

	minor, err := svc.MinorMatrix(ctx, "食費")
	require.NoError(t, err)
	assert.Equal(t, int64(198), minor.Get("乳製品", "2025-01"))

	tables, err := svc.Analysis(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 3)

	out, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "牛乳")
}

func TestRulesAndRecurring(t *testing.T) {
	pub := &fakePublisher{}
	obs := &fakeObserver{}
	svc, _ := newService(t, WithPublisher(pub), WithObserver(obs))
	ctx := context.Background()

	_, err := svc.PutRule(ctx, core.RecurringRule{Title: "家賃"})
	assert.Error(t, err)

	rent, err := svc.PutRule(ctx, core.RecurringRule{
		Title: "家賃", Amount: 80000, MajorCategory: "住居", DayOfMonth: 27,
		StartPeriod: core.NewPeriod(2025, time.January),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rent.ID)

	pay, err := svc.PutRule(ctx, core.RecurringRule{
		Title: "給料", Amount: 300000, MajorCategory: "食費", DayOfMonth: 25,
		StartPeriod: core.NewPeriod(2025, time.January), IsIncome: true,
	})
	require.NoError(t, err)
	assert.Equal(t, category.IncomeMajor, pay.MajorCategory)

	added, err := svc.RunRecurring(ctx, core.NewDate(2025, 2, 26))
	require.NoError(t, err)
	// rent 01-27, pay 01-25, pay 02-25
	assert.Len(t, added, 3)
	assert.Equal(t, 3, obs.recurring)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, core.RecurringStore, pub.messages[0].Source)

	added, err = svc.RunRecurring(ctx, core.NewDate(2025, 2, 26))
	require.NoError(t, err)
	assert.Empty(t, added)

	require.NoError(t, svc.DeleteRule(ctx, rent.ID))
	assert.ErrorIs(t, svc.DeleteRule(ctx, rent.ID), ledger.ErrRuleNotFound)

	rules, err := svc.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
