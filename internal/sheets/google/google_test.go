package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"casheye/internal/config"
	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/report"
)

// fakeSheets serves the subset of the Sheets v4 values API the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	ledger  [][]any
	cleared []string
	written map[string][][]any
	appends int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, _ := strings.Cut(r.URL.Path, "/values/")
	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.ledger})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.ledger = append(f.ledger, vr.Values...)
		f.appends++
		json.NewEncoder(w).Encode(map[string]any{"updates": map[string]any{"updatedRows": len(vr.Values)}})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		f.cleared = append(f.cleared, strings.TrimSuffix(rng, ":clear"))
		json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		if f.written == nil {
			f.written = map[string][][]any{}
		}
		f.written[rng] = vr.Values
		json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(vr.Values)})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(svc, "sheet-id", "家計簿", log.Discard())
}

func testLines() []core.ReceiptLine {
	return []core.ReceiptLine{
		{Date: core.NewDate(2025, 1, 5), Store: "A", Name: "Milk", MajorCategory: "食費", MinorCategory: "乳製品", PriceNet: 180, PriceIncludeTax: 198},
		{Date: core.NewDate(2025, 1, 6), Store: "B", Name: "Soap", MajorCategory: "日用品", MinorCategory: "消耗品", PriceNet: 300, PriceIncludeTax: 330},
	}
}

func TestAppendLinesWritesHeaderAndSkipsKnownRows(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	n, err := c.AppendLines(ctx, testLines()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, fake.ledger, 2)
	assert.Equal(t, "購入日", fake.ledger[0][0])

	n, err = c.AppendLines(ctx, testLines())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, fake.ledger, 3)

	n, err = c.AppendLines(ctx, testLines())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, fake.appends)

	lines, err := c.ListLines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, testLines()[1].Key(), lines[1].Key())
	assert.Equal(t, int64(300), lines[1].PriceNet)
}

func TestWriteTable(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	tbl := report.Table{Name: "区分", Periods: []string{"2025-01"}, Rows: []report.Row{{Label: "収入", Values: []int64{1000}}}}
	require.NoError(t, c.WriteTable(context.Background(), "月次集計", tbl))

	assert.Equal(t, []string{"月次集計!A:ZZ"}, fake.cleared)
	rows := fake.written["月次集計!A1"]
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"区分", "2025-01"}, rows[0])
	assert.Equal(t, "収入", rows[1][0])
	assert.EqualValues(t, 1000, rows[1][1])
}

func TestParseLedgerRows(t *testing.T) {
	values := [][]any{
		{"購入日", "購入店舗", "商品名", "分類大分類", "分類中分類", "税抜価格", "税込価格"},
		{"2025-01-05", "A", "Milk", "食費", "乳製品", float64(180), "198"},
		{"memo"},
		{"2025/01/07", "B", "Tea"},
	}
	got := parseLedgerRows(values)
	require.Len(t, got, 2)
	assert.Equal(t, int64(180), got[0].PriceNet)
	assert.Equal(t, "2025-01-07", got[1].Date.String())
	assert.Equal(t, int64(0), got[1].PriceIncludeTax)
}

func TestNilServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "x", ledgerSheet: "s", logger: log.Discard()}
	_, err := c.ListLines(context.Background())
	assert.Error(t, err)
	assert.Error(t, c.WriteTable(context.Background(), "s", report.Table{}))
}

func TestNewFromConfigRequiresSheetsSettings(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &config.Config{}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Spreadsheet ID")
}

func TestCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))

	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{name: "inline json wins", cfg: config.Config{GoogleServiceAccountJSON: `{"a":1}`, GoogleServiceAccountFile: path}, want: `{"a":1}`},
		{name: "file", cfg: config.Config{GoogleServiceAccountFile: path}, want: `{"type":"service_account"}`},
		{name: "missing file", cfg: config.Config{GoogleServiceAccountFile: filepath.Join(t.TempDir(), "nope.json")}, wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentials(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
