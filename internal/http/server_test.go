package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casheye/internal/category"
	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/metrics"
	"casheye/internal/parser"
	"casheye/internal/services"
	"casheye/internal/storage"
)

const sample = parser.Header + "\n" +
	"2025-01-05,スーパーA,牛乳,食費,乳製品,180,198\n" +
	"2025-01-05,スーパーA,卵,食費,卵,200,216\n" +
	"2025-01-25,会社,給料,収入,給与,300000,300000\n" +
	"2025-02-03,薬局,目薬,日用品,その他,500,550\n"

type testServer struct {
	*Server
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	kv := storage.NewMemoryKV()
	registry := category.NewRegistry(ledger.NewCategoryStore(kv), category.WithLogger(log.Discard()))
	p := parser.New(registry, parser.WithLogger(log.Discard()))
	m := metrics.New()
	svc := services.NewLedgerService(
		ledger.NewStore(kv, p, log.Discard()),
		ledger.NewRuleStore(kv, log.Discard()),
		registry, p,
		services.WithLogger(log.Discard()),
		services.WithObserver(m),
	)
	s := NewServer(":0", svc, Options{
		Metrics:           m,
		Logger:            log.Discard(),
		RequestsPerMinute: 1000,
		Now:               func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { s.limiter.Stop() })
	return &testServer{Server: s, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) importSample(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/import", "text/csv", sample)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestImport(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/import", "text/csv", sample)
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[services.ImportResult](t, rec)
	assert.Equal(t, 4, res.Parsed)
	assert.Len(t, res.Added, 4)

	body, err := json.Marshal(map[string]string{"text": sample})
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/api/import", "application/json", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[services.ImportResult](t, rec)
	assert.Empty(t, res.Added)
	assert.Equal(t, 4, res.Duplicates)

	rec = ts.do(t, http.MethodPost, "/api/import?allowDuplicates=true", "text/csv", sample)
	require.Equal(t, http.StatusCreated, rec.Code)
	res = decode[services.ImportResult](t, rec)
	assert.Len(t, res.Added, 4)
}

func TestScanWithoutAnalyzer(t *testing.T) {
	ts := newTestServer(t)

	body := `{"images":[{"mimeType":"image/png","data":"aGVsbG8="}]}`
	rec := ts.do(t, http.MethodPost, "/api/scan", "application/json", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/scan", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/ocr/models", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeModels struct{}

func (fakeModels) Model() string                        { return "model-a" }
func (fakeModels) ListModels(context.Context) []string { return []string{"model-a", "model-b"} }

func TestModels(t *testing.T) {
	ts := newTestServer(t)
	ts.models = fakeModels{}

	rec := ts.do(t, http.MethodGet, "/api/ocr/models", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "model-a", body["current"])
	assert.Len(t, body["models"], 2)
}

func TestLedgerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.importSample(t)

	rec := ts.do(t, http.MethodGet, "/api/ledger?period=2025-01", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.ReceiptLine](t, rec), 3)

	rec = ts.do(t, http.MethodGet, "/api/ledger?period=2025-13", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	line := `{"date":"2025-02-10","name":"パン","majorCategory":"食費","minorCategory":"パン","priceNet":150,"priceIncludeTax":162}`
	rec = ts.do(t, http.MethodPost, "/api/ledger", "application/json", line)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[core.ReceiptLine](t, rec)
	assert.Equal(t, core.ManualStore, added.Store)

	rec = ts.do(t, http.MethodPost, "/api/ledger", "application/json", `{"date":"2025-02-10","name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	key := url.Values{"date": {"2025-02-10"}, "name": {"パン"}, "price": {"162"}}
	rec = ts.do(t, http.MethodPost, "/api/ledger/swap-tax?to=net&"+key.Encode(), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	swapped := decode[core.ReceiptLine](t, rec)
	assert.Equal(t, int64(162), swapped.PriceNet)

	key.Set("price", "174")
	rec = ts.do(t, http.MethodDelete, "/api/ledger?"+key.Encode(), "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/ledger?"+key.Encode(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "not found")

	rec = ts.do(t, http.MethodGet, "/api/ledger/history", "", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestReportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.importSample(t)

	rec := ts.do(t, http.MethodGet, "/api/summaries", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]core.MonthlySummary](t, rec)
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(414), summaries[0].ExpenseTotal)
	assert.Equal(t, int64(300000), summaries[0].IncomeTotal)

	rec = ts.do(t, http.MethodGet, "/api/matrix/minor", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/matrix/minor?major="+url.QueryEscape("食費"), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	minor := decode[map[string]map[string]int64](t, rec)
	assert.Equal(t, int64(198), minor["乳製品"]["2025-01"])

	rec = ts.do(t, http.MethodGet, "/api/report?year=2025", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "summaries")
	assert.Contains(t, body, "tables")

	rec = ts.do(t, http.MethodGet, "/api/export.csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), parser.Header))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ledger_20250310.csv")

	rec = ts.do(t, http.MethodGet, "/api/export.xlsx", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
}

func TestCategoryEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/categories", "application/json", `{"major":"食費","minor":"お菓子"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decode[categoryGroup](t, rec)
	assert.Contains(t, group.Minors, "お菓子")
	assert.Contains(t, group.Minors[len(group.Minors)-1], category.CatchAll)

	rec = ts.do(t, http.MethodDelete, "/api/categories", "application/json", `{"major":"食費","minor":"乳製品"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/categories", "application/json", `{"major":"食費","minor":"お菓子"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/categories/income", "application/json", `{"major":"存在しない","income":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/categories", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]categoryGroup](t, rec)
	var income []string
	for _, g := range groups {
		if g.Income {
			income = append(income, g.Major)
		}
	}
	assert.Contains(t, income, category.IncomeMajor)
}

func TestRuleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rule := `{"title":"家賃","amount":80000,"majorCategory":"住居","minorCategory":"家賃","dayOfMonth":27,"startYearMonth":"2025-01"}`
	rec := ts.do(t, http.MethodPost, "/api/rules", "application/json", rule)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[core.RecurringRule](t, rec)
	require.NotEmpty(t, saved.ID)

	rec = ts.do(t, http.MethodPost, "/api/rules", "application/json", `{"title":"","dayOfMonth":1,"startYearMonth":"2025-01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recurring/run", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[map[string][]core.ReceiptLine](t, rec)
	assert.Len(t, run["added"], 2)

	rec = ts.do(t, http.MethodGet, "/api/rules", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.RecurringRule](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, "/api/rules/"+saved.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/rules/"+saved.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteAndProbes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/nothing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/wp-admin/setup.php", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.importSample(t)

	rec := ts.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "casheye_ledger_lines 4")
	assert.Contains(t, string(raw), `casheye_http_requests_total{method="POST",route="POST /api/import",status="201"} 1`)
}
