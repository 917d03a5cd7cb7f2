// Package metrics exposes Prometheus counters for imports, OCR calls,
// recurring projection and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casheye/internal/ocr"
)

const namespace = "casheye"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	importLines   *prometheus.CounterVec
	ocrRequests   *prometheus.CounterVec
	ocrDuration   prometheus.Histogram
	recurring     prometheus.Counter
	ledgerLines   prometheus.Gauge
	staleResults  prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	rateLimited   prometheus.Counter
	suspicious    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		importLines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_lines_total",
			Help:      "Receipt lines seen by imports, by outcome.",
		}, []string{"result"}),
		ocrRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_requests_total",
			Help:      "Receipt analysis calls, by outcome.",
		}, []string{"outcome", "cached"}),
		ocrDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "Latency of receipt analysis calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90},
		}),
		recurring: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_lines_total",
			Help:      "Ledger lines created from recurring rules.",
		}),
		ledgerLines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_lines",
			Help:      "Number of lines in the ledger after the last write.",
		}),
		staleResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Scan results discarded because a newer scan started.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status.",
		}, []string{"method", "route", "status"}),
		httpDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
		suspicious: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_requests_total",
			Help:      "Requests matching a known probing pattern.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveImport records the outcome of one merge.
func (m *Metrics) ObserveImport(added, duplicates, skipped int) {
	m.importLines.WithLabelValues("added").Add(float64(added))
	m.importLines.WithLabelValues("duplicate").Add(float64(duplicates))
	m.importLines.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveOCR matches ocr.Observer.
func (m *Metrics) ObserveOCR(kind ocr.ErrorKind, cached bool, elapsed time.Duration) {
	m.ocrRequests.WithLabelValues(kind.String(), strconv.FormatBool(cached)).Inc()
	if !cached {
		m.ocrDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveRecurring(added int) {
	m.recurring.Add(float64(added))
}

func (m *Metrics) SetLedgerSize(n int) {
	m.ledgerLines.Set(float64(n))
}

func (m *Metrics) StaleResult() {
	m.staleResults.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

func (m *Metrics) SuspiciousRequest() {
	m.suspicious.Inc()
}
