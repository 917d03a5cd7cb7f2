package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"casheye/internal/adapters"
	"casheye/internal/log"
	"casheye/internal/metrics"
	"casheye/internal/middleware/ratelimit"
	"casheye/internal/middleware/security"
	"casheye/internal/middleware/trace"
	"casheye/internal/services"
)

// Clock returns the current time in the ledger's timezone.
type Clock func() time.Time

// ModelLister reports the OCR models the provider offers. *ocr.Client
// implements it.
type ModelLister interface {
	Model() string
	ListModels(ctx context.Context) []string
}

type Server struct {
	http.Server
	svc      *services.LedgerService
	history  *adapters.LedgerHistory
	models   ModelLister
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
	now      Clock

	shutdownOnce sync.Once
}

// Options configures the optional parts of the server.
type Options struct {
	History           *adapters.LedgerHistory
	Models            ModelLister
	Metrics           *metrics.Metrics
	Logger            *log.Logger
	RequestsPerMinute int
	Now               Clock
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		svc:      svc,
		history:  opts.History,
		models:   opts.Models,
		metrics:  opts.Metrics,
		detector: security.NewDetector(),
		logger:   logger.WithComponent(log.ComponentHTTP),
		now:      now,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var observe trace.Observer
	var onLimit, onFlag func()
	if s.metrics != nil {
		observe = s.metrics.ObserveHTTP
		onLimit = s.metrics.RateLimited
		onFlag = s.metrics.SuspiciousRequest
	}

	// The trace middleware must wrap the mux directly; the others do not
	// copy the request.
	var h http.Handler = trace.NewMiddleware(s.detector.ExtractClientIP, s.logger, observe).Middleware(mux)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		if onLimit != nil {
			onLimit()
		}
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	}, http.MethodPost, http.MethodPut, http.MethodDelete)(h)
	h = s.detector.Middleware(s.logger, onFlag)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("DELETE /api/scan", s.handleCancelScan)
	mux.HandleFunc("GET /api/ocr/models", s.handleModels)

	mux.HandleFunc("GET /api/ledger", s.handleListLedger)
	mux.HandleFunc("POST /api/ledger", s.handleAddLine)
	mux.HandleFunc("PUT /api/ledger", s.handleUpdateLine)
	mux.HandleFunc("DELETE /api/ledger", s.handleDeleteLine)
	mux.HandleFunc("POST /api/ledger/swap-tax", s.handleSwapTax)
	mux.HandleFunc("GET /api/ledger/history", s.handleHistory)
	mux.HandleFunc("POST /api/ledger/history/{id}/restore", s.handleRestore)

	mux.HandleFunc("GET /api/summaries", s.handleSummaries)
	mux.HandleFunc("GET /api/matrix/major", s.handleMajorMatrix)
	mux.HandleFunc("GET /api/matrix/minor", s.handleMinorMatrix)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/analysis.csv", s.handleAnalysisCSV)
	mux.HandleFunc("GET /api/export.xlsx", s.handleExportXLSX)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)
	mux.HandleFunc("DELETE /api/categories", s.handleRemoveCategory)
	mux.HandleFunc("PUT /api/categories/income", s.handleSetIncome)

	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("POST /api/rules", s.handlePutRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/recurring/run", s.handleRunRecurring)
}

// Shutdown gracefully shuts down the server and the limiter's cleanup
// goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady checks that the ledger can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.svc.Ledger(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
