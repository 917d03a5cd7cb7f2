package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/report"
)

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	summaries := s.svc.Engine().MonthlySummaries(lines)
	if summaries == nil {
		summaries = []core.MonthlySummary{}
	}
	NewJSONResponse().Body(summaries).Write(w)
}

func (s *Server) handleMajorMatrix(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(s.svc.Engine().MajorCategoryMatrix(lines)).Write(w)
}

func (s *Server) handleMinorMatrix(w http.ResponseWriter, r *http.Request) {
	major := sanitizeInput(r.URL.Query().Get("major"))
	if major == "" {
		BadRequestError("major is required").Write(w)
		return
	}
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(s.svc.Engine().MinorCategoryMatrix(lines, major)).Write(w)
}

type reportBody struct {
	Summaries []core.MonthlySummary `json:"summaries"`
	Balance   int64                 `json:"balance"`
	Major     report.Matrix         `json:"major"`
	Tables    []report.Table        `json:"tables"`
}

// handleReport builds the dashboard payload. The sections are independent
// and computed concurrently.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	engine := s.svc.Engine()

	var body reportBody
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		body.Summaries = engine.MonthlySummaries(lines)
		body.Balance = report.Balance(body.Summaries)
		return ctx.Err()
	})
	g.Go(func() error {
		body.Major = engine.MajorCategoryMatrix(lines)
		return ctx.Err()
	})
	g.Go(func() error {
		body.Tables = engine.ExportFullAnalysis(lines)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if body.Summaries == nil {
		body.Summaries = []core.MonthlySummary{}
	}
	NewJSONResponse().Body(body).Write(w)
}

// handleExportCSV downloads the ledger in its delimited storage format.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	writeDownload(w, "text/csv; charset=utf-8", s.filename("ledger", "csv"), []byte(ledger.Export(lines)))
}

// handleAnalysisCSV downloads the summary, major and minor tables.
func (s *Server) handleAnalysisCSV(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	out := report.JoinCSV(s.svc.Engine().ExportFullAnalysis(lines))
	writeDownload(w, "text/csv; charset=utf-8", s.filename("analysis", "csv"), []byte(out))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, s.svc.Engine().ExportFullAnalysis(lines)); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	writeDownload(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		s.filename("analysis", "xlsx"), buf.Bytes())
}

func (s *Server) filename(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, strings.ReplaceAll(core.DateOf(s.now()).String(), "-", ""), ext)
}

func writeDownload(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
