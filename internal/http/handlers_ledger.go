package http

import (
	"net/http"
	"strconv"
	"strings"

	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/report"
	"casheye/internal/services"
)

const historyLimit = 20

// handleImport merges pasted or uploaded ledger text. ?allowDuplicates=true
// appends every parsed line.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	text, err := readImportText(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	allow, _ := strconv.ParseBool(r.URL.Query().Get("allowDuplicates"))

	res, err := s.svc.Import(r.Context(), text, services.ImportOptions{AllowDuplicates: allow, Source: services.SourceImport})
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	status := http.StatusOK
	if len(res.Added) > 0 {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(res).Write(w)
}

// handleScan sends receipt images to the OCR collaborator and merges the
// result. Provider failures are reported in the body with status 502.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	images, err := readScanImages(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	res, err := s.svc.Scan(r.Context(), images)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	status := http.StatusOK
	if !res.OCR.OK() {
		status = http.StatusBadGateway
		log.FromContext(r.Context()).WarnContext(r.Context(), "Receipt analysis failed",
			"kind", res.OCR.Err.String(), log.FieldReason, res.OCR.Detail)
	}
	NewJSONResponse().Status(status).Body(res).Write(w)
}

// handleCancelScan discards the result of any scan still in flight.
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	s.svc.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// handleModels lists the models the OCR provider offers, falling back to a
// fixed list when the provider cannot be reached.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		ServiceError(r, services.ErrOCRDisabled).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"current": s.models.Model(),
		"models":  s.models.ListModels(r.Context()),
	}).Write(w)
}

func (s *Server) filteredLines(w http.ResponseWriter, r *http.Request) ([]core.ReceiptLine, bool) {
	f, err := parseLineFilter(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return nil, false
	}
	lines, err := s.svc.Ledger(r.Context())
	if err != nil {
		ServiceError(r, err).Write(w)
		return nil, false
	}
	if f.period != nil {
		lines = report.FilterPeriod(lines, *f.period)
	}
	if f.year > 0 {
		lines = report.FilterYear(lines, f.year)
	}
	return lines, true
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.filteredLines(w, r)
	if !ok {
		return
	}
	if lines == nil {
		lines = []core.ReceiptLine{}
	}
	NewJSONResponse().Body(lines).Write(w)
}

func (s *Server) readLine(w http.ResponseWriter, r *http.Request) (core.ReceiptLine, bool) {
	var l core.ReceiptLine
	if err := decodeJSON(w, r, &l); err != nil {
		BadRequestError(err.Error()).Write(w)
		return l, false
	}
	l.Store = sanitizeInput(l.Store)
	l.Name = sanitizeInput(l.Name)
	l.MajorCategory = sanitizeInput(l.MajorCategory)
	l.MinorCategory = sanitizeInput(l.MinorCategory)
	return l, true
}

// handleAddLine appends a hand-entered line. Manual entries are never
// de-duplicated.
func (s *Server) handleAddLine(w http.ResponseWriter, r *http.Request) {
	l, ok := s.readLine(w, r)
	if !ok {
		return
	}
	if l.Store == "" {
		l.Store = core.ManualStore
	}
	if err := s.svc.AddManual(r.Context(), l); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(l).Write(w)
}

// handleUpdateLine replaces the line identified by ?date=&name=&price=.
func (s *Server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	key, err := parseLineKey(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	l, ok := s.readLine(w, r)
	if !ok {
		return
	}
	if err := s.svc.UpdateLine(r.Context(), key, l); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(l).Write(w)
}

func (s *Server) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	key, err := parseLineKey(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if err := s.svc.DeleteLine(r.Context(), key); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSwapTax converts a line between net and gross entry. ?to=net moves
// the gross price into the net column; anything else does the reverse.
func (s *Server) handleSwapTax(w http.ResponseWriter, r *http.Request) {
	key, err := parseLineKey(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	toNet := strings.EqualFold(r.URL.Query().Get("to"), "net")
	l, err := s.svc.SwapTax(r.Context(), key, toNet)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(l).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ErrorResponse(http.StatusNotImplemented, "ledger history requires the sqlite backend").Write(w)
		return
	}
	snaps, err := s.history.Snapshots(r.Context(), historyLimit)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(snaps).Write(w)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ErrorResponse(http.StatusNotImplemented, "ledger history requires the sqlite backend").Write(w)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		BadRequestError("invalid snapshot id").Write(w)
		return
	}
	lines, err := s.history.Restore(r.Context(), id, historyLimit)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger restored from snapshot",
		"snapshot_id", id, "lines", len(lines))
	NewJSONResponse().Body(map[string]int{"lines": len(lines)}).Write(w)
}
