package http

import (
	"net/http"

	"casheye/internal/core"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules(r.Context())
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if rules == nil {
		rules = []core.RecurringRule{}
	}
	NewJSONResponse().Body(rules).Write(w)
}

// handlePutRule creates a rule, or replaces the rule with the same id.
func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	var rule core.RecurringRule
	if err := decodeJSON(w, r, &rule); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rule.Title = sanitizeInput(rule.Title)
	rule.MajorCategory = sanitizeInput(rule.MajorCategory)
	rule.MinorCategory = sanitizeInput(rule.MinorCategory)

	created := rule.ID == ""
	saved, err := s.svc.PutRule(r.Context(), rule)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(saved).Write(w)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunRecurring projects every rule up to today and returns the lines
// that were appended.
func (s *Server) handleRunRecurring(w http.ResponseWriter, r *http.Request) {
	added, err := s.svc.RunRecurring(r.Context(), core.DateOf(s.now()))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if added == nil {
		added = []core.ReceiptLine{}
	}
	NewJSONResponse().Body(map[string]any{"added": added}).Write(w)
}
