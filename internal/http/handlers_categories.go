package http

import (
	"net/http"

	"casheye/internal/log"
)

type categoryGroup struct {
	Major  string   `json:"major"`
	Minors []string `json:"minors"`
	Income bool     `json:"income"`
}

type categoryRequest struct {
	Major string `json:"major"`
	Minor string `json:"minor"`
}

type incomeRequest struct {
	Major  string `json:"major"`
	Income bool   `json:"income"`
}

// handleListCategories returns the taxonomy in display order.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	reg := s.svc.Registry()
	majors := reg.Majors()
	out := make([]categoryGroup, 0, len(majors))
	for _, major := range majors {
		out = append(out, categoryGroup{
			Major:  major,
			Minors: reg.Minors(major),
			Income: reg.IsIncome(major),
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	major, minor := sanitizeInput(req.Major), sanitizeInput(req.Minor)
	if err := s.svc.Registry().AddMinor(r.Context(), major, minor); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(categoryGroup{
		Major:  major,
		Minors: s.svc.Registry().Minors(major),
		Income: s.svc.Registry().IsIncome(major),
	}).Write(w)
}

// handleRemoveCategory deletes a user-added minor category. Ledger lines
// that reference it are left untouched.
func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.svc.Registry().RemoveMinor(r.Context(), req.Major, req.Minor); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.svc.Registry().SetIncome(r.Context(), req.Major, req.Income); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Income tag changed",
		log.FieldMajorCategory, req.Major, "income", req.Income)
	NewJSONResponse().Body(map[string][]string{"income": s.svc.Registry().IncomeMajors()}).Write(w)
}
