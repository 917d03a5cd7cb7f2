// Package http serves the ledger as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses with a consistent error envelope.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"casheye/internal/adapters"
	"casheye/internal/category"
	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a response with the standard error envelope.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ServiceError maps a service error onto a status code. Unknown errors are
// logged and reported as 500 without detail.
func ServiceError(r *http.Request, err error) *JSONResponseBuilder {
	switch {
	case errors.Is(err, services.ErrLineNotFound),
		errors.Is(err, ledger.ErrRuleNotFound),
		errors.Is(err, adapters.ErrSnapshotNotFound),
		errors.Is(err, category.ErrUnknownMajor),
		errors.Is(err, category.ErrUnknownMinor):
		return NotFoundError(err.Error())
	case errors.Is(err, services.ErrStale):
		return ErrorResponse(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrOCRDisabled):
		return ErrorResponse(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, category.ErrDefaultCategory):
		return ErrorResponse(http.StatusForbidden, err.Error())
	case isValidationError(err):
		return UnprocessableEntityError(err.Error())
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
	return InternalServerError("internal error")
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidDate, core.ErrInvalidPeriod, core.ErrInvalidDay,
		core.ErrInvalidAmount, core.ErrEmptyName, core.ErrEmptyMajor,
		core.ErrEmptyTitle, core.ErrPeriodOrder, category.ErrEmptyName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
