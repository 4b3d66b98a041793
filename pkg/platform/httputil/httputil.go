// Package httputil writes JSON responses and translates domain errors to HTTP.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "workspace-audit/pkg/domain-errors"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

type errorMapping struct {
	status int
	label  string
}

var errorMappings = map[dErrors.Code]errorMapping{
	dErrors.CodeNotFound:     {http.StatusNotFound, "not_found"},
	dErrors.CodeBadRequest:   {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:   {http.StatusBadRequest, "validation_error"},
	dErrors.CodeConflict:     {http.StatusConflict, "conflict"},
	dErrors.CodeUnauthorized: {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeForbidden:    {http.StatusForbidden, "forbidden"},
	dErrors.CodeTimeout:      {http.StatusGatewayTimeout, "timeout"},
	dErrors.CodeUnavailable:  {http.StatusServiceUnavailable, "unavailable"},
	dErrors.CodeIntegrity:    {http.StatusUnprocessableEntity, "integrity_violation"},
}

var internalMapping = errorMapping{http.StatusInternalServerError, "internal_error"}

func mappingFor(code dErrors.Code) errorMapping {
	if m, ok := errorMappings[code]; ok {
		return m
	}
	return internalMapping
}

// WriteJSON encodes response with status. Audit data is never cacheable.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// The status line is already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError replies with the status and label mapped from the error code.
// Messages of internal and foreign errors are never exposed.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code == dErrors.CodeInternal {
		WriteJSON(w, internalMapping.status, ErrorResponse{Error: internalMapping.label})
		return
	}

	m := mappingFor(domainErr.Code)
	switch domainErr.Code {
	case dErrors.CodeUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="workspace-audit"`)
	case dErrors.CodeUnavailable:
		w.Header().Set("Retry-After", "5")
	}
	WriteJSON(w, m.status, ErrorResponse{Error: m.label, Description: domainErr.Message})
}

// StatusFor returns the HTTP status WriteError uses for err.
func StatusFor(err error) int {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		return internalMapping.status
	}
	return mappingFor(domainErr.Code).status
}
