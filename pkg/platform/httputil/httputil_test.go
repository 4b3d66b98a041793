package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "workspace-audit/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "limit must be at most 100"), http.StatusBadRequest,
			`{"error":"validation_error","error_description":"limit must be at most 100"}`},
		{"not found", dErrors.New(dErrors.CodeNotFound, "export job not found"), http.StatusNotFound,
			`{"error":"not_found","error_description":"export job not found"}`},
		{"conflict", dErrors.New(dErrors.CodeConflict, "retention cleanup already running"), http.StatusConflict,
			`{"error":"conflict","error_description":"retention cleanup already running"}`},
		{"wrapped by fmt", fmt.Errorf("handler: %w", dErrors.New(dErrors.CodeForbidden, "compliance role required")), http.StatusForbidden,
			`{"error":"forbidden","error_description":"compliance role required"}`},
		{"integrity", dErrors.New(dErrors.CodeIntegrity, "hash mismatch"), http.StatusUnprocessableEntity,
			`{"error":"integrity_violation","error_description":"hash mismatch"}`},
		// Justification: store failures must not leak driver messages to API clients.
		{"internal hides message", dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "search failed"),
			http.StatusInternalServerError, `{"error":"internal_error"}`},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, `{"error":"internal_error"}`},
		{"unknown code", dErrors.New(dErrors.Code("mystery"), "??"), http.StatusInternalServerError,
			`{"error":"internal_error","error_description":"??"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, StatusFor(tt.err))
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		})
	}
}

func TestWriteErrorChallengeHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token expired"))
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	w = httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.CodeUnavailable, "archive sink not configured"))
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}
