package request

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"workspace-audit/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	logs   *bytes.Buffer
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logs = &bytes.Buffer{}
	s.logger = slog.New(slog.NewJSONHandler(s.logs, nil))
}

func (s *MiddlewareSuite) serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	s.Run("mints a UUID when absent", func() {
		rec := s.serve(h, httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil))
		s.Len(seen, 36)
		s.Equal(seen, rec.Header().Get(HeaderRequestID))
	})

	s.Run("propagates a well formed ID", func() {
		r := httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil)
		r.Header.Set(HeaderRequestID, "trace.span_42-a")
		rec := s.serve(h, r)
		s.Equal("trace.span_42-a", seen)
		s.Equal("trace.span_42-a", rec.Header().Get(HeaderRequestID))
	})

	// Justification: request IDs are copied into persisted audit metadata, so
	// anything that could forge a log line or bloat a row is replaced.
	s.Run("replaces hostile IDs", func() {
		for _, id := range []string{
			"line\ninjected",
			"has space",
			`quote"d`,
			"semi;colon",
			"nul\x00byte",
			strings.Repeat("a", MaxRequestIDLength+1),
		} {
			r := httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil)
			r.Header.Set(HeaderRequestID, id)
			s.serve(h, r)
			s.NotEqual(id, seen)
			s.Len(seen, 36, "id %q", id)
		}
	})

	s.Run("accepts an ID at the length cap", func() {
		id := strings.Repeat("z", MaxRequestIDLength)
		r := httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil)
		r.Header.Set(HeaderRequestID, id)
		s.serve(h, r)
		s.Equal(id, seen)
	})
}

// Justification: a panicking handler must answer with the standard error body
// and never leak the panic value.
func (s *MiddlewareSuite) TestRecovery() {
	h := RequestID(Recovery(s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	})))

	rec := s.serve(h, httptest.NewRequest(http.MethodGet, "/admin/audit/chain", nil))
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.JSONEq(`{"error":"internal_error"}`, rec.Body.String())
	s.NotContains(rec.Body.String(), "secret detail")
	s.Contains(s.logs.String(), "panic recovered")
}

func (s *MiddlewareSuite) TestLogger() {
	router := chi.NewRouter()
	router.Use(Logger(s.logger))
	router.Get("/admin/audit/exports/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.Run("logs the route pattern and status", func() {
		r := httptest.NewRequest(http.MethodGet, "/admin/audit/exports/4f1c", nil)
		r = r.WithContext(requestcontext.WithClientIP(r.Context(), "203.0.113.77"))
		s.serve(router, r)

		var line map[string]any
		s.Require().NoError(json.Unmarshal(s.logs.Bytes(), &line))
		s.Equal("/admin/audit/exports/{id}", line["route"])
		s.EqualValues(http.StatusNotFound, line["status"])
		s.NotContains(s.logs.String(), "203.0.113.77")
	})

	s.Run("skips health checks", func() {
		s.logs.Reset()
		s.serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		s.Empty(s.logs.String())
	})
}

func (s *MiddlewareSuite) TestBodyLimit() {
	h := BodyLimit(32)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("passes bodies at the cap", func() {
		rec := s.serve(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32))))
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("refuses a declared oversize body", func() {
		rec := s.serve(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 33))))
		s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
		s.Contains(rec.Body.String(), "payload_too_large")
	})

	s.Run("stops an undeclared oversize body while reading", func() {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
		r.ContentLength = -1
		rec := s.serve(h, r)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *MiddlewareSuite) TestContentTypeJSON() {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	cases := []struct {
		method, contentType string
		want                int
	}{
		{http.MethodPost, "application/json", http.StatusAccepted},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusAccepted},
		{http.MethodPost, "", http.StatusAccepted},
		{http.MethodPost, "text/csv", http.StatusUnsupportedMediaType},
		{http.MethodPost, "not a media type;;", http.StatusUnsupportedMediaType},
		{http.MethodGet, "text/csv", http.StatusAccepted},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, "/admin/audit/exports", nil)
		if tc.contentType != "" {
			r.Header.Set("Content-Type", tc.contentType)
		}
		s.Equal(tc.want, s.serve(h, r).Code, "%s %q", tc.method, tc.contentType)
	}
}

func (s *MiddlewareSuite) TestTimeout() {
	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := s.serve(h, httptest.NewRequest(http.MethodGet, "/admin/audit/summary", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "request timed out")
}

func (s *MiddlewareSuite) TestInstrument() {
	m := NewMetrics()
	router := chi.NewRouter()
	router.Use(Instrument(m))
	router.Get("/admin/audit/exports/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(m.Requests.WithLabelValues("/admin/audit/exports/{id}", http.MethodGet, "4xx"))
	s.serve(router, httptest.NewRequest(http.MethodGet, "/admin/audit/exports/a", nil))
	s.serve(router, httptest.NewRequest(http.MethodGet, "/admin/audit/exports/b", nil))
	after := testutil.ToFloat64(m.Requests.WithLabelValues("/admin/audit/exports/{id}", http.MethodGet, "4xx"))
	s.Equal(2.0, after-before)

	s.Same(m, NewMetrics())
}

func (s *MiddlewareSuite) TestStatusClass() {
	s.Equal("2xx", statusClass(http.StatusAccepted))
	s.Equal("5xx", statusClass(http.StatusServiceUnavailable))
}

func (s *MiddlewareSuite) TestRoutePatternUnmatched() {
	s.Equal("unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
