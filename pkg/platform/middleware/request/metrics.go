package request

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts HTTP traffic per chi route pattern so path parameters such as
// export IDs do not create new series.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	httpMetrics *Metrics
)

// NewMetrics returns the process wide HTTP metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		httpMetrics = &Metrics{
			Requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_http_requests_total",
				Help: "HTTP requests by route, method and status class",
			}, []string{"route", "method", "status"}),
			Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "workspace_audit_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
	})
	return httpMetrics
}

func (m *Metrics) observe(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.Duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Instrument records every request against m.
func Instrument(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.observe(routePattern(r), r.Method, sw.status, time.Since(start))
		})
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
