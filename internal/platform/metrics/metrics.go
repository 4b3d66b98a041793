package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the admin audit API. Methods are safe
// on a nil receiver.
type Metrics struct {
	EndpointLatency  *prometheus.HistogramVec
	ReportsGenerated *prometheus.CounterVec
	ReportFailures   *prometheus.CounterVec
	ExportsRequested *prometheus.CounterVec
	AnomalyRiskLevel *prometheus.CounterVec
	ChainBreaks      prometheus.Counter
	IntegrityChecks  *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// New returns the process-wide admin API metrics, registering them on first use.
func New() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "workspace_audit_admin_endpoint_latency_seconds",
				Help:    "Latency of admin audit endpoints in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"endpoint"}),
			ReportsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_admin_reports_total",
				Help: "Total number of reports generated, labeled by kind",
			}, []string{"kind"}),
			ReportFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_admin_report_failures_total",
				Help: "Total number of failed report requests, labeled by kind",
			}, []string{"kind"}),
			ExportsRequested: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_admin_exports_requested_total",
				Help: "Total number of export jobs requested, labeled by format",
			}, []string{"format"}),
			AnomalyRiskLevel: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_admin_anomaly_reports_total",
				Help: "Total number of anomaly reports, labeled by resulting risk level",
			}, []string{"risk_level"}),
			ChainBreaks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_admin_chain_breaks_total",
				Help: "Total number of sequence breaks reported by chain validation",
			}),
			IntegrityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_admin_integrity_checks_total",
				Help: "Total number of single-event integrity checks, labeled by outcome",
			}, []string{"outcome"}),
		}
	})
	return instance
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) IncReport(kind string) {
	if m == nil {
		return
	}
	m.ReportsGenerated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncReportFailure(kind string) {
	if m == nil {
		return
	}
	m.ReportFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncExportRequested(format string) {
	if m == nil {
		return
	}
	m.ExportsRequested.WithLabelValues(format).Inc()
}

func (m *Metrics) IncAnomalyReport(riskLevel string) {
	if m == nil {
		return
	}
	m.AnomalyRiskLevel.WithLabelValues(riskLevel).Inc()
}

func (m *Metrics) AddChainBreaks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChainBreaks.Add(float64(n))
}

// IncIntegrityCheck counts one verification; valid selects the outcome label.
func (m *Metrics) IncIntegrityCheck(valid bool) {
	if m == nil {
		return
	}
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	m.IntegrityChecks.WithLabelValues(outcome).Inc()
}
