package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline. All methods are
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	// Ingestion and flush
	QueueDepth      prometheus.Gauge
	Enqueued        prometheus.Counter
	Rejected        prometheus.Counter
	Persisted       prometheus.Counter
	PersistFailures prometheus.Counter
	Retries         prometheus.Counter
	DeadLettered    *prometheus.CounterVec
	FlushDuration   prometheus.Histogram

	// Monitoring counters keyed by taxonomy
	Events   *prometheus.CounterVec
	Failures *prometheus.CounterVec

	// Alerting
	AlertsRaised     *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	DispatchSkipped  *prometheus.CounterVec

	// Lifecycle
	RetentionDeleted  *prometheus.CounterVec
	RetentionArchived *prometheus.CounterVec
	Replayed          prometheus.Counter
	ExportJobs        *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the process-wide Metrics instance, registering it on first use.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "workspace_audit_queue_depth",
				Help: "Current number of audit events waiting to be flushed",
			}),
			Enqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_events_enqueued_total",
				Help: "Total number of audit events accepted for persistence",
			}),
			Rejected: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_events_rejected_total",
				Help: "Total number of malformed audit entries rejected at ingestion",
			}),
			Persisted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_events_persisted_total",
				Help: "Total number of audit events written to the durable store",
			}),
			PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_persist_failures_total",
				Help: "Total number of failed batch persistence attempts",
			}),
			Retries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_retries_total",
				Help: "Total number of audit events re-queued after a failed flush",
			}),
			DeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_dead_lettered_total",
				Help: "Total number of audit events moved to the dead-letter spool",
			}, []string{"reason"}),
			FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "workspace_audit_flush_duration_seconds",
				Help:    "Time taken to persist one batch of audit events",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}),
			Events: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_events_total",
				Help: "Audit events observed by monitoring, by category, action and severity",
			}, []string{"category", "action", "severity"}),
			Failures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_failed_events_total",
				Help: "Audit events recording a failed operation, by category and action",
			}, []string{"category", "action"}),
			AlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_alerts_total",
				Help: "Alerts raised by type",
			}, []string{"type"}),
			DispatchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_alert_dispatch_failures_total",
				Help: "Alert deliveries that failed, by notifier",
			}, []string{"notifier"}),
			DispatchSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_alert_dispatch_skipped_total",
				Help: "Alert deliveries skipped because the notifier circuit was open",
			}, []string{"notifier"}),
			RetentionDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_retention_deleted_total",
				Help: "Audit events deleted by retention, by severity",
			}, []string{"severity"}),
			RetentionArchived: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_retention_archived_total",
				Help: "Audit events archived to cold storage, by severity",
			}, []string{"severity"}),
			Replayed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "workspace_audit_dead_letter_replayed_total",
				Help: "Audit events replayed from the dead-letter spool into the store",
			}),
			ExportJobs: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "workspace_audit_export_jobs_total",
				Help: "Export jobs by format and terminal status",
			}, []string{"format", "status"}),
		}
	})
	return metricsInstance
}

// SetQueueDepth sets the current queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// IncEnqueued increments the enqueued counter.
func (m *Metrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.Enqueued.Inc()
}

// IncRejected increments the rejected counter.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// ObserveFlush records a successful batch persist.
func (m *Metrics) ObserveFlush(events int, seconds float64) {
	if m == nil {
		return
	}
	m.Persisted.Add(float64(events))
	m.FlushDuration.Observe(seconds)
}

// IncPersistFailure records a failed batch persist and the events re-queued by it.
func (m *Metrics) IncPersistFailure(requeued int) {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
	m.Retries.Add(float64(requeued))
}

// AddDeadLettered counts events moved to the spool.
func (m *Metrics) AddDeadLettered(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DeadLettered.WithLabelValues(reason).Add(float64(n))
}

// ObserveEvent increments the taxonomy counters for one event.
func (m *Metrics) ObserveEvent(category, action, severity string, failed bool) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(category, action, severity).Inc()
	if failed {
		m.Failures.WithLabelValues(category, action).Inc()
	}
}

// IncAlert counts an alert handed to the dispatcher, once per alert.
func (m *Metrics) IncAlert(alertType string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(alertType).Inc()
}

// IncDispatchFailure counts a failed delivery.
func (m *Metrics) IncDispatchFailure(notifier string) {
	if m == nil {
		return
	}
	m.DispatchFailures.WithLabelValues(notifier).Inc()
}

// IncDispatchSkipped counts a delivery skipped by an open circuit.
func (m *Metrics) IncDispatchSkipped(notifier string) {
	if m == nil {
		return
	}
	m.DispatchSkipped.WithLabelValues(notifier).Inc()
}

// AddRetention records retention outcomes for one severity tier.
func (m *Metrics) AddRetention(severity string, deleted, archived int64) {
	if m == nil {
		return
	}
	m.RetentionDeleted.WithLabelValues(severity).Add(float64(deleted))
	m.RetentionArchived.WithLabelValues(severity).Add(float64(archived))
}

// AddReplayed counts events replayed from the spool.
func (m *Metrics) AddReplayed(n int) {
	if m == nil {
		return
	}
	m.Replayed.Add(float64(n))
}

// IncExportJob counts a finished export.
func (m *Metrics) IncExportJob(format, status string) {
	if m == nil {
		return
	}
	m.ExportJobs.WithLabelValues(format, status).Inc()
}
