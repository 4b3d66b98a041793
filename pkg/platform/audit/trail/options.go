package trail

import (
	"log/slog"
	"time"

	"workspace-audit/pkg/platform/audit/deadletter"
	"workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/redact"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for diagnostic output and the console copy
// of every event.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithRedactor(r *redact.Redactor) Option {
	return func(m *Manager) {
		m.redactor = r
	}
}

// WithSpool sets the dead-letter spool for events that cannot be persisted.
func WithSpool(s deadletter.Spool) Option {
	return func(m *Manager) {
		m.spool = s
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) {
		m.dispatcher = d
	}
}

// WithObserver sets the real-time monitor fed with each persisted batch.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithMaxQueue bounds the in-memory queue; the oldest events beyond it are spooled.
func WithMaxQueue(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxQueue = n
		}
	}
}

// WithMaxAttempts sets how many persist attempts an event gets before it is spooled.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base and maximum delay between persist attempts.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(m *Manager) {
		if base > 0 {
			m.retryBackoff = base
		}
		if ceiling > 0 {
			m.maxBackoff = ceiling
		}
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.persistTimeout = d
		}
	}
}

func WithAlertTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.alertTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithInstanceID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.instanceID = id
		}
	}
}
