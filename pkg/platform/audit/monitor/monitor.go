// Package monitor checks persisted audit batches against sliding-window
// thresholds and raises alerts as soon as a batch is flushed.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/metrics"
)

// afterHoursMarkTTL only needs to outlive a redelivery of the same event.
const afterHoursMarkTTL = 24 * time.Hour

type windowRule struct {
	alertType   alert.Type
	severity    audit.Severity
	description string
	rule        Rule
	matches     func(audit.Event) bool
	subject     func(audit.Event) string
}

// Monitor evaluates window rules for each event. After a rule fires for a
// subject it stays quiet for that rule's window, so a burst yields one alert.
type Monitor struct {
	counter    WindowCounter
	thresholds Thresholds
	rules      []windowRule
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Monitor)

func WithCounter(c WindowCounter) Option {
	return func(m *Monitor) {
		m.counter = c
	}
}

func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) {
		m.thresholds = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New returns a monitor using an in-memory counter and default thresholds
// unless overridden.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.counter == nil {
		m.counter = NewMemoryCounter()
	}
	m.rules = []windowRule{
		{
			alertType:   alert.TypeSuspiciousLogin,
			severity:    audit.SeverityHigh,
			description: "suspicious login activity",
			rule:        m.thresholds.FailedLogins,
			matches:     func(e audit.Event) bool { return e.Action == audit.ActionFailedLogin },
			subject:     func(e audit.Event) string { return e.AdminID },
		},
		{
			alertType:   alert.TypeHighVolumeUserMods,
			severity:    audit.SeverityMedium,
			description: "high volume user modifications",
			rule:        m.thresholds.UserModifications,
			matches:     func(e audit.Event) bool { return e.Category == audit.CategoryUserManagement },
			subject:     func(e audit.Event) string { return e.AdminID },
		},
		{
			alertType:   alert.TypeCriticalEscalation,
			severity:    audit.SeverityCritical,
			description: "critical action escalation",
			rule:        m.thresholds.CriticalActions,
			matches:     func(e audit.Event) bool { return e.Severity == audit.SeverityCritical },
			subject:     func(audit.Event) string { return "all" },
		},
	}
	return m
}

// Observe updates counters for every event and returns the alerts raised.
// Counter errors are logged; the affected rule is skipped for that event.
func (m *Monitor) Observe(ctx context.Context, events []audit.Event) []alert.Alert {
	var alerts []alert.Alert
	for _, e := range events {
		m.metrics.ObserveEvent(string(e.Category), string(e.Action), string(e.Severity), e.Failed())

		for _, r := range m.rules {
			if r.rule.Threshold <= 0 || !r.matches(e) {
				continue
			}
			if a, ok := m.checkWindow(ctx, r, e); ok {
				alerts = append(alerts, a)
			}
		}
		if a, ok := m.checkAfterHours(ctx, e); ok {
			alerts = append(alerts, a)
		}
	}
	for _, a := range alerts {
		m.logger.WarnContext(ctx, "audit monitoring alert",
			"alert_type", a.Type,
			"severity", a.Severity,
			"subject", a.Subject,
			"count", a.Count,
		)
	}
	return alerts
}

func (m *Monitor) checkWindow(ctx context.Context, r windowRule, e audit.Event) (alert.Alert, bool) {
	subject := r.subject(e)
	key := string(r.alertType) + ":" + subject

	count, err := m.counter.Add(ctx, key, e.ID, e.Timestamp, r.rule.Window)
	if err != nil {
		m.logger.WarnContext(ctx, "audit monitoring counter failed", "rule", r.alertType, "error", err)
		return alert.Alert{}, false
	}
	if count < int64(r.rule.Threshold) {
		return alert.Alert{}, false
	}
	first, err := m.counter.Suppress(ctx, key, e.Timestamp, r.rule.Window)
	if err != nil {
		m.logger.WarnContext(ctx, "audit monitoring suppression failed", "rule", r.alertType, "error", err)
		return alert.Alert{}, false
	}
	if !first {
		return alert.Alert{}, false
	}
	return alert.Alert{
		Type:        r.alertType,
		Severity:    r.severity,
		Description: fmt.Sprintf("%s: %d events in %s", r.description, count, r.rule.Window),
		Subject:     subject,
		Count:       int(count),
		Window:      r.rule.Window,
		Events:      []alert.EventRef{alert.Ref(e)},
		RaisedAt:    m.now(),
	}, true
}

func (m *Monitor) checkAfterHours(ctx context.Context, e audit.Event) (alert.Alert, bool) {
	if e.Severity != audit.SeverityCritical || m.thresholds.BusinessHours.Contains(e.Timestamp) {
		return alert.Alert{}, false
	}
	first, err := m.counter.Suppress(ctx, string(alert.TypeAfterHoursCritical)+":"+e.ID, e.Timestamp, afterHoursMarkTTL)
	if err != nil {
		m.logger.WarnContext(ctx, "audit monitoring suppression failed", "rule", alert.TypeAfterHoursCritical, "error", err)
	}
	if err == nil && !first {
		return alert.Alert{}, false
	}
	return alert.Alert{
		Type:        alert.TypeAfterHoursCritical,
		Severity:    audit.SeverityHigh,
		Description: fmt.Sprintf("after-hours critical action %s by %s", e.Action, e.AdminID),
		Subject:     e.AdminID,
		Count:       1,
		Events:      []alert.EventRef{alert.Ref(e)},
		RaisedAt:    m.now(),
	}, true
}
