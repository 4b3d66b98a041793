// Package analytics builds read-only reports over persisted audit events:
// activity summaries, per-admin anomaly scans and compliance extracts.
//
// Reports are computed on demand by paging through the store. Nothing here
// writes audit data or schedules itself.
package analytics

import (
	"context"
	"log/slog"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
	"workspace-audit/pkg/validation"
)

const pageSize = 500

// Service answers summary, anomaly and compliance queries.
type Service struct {
	reader audit.Reader
	now    func() time.Time
	logger *slog.Logger
	tracer tracer.Tracer
	hours  audit.BusinessHours
	rules  AnomalyRules

	maxReportEvents int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithBusinessHours sets the working window used by the off-hours rule.
func WithBusinessHours(h audit.BusinessHours) Option {
	return func(s *Service) {
		s.hours = h
	}
}

func WithAnomalyRules(r AnomalyRules) Option {
	return func(s *Service) {
		s.rules = r
	}
}

// WithMaxReportEvents caps how many events a compliance report embeds.
// Violations are still evaluated over every matching event.
func WithMaxReportEvents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxReportEvents = n
		}
	}
}

func New(reader audit.Reader, opts ...Option) *Service {
	s := &Service{
		reader:          reader,
		now:             time.Now,
		logger:          slog.Default(),
		tracer:          tracer.NewNoop(),
		hours:           audit.DefaultBusinessHours(),
		rules:           DefaultAnomalyRules(),
		maxReportEvents: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummaryQuery selects the events a summary aggregates. From is inclusive,
// To is exclusive.
type SummaryQuery struct {
	From     time.Time      `json:"from" validate:"required"`
	To       time.Time      `json:"to" validate:"required,gtefield=From"`
	AdminID  string         `json:"adminId,omitempty" validate:"max=128"`
	Category audit.Category `json:"category,omitempty" validate:"omitempty,audit_category"`
	Severity audit.Severity `json:"severity,omitempty" validate:"omitempty,audit_severity"`
}

// Summary aggregates activity over a time window.
type Summary struct {
	From          time.Time              `json:"from"`
	To            time.Time              `json:"to"`
	TotalEvents   int                    `json:"totalEvents"`
	ByCategory    map[audit.Category]int `json:"byCategory"`
	BySeverity    map[audit.Severity]int `json:"bySeverity"`
	ByAdmin       map[string]int         `json:"byAdmin"`
	FailedEvents  int                    `json:"failedEvents"`
	FailureRate   float64                `json:"failureRate"`
	CriticalCount int                    `json:"criticalCount"`
	GeneratedAt   time.Time              `json:"generatedAt"`
}

// GetAuditSummary counts events by category, severity and acting admin.
// FailureRate is a fraction in [0, 1]; it is 0 for an empty window.
func (s *Service) GetAuditSummary(ctx context.Context, q SummaryQuery) (summary *Summary, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSummary,
		tracer.String(tracer.AttrAdminID, q.AdminID),
		tracer.String(tracer.AttrCategory, string(q.Category)),
		tracer.String(tracer.AttrSeverity, string(q.Severity)),
	)
	defer func() { span.End(err) }()

	if err := validation.Validate(q); err != nil {
		return nil, err
	}

	out := &Summary{
		From:        q.From,
		To:          q.To,
		ByCategory:  make(map[audit.Category]int),
		BySeverity:  make(map[audit.Severity]int),
		ByAdmin:     make(map[string]int),
		GeneratedAt: s.now().UTC(),
	}
	filter := audit.Filter{
		AdminID:  q.AdminID,
		Category: q.Category,
		Severity: q.Severity,
		From:     q.From,
		To:       q.To,
		Limit:    pageSize,
		Order:    audit.OldestFirst,
	}
	err = audit.ForEach(ctx, s.reader, filter, func(page []audit.Event) error {
		for _, e := range page {
			out.TotalEvents++
			out.ByCategory[e.Category]++
			out.BySeverity[e.Severity]++
			out.ByAdmin[e.AdminID]++
			if e.Failed() {
				out.FailedEvents++
			}
			if e.Severity == audit.SeverityCritical {
				out.CriticalCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.storeError(ctx, "summary", err)
	}
	if out.TotalEvents > 0 {
		out.FailureRate = float64(out.FailedEvents) / float64(out.TotalEvents)
	}
	span.SetAttributes(tracer.Int(tracer.AttrTotal, out.TotalEvents))
	return out, nil
}

func (s *Service) storeError(ctx context.Context, report string, err error) error {
	if dErrors.HasCode(err, dErrors.CodeValidation) {
		return err
	}
	s.logger.ErrorContext(ctx, "audit report query failed", "report", report, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit events")
}

// collect pages through every event matching filter in ascending order.
func (s *Service) collect(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	filter.Limit = pageSize
	filter.Order = audit.OldestFirst
	var events []audit.Event
	err := audit.ForEach(ctx, s.reader, filter, func(page []audit.Event) error {
		events = append(events, page...)
		return nil
	})
	return events, err
}
