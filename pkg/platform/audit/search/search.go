// Package search answers interactive queries over persisted audit events:
// paginated search, per-resource history and asynchronous exports.
package search

import (
	"context"
	"log/slog"
	"strings"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
)

// Result is one page of search results.
type Result struct {
	Events  []audit.Event `json:"events"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	HasNext bool          `json:"hasNext"`
}

// Service runs searches against a store.
type Service struct {
	reader audit.Reader
	logger *slog.Logger
	tracer tracer.Tracer
}

type Option func(*Service)

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

func New(reader audit.Reader, opts ...Option) *Service {
	s := &Service{
		reader: reader,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchAudits returns one page of matching events, newest first. Events
// sharing a timestamp are ordered by ID, descending.
func (s *Service) SearchAudits(ctx context.Context, q Query) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSearch,
		tracer.String(tracer.AttrAdminID, q.AdminID),
		tracer.String(tracer.AttrCategory, string(q.Category)),
		tracer.String(tracer.AttrSeverity, string(q.Severity)),
	)
	defer func() { span.End(err) }()

	q, err = q.Normalize()
	if err != nil {
		return nil, err
	}
	filter := q.Filter()

	total, err := s.reader.Count(ctx, filter)
	if err != nil {
		return nil, s.storeError(ctx, "count", err)
	}
	events := []audit.Event{}
	if int64(filter.Offset) < total {
		events, err = s.reader.Find(ctx, filter)
		if err != nil {
			return nil, s.storeError(ctx, "find", err)
		}
	}

	span.SetAttributes(
		tracer.Int64(tracer.AttrTotal, total),
		tracer.Int(tracer.AttrResultCount, len(events)),
	)
	return &Result{
		Events:  events,
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		HasNext: int64(q.Page)*int64(q.Limit) < total,
	}, nil
}

// GetAuditTrail returns the full history of one resource, oldest first.
// Events sharing a timestamp are ordered by ID.
func (s *Service) GetAuditTrail(ctx context.Context, resourceType, resourceID string) (events []audit.Event, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTrail,
		tracer.String(tracer.AttrResource, resourceType),
	)
	defer func() { span.End(err) }()

	resourceType = strings.TrimSpace(resourceType)
	resourceID = strings.TrimSpace(resourceID)
	if resourceType == "" || resourceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource type and resource id are required")
	}

	events = []audit.Event{}
	filter := audit.Filter{
		Resource:   resourceType,
		ResourceID: resourceID,
		Order:      audit.OldestFirst,
	}
	err = audit.ForEach(ctx, s.reader, filter, func(page []audit.Event) error {
		events = append(events, page...)
		return nil
	})
	if err != nil {
		return nil, s.storeError(ctx, "trail", err)
	}
	span.SetAttributes(tracer.Int(tracer.AttrResultCount, len(events)))
	return events, nil
}

func (s *Service) storeError(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "audit search failed", "op", op, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit events")
}
