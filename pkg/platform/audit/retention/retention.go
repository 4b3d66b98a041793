// Package retention purges audit events past their severity tier's retention
// period. HIGH and CRITICAL events are archived before they are deleted.
//
// Cleanup is not self-scheduling. An external scheduler (cron, job runner or
// the admin API trigger) calls CleanupExpiredAudits; reruns are safe.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/archive"
	"workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/tracer"
)

const defaultPageSize = 500

// Result reports one cleanup run.
type Result struct {
	Deleted      map[audit.Severity]int64     `json:"deleted"`
	Archived     int64                        `json:"archived"`
	TotalDeleted int64                        `json:"totalDeleted"`
	Cutoffs      map[audit.Severity]time.Time `json:"cutoffs"`
	StartedAt    time.Time                    `json:"startedAt"`
	Duration     time.Duration                `json:"duration"`
}

// Service runs retention cleanup.
type Service struct {
	store    audit.Purger
	archive  archive.Sink
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
	now      func() time.Time
	pageSize int

	running sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPageSize sets how many expired archivable events are read per batch.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New returns a retention service. sink may be nil only if no tier requires
// archiving; otherwise cleanup of those tiers fails rather than deleting
// unarchived events.
func New(store audit.Purger, sink archive.Sink, opts ...Option) *Service {
	s := &Service{
		store:    store,
		archive:  sink,
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
		now:      time.Now,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CleanupExpiredAudits deletes every event strictly older than its tier's
// cutoff. An event exactly at the cutoff is kept. A concurrent call fails
// with CodeConflict instead of waiting.
//
// On error the partial result is returned alongside it.
func (s *Service) CleanupExpiredAudits(ctx context.Context) (result *Result, err error) {
	if !s.running.TryLock() {
		return nil, dErrors.New(dErrors.CodeConflict, "retention cleanup already running")
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, tracer.SpanRetention)
	defer func() { span.End(err) }()

	started := time.Now()
	now := s.now().UTC()
	result = &Result{
		Deleted:   make(map[audit.Severity]int64, len(audit.Severities)),
		Cutoffs:   make(map[audit.Severity]time.Time, len(audit.Severities)),
		StartedAt: now,
	}
	defer func() {
		result.Duration = time.Since(started)
		span.SetAttributes(
			tracer.Int64(tracer.AttrDeleted, result.TotalDeleted),
			tracer.Int64(tracer.AttrArchived, result.Archived),
		)
	}()

	for _, sev := range audit.Severities {
		cutoff := audit.RetentionCutoff(sev, now)
		result.Cutoffs[sev] = cutoff

		var deleted, archived int64
		if audit.RequiresArchive(sev) {
			deleted, archived, err = s.archiveAndDelete(ctx, sev, cutoff)
		} else {
			deleted, err = s.store.DeleteExpired(ctx, sev, cutoff)
		}
		result.Deleted[sev] += deleted
		result.TotalDeleted += deleted
		result.Archived += archived
		s.metrics.AddRetention(string(sev), deleted, archived)

		if err != nil {
			s.logger.ErrorContext(ctx, "audit retention cleanup failed",
				"severity", sev,
				"cutoff", cutoff,
				"deleted", deleted,
				"error", err,
			)
			return result, dErrors.Wrap(err, dErrors.CodeInternal, "retention cleanup failed for "+string(sev))
		}
		if deleted > 0 {
			s.logger.InfoContext(ctx, "audit retention tier cleaned",
				"severity", sev,
				"cutoff", cutoff,
				"deleted", deleted,
				"archived", archived,
			)
		}
	}
	return result, nil
}

// archiveAndDelete pages through expired events, archives each UTC day group
// and deletes the group only after its archive write succeeded.
func (s *Service) archiveAndDelete(ctx context.Context, sev audit.Severity, cutoff time.Time) (deleted, archived int64, err error) {
	if s.archive == nil {
		return 0, 0, dErrors.New(dErrors.CodeUnavailable, "no archive sink configured for "+string(sev)+" events")
	}
	for {
		if err := ctx.Err(); err != nil {
			return deleted, archived, err
		}
		page, err := s.store.ListExpired(ctx, sev, cutoff, s.pageSize)
		if err != nil {
			return deleted, archived, err
		}
		if len(page) == 0 {
			return deleted, archived, nil
		}

		var pageDeleted int64
		for _, group := range groupByDay(page) {
			_, written, err := s.archive.Write(ctx, sev, group.day, group.events)
			if err != nil {
				return deleted, archived, err
			}
			archived += int64(written)
			n, err := s.store.DeleteByIDs(ctx, ids(group.events))
			deleted += n
			pageDeleted += n
			if err != nil {
				return deleted, archived, err
			}
		}
		// A page that deletes nothing would be listed again forever.
		if pageDeleted == 0 {
			return deleted, archived, fmt.Errorf("%d expired %s events were archived but not deleted", len(page), sev)
		}
	}
}

type dayGroup struct {
	day    time.Time
	events []audit.Event
}

// groupByDay buckets events by UTC calendar day, keeping first-seen order.
func groupByDay(events []audit.Event) []dayGroup {
	var groups []dayGroup
	index := make(map[time.Time]int)
	for _, e := range events {
		t := e.Timestamp.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, dayGroup{day: day})
		}
		groups[i].events = append(groups[i].events, e)
	}
	return groups
}

func ids(events []audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
