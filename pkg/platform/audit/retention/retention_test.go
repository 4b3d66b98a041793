package retention_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"workspace-audit/internal/platform/blobstore"
	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/archive"
	"workspace-audit/pkg/platform/audit/retention"
	"workspace-audit/pkg/platform/audit/store/memory"
)

// flakyStore fails the next failDeletes DeleteByIDs calls.
type flakyStore struct {
	*memory.InMemoryStore
	failDeletes atomic.Int32
}

func (f *flakyStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if f.failDeletes.Add(-1) >= 0 {
		return 0, errors.New("connection lost")
	}
	return f.InMemoryStore.DeleteByIDs(ctx, ids)
}

type failingSink struct{}

func (failingSink) Write(context.Context, audit.Severity, time.Time, []audit.Event) (string, int, error) {
	return "", 0, errors.New("bucket unavailable")
}

type gatedSink struct {
	archive.Sink
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) Write(ctx context.Context, sev audit.Severity, day time.Time, events []audit.Event) (string, int, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Sink.Write(ctx, sev, day, events)
}

// RetentionSuite tests tiered cleanup.
//
// Justification: Deleting an audit event is irreversible. The cutoff must be
// strict, HIGH and CRITICAL events must reach the archive first, and reruns
// must neither delete nor archive anything twice.
type RetentionSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *flakyStore
	blobs *blobstore.MemoryStore
	sink  *archive.BlobSink
	svc   *retention.Service
}

func TestRetentionSuite(t *testing.T) {
	suite.Run(t, new(RetentionSuite))
}

func (s *RetentionSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.store = &flakyStore{InMemoryStore: memory.NewInMemoryStore()}
	s.blobs = blobstore.NewMemoryStore()
	s.sink = archive.NewBlobSink(s.blobs)
	s.svc = s.newService(s.sink)
}

func (s *RetentionSuite) newService(sink archive.Sink, opts ...retention.Option) *retention.Service {
	opts = append([]retention.Option{retention.WithClock(func() time.Time { return s.now })}, opts...)
	return retention.New(s.store, sink, opts...)
}

func (s *RetentionSuite) put(sev audit.Severity, at time.Time) audit.Event {
	id, err := audit.NewEventID(at)
	s.Require().NoError(err)
	e := audit.Event{
		ID:        id,
		Category:  audit.CategoryUserManagement,
		Action:    audit.ActionUserUpdate,
		Severity:  sev,
		AdminID:   "adm_1",
		Resource:  "user",
		Timestamp: at,
		Success:   true,
	}
	s.Require().NoError(s.store.InsertBatch(s.ctx, []audit.Event{e}))
	return e
}

func (s *RetentionSuite) archivedKeys() []string {
	keys, err := s.blobs.List(s.ctx, archive.DefaultPrefix+"/")
	s.Require().NoError(err)
	return keys
}

func (s *RetentionSuite) TestCutoffIsStrict() {
	expired := map[audit.Severity]audit.Event{}
	for _, sev := range audit.Severities {
		cutoff := audit.RetentionCutoff(sev, s.now)
		expired[sev] = s.put(sev, cutoff.Add(-time.Millisecond))
		s.put(sev, cutoff)
		s.put(sev, cutoff.Add(time.Millisecond))
	}

	res, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	for _, sev := range audit.Severities {
		s.Equal(int64(1), res.Deleted[sev], sev)
		s.Equal(audit.RetentionCutoff(sev, s.now), res.Cutoffs[sev])
		_, err := s.store.Get(s.ctx, expired[sev].ID)
		s.ErrorIs(err, audit.ErrNotFound)
	}
	s.Equal(int64(4), res.TotalDeleted)
	s.Equal(int64(2), res.Archived)
	s.Equal(8, s.store.Len(), "events at and after the cutoff are retained")
}

func (s *RetentionSuite) TestSecondRunIsNoop() {
	for _, sev := range audit.Severities {
		cutoff := audit.RetentionCutoff(sev, s.now)
		for i := range 3 {
			s.put(sev, cutoff.Add(-time.Duration(i+1)*time.Hour))
		}
	}

	first, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(12), first.TotalDeleted)
	s.Equal(int64(6), first.Archived)
	keys := s.archivedKeys()

	second, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Zero(second.TotalDeleted)
	s.Zero(second.Archived)
	s.Equal(keys, s.archivedKeys())
}

func (s *RetentionSuite) TestArchivesBeforeDeleting() {
	cutoff := audit.RetentionCutoff(audit.SeverityCritical, s.now)
	day1 := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC).Add(-24 * time.Hour)
	a := s.put(audit.SeverityCritical, day1.Add(time.Hour))
	b := s.put(audit.SeverityCritical, day1.Add(2*time.Hour))
	c := s.put(audit.SeverityCritical, day1.Add(-time.Hour))

	_, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)

	keys := s.archivedKeys()
	s.Require().Len(keys, 2, "one object per UTC day")
	for _, k := range keys {
		s.Regexp(`^audit-archive/CRITICAL/\d{4}/\d{2}/\d{2}/[0-9a-f]{64}\.jsonl\.gz$`, k)
	}

	var restored []string
	for _, k := range keys {
		events, err := s.sink.Read(s.ctx, k)
		s.Require().NoError(err)
		for _, e := range events {
			restored = append(restored, e.ID)
		}
	}
	s.ElementsMatch([]string{a.ID, b.ID, c.ID}, restored)
	s.Equal(archive.Key(archive.DefaultPrefix, audit.SeverityCritical, day1, []audit.Event{b, a}),
		archive.Key(archive.DefaultPrefix, audit.SeverityCritical, day1, []audit.Event{a, b}))
}

func (s *RetentionSuite) TestLowAndMediumAreNotArchived() {
	s.put(audit.SeverityLow, audit.RetentionCutoff(audit.SeverityLow, s.now).Add(-time.Hour))
	s.put(audit.SeverityMedium, audit.RetentionCutoff(audit.SeverityMedium, s.now).Add(-time.Hour))

	res, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), res.TotalDeleted)
	s.Zero(res.Archived)
	s.Empty(s.archivedKeys())
}

func (s *RetentionSuite) TestArchiveFailureKeepsEvents() {
	e := s.put(audit.SeverityHigh, audit.RetentionCutoff(audit.SeverityHigh, s.now).Add(-time.Hour))
	svc := s.newService(failingSink{})

	_, err := svc.CleanupExpiredAudits(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	_, err = s.store.Get(s.ctx, e.ID)
	s.NoError(err, "event must survive a failed archive write")
}

func (s *RetentionSuite) TestRerunAfterCrashDoesNotDoubleArchive() {
	e := s.put(audit.SeverityHigh, audit.RetentionCutoff(audit.SeverityHigh, s.now).Add(-time.Hour))
	s.store.failDeletes.Store(1)

	first, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().Error(err)
	s.Equal(int64(1), first.Archived)
	s.Zero(first.Deleted[audit.SeverityHigh])
	_, err = s.store.Get(s.ctx, e.ID)
	s.Require().NoError(err)

	second, err := s.svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Zero(second.Archived, "the batch was archived by the first run")
	s.Equal(int64(1), second.Deleted[audit.SeverityHigh])
	s.Len(s.archivedKeys(), 1)
}

func (s *RetentionSuite) TestRerunWithDifferentPagingArchivesEachEventOnce() {
	cutoff := audit.RetentionCutoff(audit.SeverityHigh, s.now)
	var want []string
	for i := range 3 {
		want = append(want, s.put(audit.SeverityHigh, cutoff.Add(-time.Duration(i+1)*time.Hour)).ID)
	}
	s.store.failDeletes.Store(1)

	first, err := s.newService(s.sink, retention.WithPageSize(3)).CleanupExpiredAudits(s.ctx)
	s.Require().Error(err)
	s.Equal(int64(3), first.Archived)
	s.Equal(3, s.store.Len())

	second, err := s.newService(s.sink, retention.WithPageSize(2)).CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Zero(second.Archived)
	s.Equal(int64(3), second.Deleted[audit.SeverityHigh])

	keys := s.archivedKeys()
	s.Require().Len(keys, 1)
	restored, err := s.sink.Read(s.ctx, keys[0])
	s.Require().NoError(err)
	var got []string
	for _, e := range restored {
		got = append(got, e.ID)
	}
	s.ElementsMatch(want, got)
}

func (s *RetentionSuite) TestPagesThroughLargeTiers() {
	svc := s.newService(s.sink, retention.WithPageSize(2))
	cutoff := audit.RetentionCutoff(audit.SeverityHigh, s.now)
	for i := range 7 {
		s.put(audit.SeverityHigh, cutoff.Add(-time.Duration(i*6)*time.Hour-time.Minute))
	}

	res, err := svc.CleanupExpiredAudits(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(7), res.Deleted[audit.SeverityHigh])
	s.Equal(int64(7), res.Archived)
	s.Zero(s.store.Len())
}

func (s *RetentionSuite) TestMissingSinkRefusesToPurgeArchivableTiers() {
	low := s.put(audit.SeverityLow, audit.RetentionCutoff(audit.SeverityLow, s.now).Add(-time.Hour))
	high := s.put(audit.SeverityHigh, audit.RetentionCutoff(audit.SeverityHigh, s.now).Add(-time.Hour))
	svc := retention.New(s.store, nil, retention.WithClock(func() time.Time { return s.now }))

	res, err := svc.CleanupExpiredAudits(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(int64(1), res.Deleted[audit.SeverityLow])

	_, err = s.store.Get(s.ctx, low.ID)
	s.ErrorIs(err, audit.ErrNotFound)
	_, err = s.store.Get(s.ctx, high.ID)
	s.NoError(err)
}

func (s *RetentionSuite) TestConcurrentRunIsRejected() {
	s.put(audit.SeverityHigh, audit.RetentionCutoff(audit.SeverityHigh, s.now).Add(-time.Hour))
	gate := &gatedSink{Sink: s.sink, entered: make(chan struct{}), release: make(chan struct{})}
	svc := s.newService(gate)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CleanupExpiredAudits(s.ctx)
		done <- err
	}()
	<-gate.entered

	_, err := svc.CleanupExpiredAudits(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), fmt.Sprint(err))

	close(gate.release)
	s.NoError(<-done)
}
