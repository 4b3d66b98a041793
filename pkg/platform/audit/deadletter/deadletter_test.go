package deadletter_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/deadletter"
	"workspace-audit/pkg/platform/audit/store/memory"
)

func spooledEvents(n int) []audit.Event {
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	out := make([]audit.Event, n)
	for i := range n {
		at := base.Add(time.Duration(i) * time.Millisecond)
		out[i] = audit.Event{
			ID:        fmt.Sprintf("aud_%d_%016x", at.UnixMilli(), i),
			Category:  audit.CategorySecurity,
			Action:    audit.ActionAPIKeyRevoke,
			Severity:  audit.SeverityHigh,
			AdminID:   "adm_1",
			Resource:  "api_key",
			Timestamp: at,
			Success:   true,
			Metadata:  map[string]any{"reason": "rotation"},
		}
	}
	return out
}

// FileSpoolSuite tests the on-disk dead-letter spool.
//
// Justification: The spool is the last line of defence during a storage
// outage. Records must survive a process restart and a failed replay must
// leave them in place.
type FileSpoolSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	spool *deadletter.FileSpool
}

func TestFileSpoolSuite(t *testing.T) {
	suite.Run(t, new(FileSpoolSuite))
}

func (s *FileSpoolSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "spool", "audit.jsonl")
	var err error
	s.spool, err = deadletter.NewFileSpool(s.path, nil)
	s.Require().NoError(err)
}

func (s *FileSpoolSuite) TestAppendSurvivesReopen() {
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(3), deadletter.ReasonRetriesExhausted, 5, now)))

	reopened, err := deadletter.NewFileSpool(s.path, nil)
	s.Require().NoError(err)
	n, err := reopened.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	var got []deadletter.Record
	drained, err := reopened.Drain(s.ctx, 10, func(_ context.Context, records []deadletter.Record) error {
		got = records
		return nil
	})
	s.Require().NoError(err)
	s.Equal(3, drained)
	s.Require().Len(got, 3)
	s.Equal(deadletter.ReasonRetriesExhausted, got[0].Reason)
	s.Equal(5, got[0].Attempts)
	s.Equal("rotation", got[0].Event.MetaString("reason"))
	s.True(got[0].Event.Timestamp.Equal(spooledEvents(1)[0].Timestamp))
}

func (s *FileSpoolSuite) TestDrainRespectsLimitAndKeepsRemainder() {
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(5), deadletter.ReasonQueueOverflow, 0, time.Now())))

	n, err := s.spool.Drain(s.ctx, 2, func(context.Context, []deadletter.Record) error { return nil })
	s.Require().NoError(err)
	s.Equal(2, n)

	left, err := s.spool.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, left)
}

func (s *FileSpoolSuite) TestFailedDrainLeavesRecords() {
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(2), deadletter.ReasonShutdown, 1, time.Now())))

	_, err := s.spool.Drain(s.ctx, 10, func(context.Context, []deadletter.Record) error {
		return errors.New("still down")
	})
	s.Require().Error(err)

	left, err := s.spool.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, left)
}

func (s *FileSpoolSuite) TestCorruptLinesAreQuarantined() {
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(1), deadletter.ReasonShutdown, 1, time.Now())))
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	s.Require().NoError(err)
	_, err = f.WriteString("{not json\n")
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	var replayed int
	n, err := s.spool.Drain(s.ctx, 10, func(_ context.Context, records []deadletter.Record) error {
		replayed = len(records)
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(1, replayed)

	quarantined, err := os.ReadFile(s.path + ".corrupt")
	s.Require().NoError(err)
	s.Contains(string(quarantined), "{not json")
}

func (s *FileSpoolSuite) TestUnencodablePayloadDoesNotBlockBatch() {
	events := spooledEvents(4)
	events[1].NewValues = map[string]any{"refundAmount": math.NaN()}
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(events, deadletter.ReasonRetriesExhausted, 5, time.Now())))

	var got []deadletter.Record
	_, err := s.spool.Drain(s.ctx, 10, func(_ context.Context, records []deadletter.Record) error {
		got = records
		return nil
	})
	s.Require().NoError(err)
	s.Require().Len(got, 4)
	s.Equal(events[1].ID, got[1].Event.ID)
	s.Equal(map[string]any{"error": audit.UnencodablePayload}, got[1].Event.NewValues)
	s.Equal("rotation", got[1].Event.MetaString("reason"), "encodable payloads are kept")
	s.Equal("rotation", got[2].Event.MetaString("reason"))
}

func (s *FileSpoolSuite) TestEmptySpool() {
	n, err := s.spool.Len(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	called := false
	drained, err := s.spool.Drain(s.ctx, 10, func(context.Context, []deadletter.Record) error {
		called = true
		return nil
	})
	s.Require().NoError(err)
	s.Zero(drained)
	s.False(called)
}

type flakyWriter struct {
	*memory.InMemoryStore
	failures int
}

func (w *flakyWriter) InsertBatch(ctx context.Context, events []audit.Event) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("database unavailable")
	}
	return w.InMemoryStore.InsertBatch(ctx, events)
}

// ReplayerSuite tests moving spooled events back into the store.
//
// Justification: Replays run after an outage while the trail may still be
// writing. Inserts are idempotent, so an event that reached the store before
// it was spooled must not be duplicated.
type ReplayerSuite struct {
	suite.Suite
	ctx   context.Context
	spool *deadletter.MemorySpool
	store *flakyWriter
}

func TestReplayerSuite(t *testing.T) {
	suite.Run(t, new(ReplayerSuite))
}

func (s *ReplayerSuite) SetupTest() {
	s.ctx = context.Background()
	s.spool = deadletter.NewMemorySpool()
	s.store = &flakyWriter{InMemoryStore: memory.NewInMemoryStore()}
}

func (s *ReplayerSuite) TestReplayOnceDrainsInBatches() {
	events := spooledEvents(5)
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(events, deadletter.ReasonRetriesExhausted, 5, time.Now())))
	s.Require().NoError(s.store.InsertBatch(s.ctx, events[:1]))

	r := deadletter.NewReplayer(s.spool, s.store, deadletter.WithBatchSize(2))
	n, err := r.ReplayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Equal(5, s.store.Len())
	s.Empty(s.spool.Snapshot())
}

func (s *ReplayerSuite) TestFailedReplayKeepsRecords() {
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(3), deadletter.ReasonShutdown, 1, time.Now())))
	s.store.failures = 1

	r := deadletter.NewReplayer(s.spool, s.store)
	_, err := r.ReplayOnce(s.ctx)
	s.Require().Error(err)
	s.Len(s.spool.Snapshot(), 3)

	n, err := r.ReplayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *ReplayerSuite) TestStopDrainsRemainingRecords() {
	s.Require().NoError(s.spool.Append(s.ctx, deadletter.Records(spooledEvents(2), deadletter.ReasonShutdown, 1, time.Now())))

	r := deadletter.NewReplayer(s.spool, s.store, deadletter.WithPollInterval(time.Hour))
	r.Start()
	s.Require().NoError(r.Stop(s.ctx))

	s.Equal(2, s.store.Len())
	s.Empty(s.spool.Snapshot())
}
