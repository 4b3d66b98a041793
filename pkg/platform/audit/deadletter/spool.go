// Package deadletter holds audit events that could not be persisted after
// bounded retries, and replays them once the store is reachable again.
//
// Audit records are never dropped: overflow and retry exhaustion both land here.
package deadletter

import (
	"context"
	"sync"
	"time"

	"workspace-audit/pkg/platform/audit"
)

// Reasons recorded with spooled events.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonQueueOverflow    = "queue_overflow"
	ReasonShutdown         = "shutdown"
	ReasonUnencodable      = "unencodable"
)

// Record is one spooled event.
type Record struct {
	Event     audit.Event `json:"event"`
	Reason    string      `json:"reason"`
	Attempts  int         `json:"attempts"`
	SpooledAt time.Time   `json:"spooledAt"`
}

// Spool is a durable holding area for unpersisted events.
// Implementations must be safe for concurrent use.
type Spool interface {
	// Append durably records events. It must not return until they are stored.
	Append(ctx context.Context, records []Record) error

	// Drain passes up to limit of the oldest records to fn and removes them only
	// if fn succeeds. It returns how many records were removed.
	Drain(ctx context.Context, limit int, fn func(ctx context.Context, records []Record) error) (int, error)

	// Len returns the number of spooled records.
	Len(ctx context.Context) (int, error)
}

// Records wraps events into spool records.
func Records(events []audit.Event, reason string, attempts int, now time.Time) []Record {
	out := make([]Record, len(events))
	for i, e := range events {
		out[i] = Record{Event: e, Reason: reason, Attempts: attempts, SpooledAt: now}
	}
	return out
}

// Events unwraps spool records.
func Events(records []Record) []audit.Event {
	out := make([]audit.Event, len(records))
	for i, r := range records {
		out[i] = r.Event
	}
	return out
}

// MemorySpool is an in-process Spool for tests and single-node development.
type MemorySpool struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySpool creates an empty in-memory spool.
func NewMemorySpool() *MemorySpool {
	return &MemorySpool{}
}

// Append implements Spool.
func (s *MemorySpool) Append(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Drain implements Spool.
func (s *MemorySpool) Drain(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.records))
	if n == 0 {
		return 0, nil
	}
	batch := append([]Record(nil), s.records[:n]...)
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	s.records = s.records[n:]
	return n, nil
}

// Len implements Spool.
func (s *MemorySpool) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Snapshot returns a copy of the spooled records.
func (s *MemorySpool) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}
