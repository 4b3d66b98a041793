// Package memory provides an in-process audit store for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	audit "workspace-audit/pkg/platform/audit"
)

// InMemoryStore implements audit.Store. Inserting an existing ID is a no-op,
// matching the Postgres store's ON CONFLICT DO NOTHING.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]audit.Event
	order  []string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]audit.Event)}
}

// Clear removes every event.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string]audit.Event)
	s.order = nil
}

// InsertBatch implements audit.Writer.
func (s *InMemoryStore) InsertBatch(ctx context.Context, events []audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if _, exists := s.events[e.ID]; exists {
			continue
		}
		s.events[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return nil
}

// Put overwrites an event in place. Only tests use it, to simulate tampering.
func (s *InMemoryStore) Put(e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.events[e.ID] = e
}

// Get implements audit.Reader.
func (s *InMemoryStore) Get(_ context.Context, id string) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, audit.ErrNotFound
	}
	return &e, nil
}

// Find implements audit.Reader.
func (s *InMemoryStore) Find(_ context.Context, f audit.Filter) ([]audit.Event, error) {
	if f.Offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	matched := s.match(f)
	audit.SortEvents(matched, f.Order)

	if f.Offset >= len(matched) {
		return []audit.Event{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Count implements audit.Reader.
func (s *InMemoryStore) Count(_ context.Context, f audit.Filter) (int64, error) {
	return int64(len(s.match(f))), nil
}

// ListExpired implements audit.Purger.
func (s *InMemoryStore) ListExpired(_ context.Context, severity audit.Severity, cutoff time.Time, limit int) ([]audit.Event, error) {
	expired := s.match(audit.Filter{Severity: severity, To: cutoff})
	audit.SortEvents(expired, audit.OldestFirst)
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// DeleteByIDs implements audit.Purger.
func (s *InMemoryStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.events[id]; ok {
			delete(s.events, id)
			deleted++
		}
	}
	s.compactLocked()
	return deleted, nil
}

// DeleteExpired implements audit.Purger.
func (s *InMemoryStore) DeleteExpired(_ context.Context, severity audit.Severity, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, e := range s.events {
		if e.Severity == severity && e.Timestamp.Before(cutoff) {
			delete(s.events, id)
			deleted++
		}
	}
	s.compactLocked()
	return deleted, nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// InsertionOrder returns IDs in the order they were first inserted.
func (s *InMemoryStore) InsertionOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *InMemoryStore) match(f audit.Filter) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.order))
	for _, id := range s.order {
		if e := s.events[id]; f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) compactLocked() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.events[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

var _ audit.Store = (*InMemoryStore)(nil)
