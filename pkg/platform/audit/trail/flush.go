package trail

import (
	"context"
	"errors"
	"slices"
	"time"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/deadletter"
)

// startFlushLocked claims the flush slot when no flush is running, the manager
// is open and no retry backoff is pending. The caller must start flushLoop
// when it returns true.
func (m *Manager) startFlushLocked() bool {
	if m.flushing || m.closed || len(m.queue) == 0 || m.now().Before(m.backoffUntil) {
		return false
	}
	m.flushing = true
	m.wg.Add(1)
	return true
}

func (m *Manager) flushLoop() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		batch, ok := m.nextBatch()
		if !ok {
			return
		}
		stored, err := m.persist(ctx, batch)
		if err != nil {
			m.handleFailure(ctx, batch, err)
			return
		}
		m.afterPersist(ctx, stored)
	}
}

// nextBatch takes up to batchSize events from the head of the queue. When the
// queue is empty it releases the flush slot and returns false.
func (m *Manager) nextBatch() ([]pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.queue = nil
		m.flushing = false
		m.idle.Broadcast()
		return nil, false
	}
	n := min(m.batchSize, len(m.queue))
	batch := make([]pending, n)
	copy(batch, m.queue[:n])
	m.queue = m.queue[n:]
	m.metrics.SetQueueDepth(len(m.queue))
	return batch, true
}

func (m *Manager) release() {
	m.mu.Lock()
	m.flushing = false
	m.idle.Broadcast()
	m.mu.Unlock()
}

// persist writes a batch and returns the events that were stored. Events the
// store could not encode are dead-lettered at once; retrying cannot fix them.
func (m *Manager) persist(ctx context.Context, batch []pending) ([]pending, error) {
	insertCtx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()

	start := time.Now()
	err := m.store.InsertBatch(insertCtx, eventsOf(batch))
	var unencodable *audit.UnencodableError
	if errors.As(err, &unencodable) {
		var rejected []pending
		batch, rejected = splitByID(batch, unencodable.IDs)
		m.logger.ErrorContext(ctx, "audit events could not be encoded",
			"event_ids", unencodable.IDs,
			"error", unencodable.Err,
		)
		if len(rejected) > 0 {
			m.deadLetter(ctx, rejected, deadletter.ReasonUnencodable)
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	m.metrics.ObserveFlush(len(batch), time.Since(start).Seconds())
	return batch, nil
}

func splitByID(batch []pending, ids []string) (kept, removed []pending) {
	for _, p := range batch {
		if slices.Contains(ids, p.event.ID) {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, removed
}

// handleFailure re-queues a failed batch at the head of the queue, spools
// events that ran out of attempts, schedules the next attempt after backoff
// and releases the flush slot.
func (m *Manager) handleFailure(ctx context.Context, batch []pending, err error) {
	var retry, exhausted []pending
	attempts := 0
	for _, p := range batch {
		p.attempts++
		attempts = max(attempts, p.attempts)
		if p.attempts >= m.maxAttempts {
			exhausted = append(exhausted, p)
			continue
		}
		retry = append(retry, p)
	}
	delay := m.backoff(attempts)

	m.mu.Lock()
	m.queue = append(retry, m.queue...)
	overflow := m.trimLocked()
	m.backoffUntil = m.now().Add(delay)
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	if !m.closed {
		m.retryTimer = time.AfterFunc(delay, m.kick)
	}
	m.flushing = false
	m.idle.Broadcast()
	depth := len(m.queue)
	m.mu.Unlock()

	m.metrics.IncPersistFailure(len(retry))
	m.metrics.SetQueueDepth(depth)
	m.logger.WarnContext(ctx, "audit batch persist failed; events re-queued",
		"batch_size", len(batch),
		"requeued", len(retry),
		"exhausted", len(exhausted),
		"attempt", attempts,
		"retry_in", delay,
		"error", err,
	)

	if len(exhausted) > 0 {
		m.deadLetter(ctx, exhausted, deadletter.ReasonRetriesExhausted)
	}
	if len(overflow) > 0 {
		m.deadLetter(ctx, overflow, deadletter.ReasonQueueOverflow)
	}
}

// kick restarts flushing once a retry backoff has elapsed.
func (m *Manager) kick() {
	m.mu.Lock()
	m.backoffUntil = time.Time{}
	start := m.startFlushLocked()
	m.mu.Unlock()
	if start {
		go m.flushLoop()
	}
}

func (m *Manager) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := m.retryBackoff * time.Duration(1<<(attempt-1))
	if d <= 0 || d > m.maxBackoff {
		return m.maxBackoff
	}
	return d
}

// trimLocked removes the oldest events beyond maxQueue and returns them.
func (m *Manager) trimLocked() []pending {
	excess := len(m.queue) - m.maxQueue
	if excess <= 0 {
		return nil
	}
	overflow := make([]pending, excess)
	copy(overflow, m.queue[:excess])
	m.queue = m.queue[excess:]
	return overflow
}

func (m *Manager) afterPersist(ctx context.Context, batch []pending) {
	events := eventsOf(batch)

	if a, ok := alert.ForBatch(events, m.now()); ok {
		m.dispatch(ctx, a)
	}
	if m.observer != nil {
		for _, a := range m.observer.Observe(ctx, events) {
			m.dispatch(ctx, a)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, a alert.Alert) {
	if m.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.alertTimeout)
	defer cancel()
	if err := m.dispatcher.Dispatch(ctx, a); err != nil {
		m.logger.WarnContext(ctx, "audit alert dispatch failed",
			"alert_type", a.Type,
			"event_ids", a.EventIDs(),
			"error", err,
		)
	}
}

func (m *Manager) deadLetter(ctx context.Context, batch []pending, reason string) {
	attempts := 0
	for _, p := range batch {
		attempts = max(attempts, p.attempts)
	}
	records := deadletter.Records(eventsOf(batch), reason, attempts, m.now())

	ctx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()
	if err := m.spool.Append(ctx, records); err != nil {
		ids := make([]string, len(batch))
		for i, p := range batch {
			ids[i] = p.event.ID
		}
		m.logger.ErrorContext(ctx, "failed to spool audit events; events lost",
			"reason", reason,
			"event_ids", ids,
			"error", err,
		)
		return
	}
	m.metrics.AddDeadLettered(reason, len(records))
	m.logger.WarnContext(ctx, "audit events moved to dead-letter spool",
		"reason", reason,
		"count", len(records),
	)
}

// console writes the redacted event to the diagnostic log.
func (m *Manager) console(ctx context.Context, e audit.Event) {
	m.logger.InfoContext(ctx, "audit_event",
		"log_type", "audit",
		"id", e.ID,
		"category", e.Category,
		"action", e.Action,
		"severity", e.Severity,
		"admin_id", e.AdminID,
		"admin_roles", e.AdminRoles,
		"resource", e.Resource,
		"resource_id", e.ResourceID,
		"old_values", e.OldValues,
		"new_values", e.NewValues,
		"metadata", e.Metadata,
		"success", e.Success,
		"error", e.Error,
		"timestamp", e.Timestamp,
	)
}

func eventsOf(batch []pending) []audit.Event {
	out := make([]audit.Event, len(batch))
	for i, p := range batch {
		out[i] = p.event
	}
	return out
}
