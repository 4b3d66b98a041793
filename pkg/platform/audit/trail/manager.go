// Package trail is the single ingestion point for audit events.
//
// Manager owns an in-memory queue. LogEvent validates, redacts and stamps an
// entry, writes it to the diagnostic log and enqueues it without waiting on any
// I/O. A background flush drains the queue in enqueue order and batch-inserts
// into the store; at most one flush runs at a time.
//
// Delivery is at-least-once: a failed batch is re-queued at the head and the
// same event IDs are resent, so stores must ignore duplicate IDs. Retries are
// bounded (MaxAttempts with exponential backoff); exhausted events and queue
// overflow go to the dead-letter spool instead of being dropped.
//
// After a successful persist the batch is handed to the observer (real-time
// monitoring), and any CRITICAL or failed HIGH events are forwarded as exactly
// one alert per batch. Alert failures are logged and never affect persistence.
package trail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/deadletter"
	"workspace-audit/pkg/platform/audit/integrity"
	"workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/redact"
)

// Observer inspects persisted batches and returns any alerts to raise.
type Observer interface {
	Observe(ctx context.Context, events []audit.Event) []alert.Alert
}

// Dispatcher delivers alerts to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert) error
}

type pending struct {
	event    audit.Event
	attempts int
}

// Manager is the audit trail manager. Create it with New; it is safe for
// concurrent use.
type Manager struct {
	store      audit.Writer
	redactor   *redact.Redactor
	spool      deadletter.Spool
	dispatcher Dispatcher
	observer   Observer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	instanceID string

	batchSize      int
	maxQueue       int
	maxAttempts    int
	retryBackoff   time.Duration
	maxBackoff     time.Duration
	persistTimeout time.Duration
	alertTimeout   time.Duration

	mu           sync.Mutex
	idle         *sync.Cond
	queue        []pending
	sequence     int64
	flushing     bool
	backoffUntil time.Time
	retryTimer   *time.Timer
	closed       bool

	wg sync.WaitGroup
}

// New creates a trail manager persisting to store.
func New(store audit.Writer, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "audit store is required")
	}
	m := &Manager{
		store:          store,
		logger:         slog.Default(),
		now:            time.Now,
		instanceID:     uuid.NewString(),
		batchSize:      100,
		maxQueue:       10000,
		maxAttempts:    5,
		retryBackoff:   200 * time.Millisecond,
		maxBackoff:     30 * time.Second,
		persistTimeout: 5 * time.Second,
		alertTimeout:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.idle = sync.NewCond(&m.mu)
	if m.redactor == nil {
		m.redactor = redact.New()
	}
	if m.spool == nil {
		m.logger.Warn("no dead-letter spool configured; using in-memory spool")
		m.spool = deadletter.NewMemorySpool()
	}
	return m, nil
}

// InstanceID identifies this manager in event records.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// LogEvent validates, redacts and enqueues an entry, returning the stamped event.
// Only malformed entries produce an error; persistence problems never surface here.
func (m *Manager) LogEvent(ctx context.Context, entry audit.Entry) (audit.Event, error) {
	if err := entry.Validate(); err != nil {
		m.metrics.IncRejected()
		m.logger.WarnContext(ctx, "rejected audit entry",
			"category", entry.Category,
			"action", entry.Action,
			"admin_id", entry.AdminID,
			"error", err,
		)
		return audit.Event{}, err
	}
	category, _ := audit.ResolveCategory(entry.Category, entry.Action)

	event := m.redactor.RedactEvent(audit.Event{
		Category:   category,
		Action:     entry.Action,
		Severity:   entry.Severity,
		AdminID:    entry.AdminID,
		AdminRoles: entry.AdminRoles,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		Metadata:   entry.Metadata,
		Success:    entry.Success,
		Error:      entry.Error,
		InstanceID: m.instanceID,
	})
	if event.AdminRoles == nil {
		event.AdminRoles = []string{}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return audit.Event{}, dErrors.New(dErrors.CodeUnavailable, "audit trail is closed")
	}
	event.Timestamp = audit.ServerTime(m.now())
	id, err := audit.NewEventID(event.Timestamp)
	if err != nil {
		m.mu.Unlock()
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate audit event id")
	}
	event.ID = id
	m.sequence++
	event.Sequence = m.sequence
	event.VerificationHash = integrity.ComputeEventHash(event)

	m.queue = append(m.queue, pending{event: event})
	overflow := m.trimLocked()
	if len(overflow) > 0 {
		// Registered under the lock so Close cannot start waiting first.
		m.wg.Add(1)
	}
	depth := len(m.queue)
	start := m.startFlushLocked()
	m.mu.Unlock()

	m.console(ctx, event)
	m.metrics.IncEnqueued()
	m.metrics.SetQueueDepth(depth)

	if len(overflow) > 0 {
		go func() {
			defer m.wg.Done()
			m.deadLetter(context.Background(), overflow, deadletter.ReasonQueueOverflow)
		}()
	}
	if start {
		go m.flushLoop()
	}
	return event, nil
}

// QueueLen returns the number of events waiting to be flushed.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Flush synchronously drains the queue, ignoring any retry backoff. It waits
// for an in-flight background flush first and returns the first persistence
// error; failed events stay queued for retry.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	for m.flushing {
		m.idle.Wait()
	}
	m.flushing = true
	m.backoffUntil = time.Time{}
	m.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			m.release()
			return err
		}
		batch, ok := m.nextBatch()
		if !ok {
			return nil
		}
		stored, err := m.persist(ctx, batch)
		if err != nil {
			m.handleFailure(ctx, batch, err)
			return err
		}
		m.afterPersist(ctx, stored)
	}
}

// Close stops accepting events, drains the queue and spools anything that
// could not be persisted.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.mu.Unlock()

	flushErr := m.Flush(ctx)

	m.mu.Lock()
	rest := m.queue
	m.queue = nil
	m.mu.Unlock()
	if len(rest) > 0 {
		m.deadLetter(context.WithoutCancel(ctx), rest, deadletter.ReasonShutdown)
	}
	m.metrics.SetQueueDepth(0)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if flushErr != nil {
		m.logger.WarnContext(ctx, "audit trail closed with unpersisted events spooled",
			"spooled", len(rest),
			"error", flushErr,
		)
	}
	return nil
}
