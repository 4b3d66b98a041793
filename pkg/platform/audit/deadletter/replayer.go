package deadletter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/metrics"
)

// Replayer polls the spool and re-inserts spooled events into the store.
// Store inserts are idempotent by event ID, so replaying an event that did in
// fact reach the store is harmless.
type Replayer struct {
	spool        Spool
	store        audit.Writer
	batchSize    int
	pollInterval time.Duration
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Replayer.
type Option func(*Replayer)

// WithBatchSize sets the maximum number of records replayed per insert.
func WithBatchSize(size int) Option {
	return func(r *Replayer) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Replayer) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithTimeout bounds each store insert.
func WithTimeout(d time.Duration) Option {
	return func(r *Replayer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Replayer) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replayer) {
		r.logger = logger
	}
}

// NewReplayer creates a replayer. Call Start to begin polling.
func NewReplayer(spool Spool, store audit.Writer, opts ...Option) *Replayer {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Replayer{
		spool:        spool,
		store:        store,
		batchSize:    200,
		pollInterval: 30 * time.Second,
		timeout:      5 * time.Second,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the polling loop in a background goroutine.
func (r *Replayer) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Replayer) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.drain()
			return
		case <-ticker.C:
			_, _ = r.ReplayOnce(r.ctx) //nolint:errcheck // errors logged inside
		}
	}
}

// ReplayOnce replays spooled records until the spool is empty or an insert fails.
// It returns the number of events replayed.
func (r *Replayer) ReplayOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.spool.Drain(ctx, r.batchSize, r.insert)
		total += n
		if err != nil {
			r.logger.WarnContext(ctx, "dead-letter replay failed; will retry",
				"replayed", total,
				"error", err,
			)
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total > 0 {
		r.metrics.AddReplayed(total)
		r.logger.InfoContext(ctx, "replayed dead-lettered audit events", "count", total)
	}
	return total, nil
}

func (r *Replayer) insert(ctx context.Context, records []Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.InsertBatch(ctx, Events(records))
}

// drain makes one last replay attempt during shutdown.
func (r *Replayer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _ = r.ReplayOnce(ctx) //nolint:errcheck // errors logged inside
}

// Stop gracefully stops the replayer.
func (r *Replayer) Stop(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
