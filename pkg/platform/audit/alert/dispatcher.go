package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/circuit"
)

// Dispatcher fans an alert out to every configured notifier. Each delivery gets
// its own timeout and circuit breaker. When no notifier accepts the alert it is
// written to the fallback notifier so it is never lost silently.
type Dispatcher struct {
	notifiers []Notifier
	breakers  map[string]*circuit.Breaker
	fallback  Notifier
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	breakerOpts []circuit.Option
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each notifier call. Default is 3s.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithFallback replaces the log notifier used when every channel fails.
func WithFallback(n Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		d.fallback = n
	}
}

// WithBreakerOptions configures the per-notifier circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) DispatcherOption {
	return func(d *Dispatcher) {
		d.breakerOpts = append(d.breakerOpts, opts...)
	}
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers []Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		timeout:   3 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fallback == nil {
		d.fallback = NewLogNotifier(d.logger)
	}
	d.breakers = make(map[string]*circuit.Breaker, len(notifiers))
	for _, n := range notifiers {
		d.breakers[n.Name()] = circuit.New("alert-"+n.Name(), d.breakerOpts...)
	}
	return d
}

// Dispatch delivers a to every notifier. It returns the joined delivery errors
// for the caller to log; it never panics or blocks past the configured timeout
// per notifier.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) error {
	d.metrics.IncAlert(string(a.Type))

	delivered := 0
	var errs []error
	for _, n := range d.notifiers {
		breaker := d.breakers[n.Name()]
		if !breaker.Allow() {
			d.metrics.IncDispatchSkipped(n.Name())
			continue
		}
		err := d.notify(ctx, n, a)
		if t := breaker.Record(err); t.Changed() {
			d.logger.WarnContext(ctx, "alert notifier circuit changed state",
				"notifier", n.Name(),
				"from", t.From.String(),
				"to", t.To.String(),
			)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", n.Name(), err))
			d.metrics.IncDispatchFailure(n.Name())
			continue
		}
		delivered++
	}

	if delivered == 0 {
		if err := d.notify(ctx, d.fallback, a); err != nil {
			errs = append(errs, fmt.Errorf("notify fallback: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) notify(ctx context.Context, n Notifier, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return n.Notify(ctx, a)
}
