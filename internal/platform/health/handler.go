// Package health serves the liveness, readiness and status checks.
//
// Readiness distinguishes required dependencies from degradable ones. The
// audit store is required: without it events only pile up in the dead-letter
// spool. Redis and Kafka have in-process fallbacks, so their failure reports
// "degraded" but keeps the instance in rotation.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"workspace-audit/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Checker reports the health of one dependency.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type check struct {
	Checker
	required bool
}

type Handler struct {
	started      time.Time
	environment  string
	instanceID   string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]check
}

// New returns a Handler. instanceID is the trail manager instance, reported on
// /health so chain validation breaks can be traced to a process.
func New(environment, instanceID string) *Handler {
	return &Handler{
		started:      time.Now(),
		environment:  environment,
		instanceID:   instanceID,
		checkTimeout: 2 * time.Second,
		checks:       make(map[string]check),
	}
}

// RegisterCheck adds a required dependency. Its failure fails readiness.
func (h *Handler) RegisterCheck(name string, c Checker) {
	h.register(name, c, true)
}

// RegisterDegradable adds a dependency whose failure only degrades readiness.
func (h *Handler) RegisterDegradable(name string, c Checker) {
	h.register(name, c, false)
}

func (h *Handler) register(name string, c Checker, required bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{Checker: c, required: required}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every check in parallel under one deadline.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	var (
		mu          sync.Mutex
		resp        = ReadinessResponse{Status: StatusReady, Checks: make(map[string]string, len(checks))}
		requiredBad bool
	)
	var g errgroup.Group
	for name, c := range checks {
		g.Go(func() error {
			err := c.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				resp.Checks[name] = "up"
				return nil
			}
			resp.Checks[name] = "down: " + err.Error()
			if c.required {
				requiredBad = true
			} else if resp.Status == StatusReady {
				resp.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	if requiredBad {
		resp.Status = StatusNotReady
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	InstanceID    string `json:"instance_id,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		InstanceID:    h.instanceID,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
