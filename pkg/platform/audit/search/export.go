package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"workspace-audit/internal/platform/blobstore"
	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/tracer"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts format names case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q: use json, csv or xlsx", s)
	}
}

// Status is an export job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job describes one export. RecordCount is set once the job completes.
type Job struct {
	ID          string     `json:"id"`
	Format      Format     `json:"format"`
	Status      Status     `json:"status"`
	URL         string     `json:"url"`
	Query       Query      `json:"query"`
	RequestedBy string     `json:"requestedBy,omitempty"`
	RecordCount int64      `json:"recordCount"`
	Truncated   bool       `json:"truncated,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	key string
}

// Exporter runs export jobs in the background and stores the artifacts in a
// blob store under exports/<id>.<format>.
type Exporter struct {
	reader     audit.Reader
	blobs      blobstore.Store
	baseURL    string
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
	now        func() time.Time
	timeout    time.Duration
	maxRecords int
	jobTTL     time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

type ExportOption func(*Exporter)

func WithExportLogger(logger *slog.Logger) ExportOption {
	return func(x *Exporter) {
		x.logger = logger
	}
}

func WithExportMetrics(m *metrics.Metrics) ExportOption {
	return func(x *Exporter) {
		x.metrics = m
	}
}

func WithExportTracer(t tracer.Tracer) ExportOption {
	return func(x *Exporter) {
		x.tracer = t
	}
}

func WithExportClock(now func() time.Time) ExportOption {
	return func(x *Exporter) {
		x.now = now
	}
}

// WithBaseURL sets the prefix of retrieval URLs, e.g. "https://admin.example.com/admin/audit/exports".
func WithBaseURL(u string) ExportOption {
	return func(x *Exporter) {
		x.baseURL = strings.TrimRight(u, "/")
	}
}

// WithExportTimeout bounds how long a single job may run.
func WithExportTimeout(d time.Duration) ExportOption {
	return func(x *Exporter) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithMaxRecords caps how many events one export contains.
func WithMaxRecords(n int) ExportOption {
	return func(x *Exporter) {
		if n > 0 {
			x.maxRecords = n
		}
	}
}

// WithJobTTL sets how long a finished job and its artifact are kept. Expired
// jobs are evicted when the next export starts.
func WithJobTTL(d time.Duration) ExportOption {
	return func(x *Exporter) {
		if d > 0 {
			x.jobTTL = d
		}
	}
}

func NewExporter(reader audit.Reader, blobs blobstore.Store, opts ...ExportOption) *Exporter {
	x := &Exporter{
		reader:     reader,
		blobs:      blobs,
		baseURL:    "/admin/audit/exports",
		tracer:     tracer.NewNoop(),
		logger:     slog.Default(),
		now:        time.Now,
		timeout:    5 * time.Minute,
		maxRecords: 100000,
		jobTTL:     24 * time.Hour,
		jobs:       make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ExportAudits validates the request, registers a pending job and starts it.
// Pagination fields in q are ignored; every matching event is exported,
// oldest first, up to the record cap.
func (x *Exporter) ExportAudits(ctx context.Context, q Query, format, requestedBy string) (*Job, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	q.Page, q.Limit = 0, 0
	q, err = q.Normalize()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	job := &Job{
		ID:          id,
		Format:      f,
		Status:      StatusPending,
		URL:         x.baseURL + "/" + id,
		Query:       q,
		RequestedBy: requestedBy,
		CreatedAt:   x.now().UTC(),
		key:         "exports/" + id + "." + string(f),
	}
	x.mu.Lock()
	expired := x.evictLocked(job.CreatedAt)
	x.jobs[id] = job
	snapshot := *job
	x.mu.Unlock()
	x.metrics.IncExportJob(string(f), string(StatusPending))

	if len(expired) > 0 {
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			x.deleteArtifacts(context.WithoutCancel(ctx), expired)
		}()
	}

	// The job outlives the request that started it.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.timeout)
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		defer cancel()
		x.run(jobCtx, id)
	}()
	return &snapshot, nil
}

// GetExport returns a snapshot of a job.
func (x *Exporter) GetExport(_ context.Context, id string) (*Job, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	job, ok := x.jobs[id]
	if !ok || x.expired(job, x.now().UTC()) {
		return nil, dErrors.New(dErrors.CodeNotFound, "export not found")
	}
	snapshot := *job
	return &snapshot, nil
}

// Download returns a completed job's artifact and content type.
func (x *Exporter) Download(ctx context.Context, id string) ([]byte, string, error) {
	job, err := x.GetExport(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != StatusCompleted {
		return nil, "", dErrors.New(dErrors.CodeConflict, "export is "+string(job.Status))
	}
	data, err := x.blobs.Get(ctx, job.key)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read export artifact")
	}
	return data, contentTypes[job.Format], nil
}

// Wait blocks until every started job has finished or ctx is done.
func (x *Exporter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		x.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (x *Exporter) run(ctx context.Context, id string) {
	job := x.transition(id, func(j *Job) { j.Status = StatusRunning })
	x.metrics.IncExportJob(string(job.Format), string(StatusRunning))

	count, truncated, err := x.produce(ctx, job)
	completed := x.now().UTC()
	job = x.transition(id, func(j *Job) {
		j.CompletedAt = &completed
		if err != nil {
			j.Status = StatusFailed
			j.Error = "export failed"
			return
		}
		j.Status = StatusCompleted
		j.RecordCount = count
		j.Truncated = truncated
	})
	x.metrics.IncExportJob(string(job.Format), string(job.Status))

	if err != nil {
		x.logger.ErrorContext(ctx, "audit export failed", "export_id", id, "format", job.Format, "error", err)
		return
	}
	x.logger.InfoContext(ctx, "audit export completed",
		"export_id", id,
		"format", job.Format,
		"records", count,
		"truncated", truncated,
	)
}

func (x *Exporter) produce(ctx context.Context, job Job) (count int64, truncated bool, err error) {
	ctx, span := x.tracer.Start(ctx, tracer.SpanExport, tracer.String(tracer.AttrFormat, string(job.Format)))
	defer func() { span.End(err) }()

	filter := job.Query.Filter()
	filter.Offset = 0
	filter.Limit = 500
	filter.Order = audit.OldestFirst

	var events []audit.Event
	err = audit.ForEach(ctx, x.reader, filter, func(page []audit.Event) error {
		room := x.maxRecords - len(events)
		if len(page) > room {
			page = page[:room]
			truncated = true
		}
		events = append(events, page...)
		if truncated {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, false, fmt.Errorf("read events: %w", err)
	}

	data, err := encoders[job.Format](events, x.now().UTC())
	if err != nil {
		return 0, false, fmt.Errorf("encode %s: %w", job.Format, err)
	}
	if err := x.blobs.Put(ctx, job.key, data, contentTypes[job.Format]); err != nil {
		return 0, false, fmt.Errorf("store artifact: %w", err)
	}
	span.SetAttributes(tracer.Int(tracer.AttrResultCount, len(events)))
	return int64(len(events)), truncated, nil
}

func (x *Exporter) transition(id string, fn func(*Job)) Job {
	x.mu.Lock()
	defer x.mu.Unlock()
	job := x.jobs[id]
	fn(job)
	return *job
}

func (x *Exporter) expired(job *Job, now time.Time) bool {
	return job.CompletedAt != nil && now.Sub(*job.CompletedAt) > x.jobTTL
}

// evictLocked drops finished jobs older than the TTL and returns their
// artifact keys.
func (x *Exporter) evictLocked(now time.Time) []string {
	var keys []string
	for id, job := range x.jobs {
		if x.expired(job, now) {
			delete(x.jobs, id)
			keys = append(keys, job.key)
		}
	}
	return keys
}

func (x *Exporter) deleteArtifacts(ctx context.Context, keys []string) {
	for _, key := range keys {
		err := x.blobs.Delete(ctx, key)
		if err != nil && !errors.Is(err, blobstore.ErrObjectNotFound) {
			x.logger.WarnContext(ctx, "failed to delete expired export artifact", "key", key, "error", err)
		}
	}
}

// Jobs returns snapshots of every known job, newest first.
func (x *Exporter) Jobs() []Job {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Job, 0, len(x.jobs))
	for _, id := range slices.Sorted(maps.Keys(x.jobs)) {
		out = append(out, *x.jobs[id])
	}
	slices.SortStableFunc(out, func(a, b Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

var errStop = errors.New("export record cap reached")
