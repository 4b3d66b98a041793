// Package archive writes expired HIGH and CRITICAL audit events to cold
// storage before retention deletes them.
//
// Each batch is one gzip-compressed JSON-lines object keyed by severity, UTC
// day and a digest of the event IDs it holds:
//
//	audit-archive/<SEVERITY>/<YYYY>/<MM>/<DD>/<sha256 of sorted ids>.jsonl.gz
//
// Before writing, the sink reads the IDs already archived for that severity
// and day and writes only the rest, so a rerun after a crash archives every
// event once no matter how the events are paged into batches.
package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"workspace-audit/internal/platform/blobstore"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
)

const (
	DefaultPrefix = "audit-archive"
	contentType   = "application/x-ndjson"
)

// Sink stores batches of events for one severity and UTC day.
type Sink interface {
	// Write stores the events not yet archived for severity and day. written
	// is how many were stored; key is empty when it is zero.
	Write(ctx context.Context, severity audit.Severity, day time.Time, events []audit.Event) (key string, written int, err error)
}

// BlobSink is a Sink over a blob store.
type BlobSink struct {
	store  blobstore.Store
	prefix string
	logger *slog.Logger
	tracer tracer.Tracer
}

type Option func(*BlobSink)

func WithPrefix(prefix string) Option {
	return func(s *BlobSink) {
		s.prefix = prefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *BlobSink) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *BlobSink) {
		s.tracer = t
	}
}

func NewBlobSink(store blobstore.Store, opts ...Option) *BlobSink {
	s := &BlobSink{
		store:  store,
		prefix: DefaultPrefix,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the object key for a batch. It depends only on the severity,
// the UTC day and the set of event IDs.
func Key(prefix string, severity audit.Severity, day time.Time, events []audit.Event) string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	slices.Sort(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{'\n'})
	}
	return dayPrefix(prefix, severity, day) + hex.EncodeToString(h.Sum(nil)) + ".jsonl.gz"
}

func dayPrefix(prefix string, severity audit.Severity, day time.Time) string {
	d := day.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/", prefix, severity, d.Year(), int(d.Month()), d.Day())
}

func (s *BlobSink) Write(ctx context.Context, severity audit.Severity, day time.Time, events []audit.Event) (key string, written int, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanArchiveWrite,
		tracer.String(tracer.AttrSeverity, string(severity)),
		tracer.Int(tracer.AttrResultCount, len(events)),
	)
	defer func() { span.End(err) }()

	archived, err := s.archivedIDs(ctx, severity, day)
	if err != nil {
		return "", 0, err
	}
	fresh := make([]audit.Event, 0, len(events))
	for _, e := range events {
		if _, ok := archived[e.ID]; !ok {
			fresh = append(fresh, e)
		}
	}
	if skipped := len(events) - len(fresh); skipped > 0 {
		s.logger.InfoContext(ctx, "audit events already archived",
			"severity", severity,
			"day", day.UTC().Format(time.DateOnly),
			"skipped", skipped,
		)
	}
	span.AddEvent(tracer.EventBatchArchived, tracer.Int("written", len(fresh)))
	if len(fresh) == 0 {
		return "", 0, nil
	}

	key = Key(s.prefix, severity, day, fresh)
	body, err := Encode(fresh)
	if err != nil {
		return "", 0, err
	}
	if err := s.store.Put(ctx, key, body, contentType); err != nil {
		return "", 0, fmt.Errorf("write archive object %s: %w", key, err)
	}
	return key, len(fresh), nil
}

// archivedIDs collects the event IDs of every object already stored for
// severity and day.
func (s *BlobSink) archivedIDs(ctx context.Context, severity audit.Severity, day time.Time) (map[string]struct{}, error) {
	dir := dayPrefix(s.prefix, severity, day)
	keys, err := s.store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list archive day %s: %w", dir, err)
	}
	ids := make(map[string]struct{})
	for _, k := range keys {
		events, err := s.Read(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read archive object %s: %w", k, err)
		}
		for _, e := range events {
			ids[e.ID] = struct{}{}
		}
	}
	return ids, nil
}

// Read loads an archived batch.
func (s *BlobSink) Read(ctx context.Context, key string) ([]audit.Event, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Encode writes events as gzip-compressed JSON lines in their given order.
func Encode(events []audit.Event) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode archived event %s: %w", e.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress archive batch: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) ([]audit.Event, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open archive batch: %w", err)
	}
	defer zr.Close()

	var events []audit.Event
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e audit.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode archived event: %w", err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read archive batch: %w", err)
	}
	return events, nil
}
