// Package tracer wraps distributed tracing for the read-side audit operations
// (search, export, analytics, retention and integrity checks).
package tracer

import (
	"context"
	"time"
)

// Tracer starts spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is one unit of traced work.
type Span interface {
	// End completes the span, recording err as the span status when non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Attribute is a key/value pair attached to spans and span events.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records d in milliseconds.
func Duration(key string, d time.Duration) Attribute {
	return Attribute{Key: key, Value: d.Milliseconds()}
}

// Span names.
const (
	SpanSearch       = "audit.search"
	SpanTrail        = "audit.trail"
	SpanExport       = "audit.export"
	SpanSummary      = "audit.summary"
	SpanAnomalies    = "audit.anomalies"
	SpanCompliance   = "audit.compliance"
	SpanRetention    = "audit.retention"
	SpanVerify       = "audit.verify"
	SpanChain        = "audit.chain"
	SpanArchiveWrite = "audit.archive.write"
)

// Attribute keys.
const (
	AttrAdminID     = "audit.admin_id"
	AttrCategory    = "audit.category"
	AttrSeverity    = "audit.severity"
	AttrResource    = "audit.resource"
	AttrEventID     = "audit.event_id"
	AttrFormat      = "audit.export.format"
	AttrReportType  = "audit.report_type"
	AttrResultCount = "audit.result_count"
	AttrTotal       = "audit.total"
	AttrRiskScore   = "audit.risk_score"
	AttrDeleted     = "audit.retention.deleted"
	AttrArchived    = "audit.retention.archived"
)

// Event names.
const (
	EventBatchArchived = "audit.batch_archived"
	EventIssueFound    = "audit.issue_found"
)
