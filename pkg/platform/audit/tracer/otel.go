package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "workspace-audit/pkg/domain-errors"
)

const (
	instrumentationName = "workspace-audit/audit"
	attrErrorCode       = "audit.error_code"
)

// OTelTracer sends spans to an OpenTelemetry tracer. Spans are internal to
// the process; callers propagate context themselves.
type OTelTracer struct {
	tracer trace.Tracer
}

type OTelOption func(*OTelTracer)

// WithTracerProvider takes the tracer from p instead of the global provider.
func WithTracerProvider(p trace.TracerProvider) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = p.Tracer(instrumentationName)
	}
}

func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(keyValues(attrs)...),
	)
	return ctx, otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

// End marks the span failed when err is set. Client faults keep the span
// status unset so dashboards only count server-side failures.
func (s otelSpan) End(err error) {
	if err != nil {
		code := dErrors.CodeOf(err)
		s.Span.SetAttributes(attribute.String(attrErrorCode, string(code)))
		if dErrors.IsServerFault(err) {
			s.Span.RecordError(err)
			s.Span.SetStatus(codes.Error, err.Error())
		}
	}
	s.Span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.Span.SetAttributes(keyValues(attrs)...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(keyValues(attrs)...))
}

// KeyValue converts a to an OpenTelemetry attribute. Values of other types
// are rendered with fmt.
func (a Attribute) KeyValue() attribute.KeyValue {
	k := attribute.Key(a.Key)
	switch v := a.Value.(type) {
	case string:
		return k.String(v)
	case bool:
		return k.Bool(v)
	case int64:
		return k.Int64(v)
	case int:
		return k.Int(v)
	case float64:
		return k.Float64(v)
	case []string:
		return k.StringSlice(v)
	case fmt.Stringer:
		return k.String(v.String())
	default:
		return k.String(fmt.Sprint(v))
	}
}

func keyValues(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kv := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kv[i] = a.KeyValue()
	}
	return kv
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = otelSpan{}
)
