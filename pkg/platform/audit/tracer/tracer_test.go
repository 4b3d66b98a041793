package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit/tracer"
)

func TestNoopTracerReturnsContextUnchanged(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	got, span := tr.Start(ctx, tracer.SpanSearch, tracer.String(tracer.AttrCategory, "SECURITY"))

	assert.Equal(t, ctx, got)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Int(tracer.AttrResultCount, 3))
	span.AddEvent(tracer.EventIssueFound)
	span.End(errors.New("boom"))
}

// Justification: span end must tolerate both client and server errors
// without panicking on a non-recording provider.
func TestOTelSpanEndWithErrors(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithTracerProvider(noop.NewTracerProvider()))

	for _, err := range []error{
		nil,
		dErrors.New(dErrors.CodeValidation, "bad filter"),
		errors.New("store down"),
	} {
		_, span := tr.Start(context.Background(), tracer.SpanRetention,
			tracer.Int64(tracer.AttrDeleted, 4),
			tracer.Float64(tracer.AttrRiskScore, 55),
		)
		require.NotNil(t, span)
		span.AddEvent(tracer.EventBatchArchived, tracer.String(tracer.AttrSeverity, "HIGH"))
		span.End(err)
	}
}

func TestAttributeKeyValue(t *testing.T) {
	cases := []struct {
		attr tracer.Attribute
		want attribute.KeyValue
	}{
		{tracer.String("k", "v"), attribute.String("k", "v")},
		{tracer.Bool("b", true), attribute.Bool("b", true)},
		{tracer.Int("n", 7), attribute.Int64("n", 7)},
		{tracer.Duration("latency", 150*time.Millisecond), attribute.Int64("latency", 150)},
		{tracer.Attribute{Key: "tags", Value: []string{"a", "b"}}, attribute.StringSlice("tags", []string{"a", "b"})},
		{tracer.Attribute{Key: "window", Value: 5 * time.Minute}, attribute.String("window", "5m0s")},
		{tracer.Attribute{Key: "n32", Value: int32(3)}, attribute.String("n32", "3")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.attr.KeyValue(), tc.attr.Key)
	}
}
