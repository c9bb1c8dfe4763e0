package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorder_Spans(t *testing.T) {
	rec := NewRecorder()
	tracer := rec.Tracer("refundd.test")

	_, span := tracer.Start(context.Background(), "triage.decide")
	span.SetAttributes(
		attribute.String("ticket.id", "48213"),
		attribute.Int("triage.days_before_event", 3),
		attribute.Bool("triage.booking_found", true),
	)
	span.End()
	_, other := tracer.Start(context.Background(), "extraction.extract")
	other.End()

	assert.Equal(t, []string{"triage.decide", "extraction.extract"}, rec.SpanNames())
	assert.Nil(t, rec.Span("missing"))
	rec.AssertSpanExists(t, "triage.decide")
	rec.AssertSpanAttribute(t, "triage.decide", "ticket.id", "48213")
	rec.AssertSpanAttribute(t, "triage.decide", "triage.days_before_event", 3)
	rec.AssertSpanAttribute(t, "triage.decide", "triage.booking_found", true)
}

type fakeTB struct {
	testing.TB
	failed bool
}

func (f *fakeTB) Helper()               {}
func (f *fakeTB) Errorf(string, ...any) { f.failed = true }
func (f *fakeTB) Fatalf(string, ...any) { f.failed = true }

func TestRecorder_AssertionsFail(t *testing.T) {
	rec := NewRecorder()
	_, span := rec.Tracer("x").Start(context.Background(), "triage.decide")
	span.SetAttributes(attribute.String("triage.method", "rules"))
	span.End()

	ft := &fakeTB{}
	rec.AssertSpanExists(ft, "nope")
	assert.True(t, ft.failed)

	ft = &fakeTB{}
	rec.AssertSpanAttribute(ft, "triage.decide", "triage.method", "hybrid")
	assert.True(t, ft.failed)

	ft = &fakeTB{}
	rec.AssertSpanAttribute(ft, "triage.decide", "ticket.id", "1")
	assert.True(t, ft.failed)
}

func TestRecorder_Metrics(t *testing.T) {
	rec := NewRecorder()
	counter, err := rec.MeterProvider().Meter("refundd.test").Int64Counter("refundd.decisions")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rm, err := rec.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}
