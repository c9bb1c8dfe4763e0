package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Recorder is a Telemetry whose spans and metrics stay in memory, for
// tests.
type Recorder struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewRecorder returns an enabled Recorder. It does not touch the process
// globals.
func NewRecorder() *Recorder {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		Telemetry: &Telemetry{
			cfg:     cfg,
			tracers: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meters:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// MeterProvider exposes the in-memory meter provider so instruments under
// test can be created against it.
func (r *Recorder) MeterProvider() *sdkmetric.MeterProvider {
	return r.meters
}

// Collect gathers the metrics recorded so far.
func (r *Recorder) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := r.reader.Collect(ctx, &rm)
	return rm, err
}

// Span returns the last ended span named name, or nil.
func (r *Recorder) Span(name string) sdktrace.ReadOnlySpan {
	ended := r.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	return nil
}

// SpanNames lists ended spans in end order.
func (r *Recorder) SpanNames() []string {
	ended := r.spans.Ended()
	names := make([]string, len(ended))
	for i, s := range ended {
		names[i] = s.Name()
	}
	return names
}

// AssertSpanExists fails tb unless a span named name has ended.
func (r *Recorder) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if r.Span(name) == nil {
		tb.Errorf("span %q not recorded, have %v", name, r.SpanNames())
	}
}

// AssertSpanAttribute fails tb unless the span carries key with value
// want. Integers compare as int64.
func (r *Recorder) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := r.Span(name)
	if span == nil {
		tb.Fatalf("span %q not recorded, have %v", name, r.SpanNames())
		return
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) != key {
			continue
		}
		if got := attrValue(kv.Value); got != normalize(want) {
			tb.Errorf("span %q attribute %q = %v, want %v", name, key, got, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

func attrValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	}
	return v.Emit()
}

func normalize(v any) any {
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}
