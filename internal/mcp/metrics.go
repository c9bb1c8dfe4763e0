package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/bookings"
	"github.com/fyrsmithlabs/refundd/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/refundd/internal/mcp"

// toolMetrics records per-tool call counts, latency and failures.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// newToolMetrics creates the instruments on meter. An instrument the meter
// rejects is logged and replaced by a no-op one.
func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		logger.Warn("creating tool instrument", zap.String("instrument", name), zap.Error(err))
	}

	m := &toolMetrics{}
	var err error
	if m.calls, err = meter.Int64Counter("refundd.mcp.tool.calls",
		metric.WithDescription("Tool calls by tool name"),
		metric.WithUnit("{call}"),
	); err != nil {
		warn("calls", err)
		m.calls = noop.Int64Counter{}
	}
	if m.failures, err = meter.Int64Counter("refundd.mcp.tool.failures",
		metric.WithDescription("Failed tool calls by tool name and failure class"),
		metric.WithUnit("{call}"),
	); err != nil {
		warn("failures", err)
		m.failures = noop.Int64Counter{}
	}
	if m.latency, err = meter.Float64Histogram("refundd.mcp.tool.duration",
		metric.WithDescription("Tool call latency; model-backed tools dominate the upper buckets"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		warn("duration", err)
		m.latency = noop.Float64Histogram{}
	}
	if m.inflight, err = meter.Int64UpDownCounter("refundd.mcp.tool.inflight",
		metric.WithDescription("Tool calls currently executing"),
		metric.WithUnit("{call}"),
	); err != nil {
		warn("inflight", err)
		m.inflight = noop.Int64UpDownCounter{}
	}
	return m
}

// start records a call to tool. The returned func ends it.
func (m *toolMetrics) start(ctx context.Context, tool string) func(error) {
	began := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.inflight.Add(ctx, 1, attrs)

	return func(err error) {
		m.inflight.Add(ctx, -1, attrs)
		m.calls.Add(ctx, 1, attrs)
		m.latency.Record(ctx, time.Since(began).Seconds(), attrs)
		if err != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("class", failureClass(err)),
			))
		}
	}
}

// failureClass buckets a tool error for the failures counter.
func failureClass(err error) string {
	switch {
	case errors.Is(err, errInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, bookings.ErrNotConfigured), errors.Is(err, bookings.ErrUnexpectedStatus):
		return "booking_source"
	case errors.Is(err, llm.ErrInvalidResponse), errors.Is(err, llm.ErrEmptyResponse), errors.Is(err, llm.ErrTruncated):
		return "model_response"
	default:
		return "internal"
	}
}
