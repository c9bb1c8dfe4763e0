package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Health().Degraded)
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("refundd.test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.SamplingRate = 2
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_EnabledExportsLazily(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, tel.Health().Degraded)
	assert.NotNil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.tracers)
	assert.NotNil(t, tel.meters)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = tel.Shutdown(ctx)
	assert.NoError(t, tel.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.Nil(t, tel.LoggerProvider())
	assert.True(t, tel.Health().Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_Degrade(t *testing.T) {
	tel := &Telemetry{cfg: NewDefaultConfig()}
	tel.degrade(assert.AnError)
	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Contains(t, h.Reason, assert.AnError.Error())
}

func TestSampler(t *testing.T) {
	params := func() sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			Name:          "triage.decide",
			Attributes:    []attribute.KeyValue{attribute.String("ticket.id", "1")},
		}
	}
	assert.Equal(t, sdktrace.RecordAndSample, sampler(1).ShouldSample(params()).Decision)
	assert.Equal(t, sdktrace.Drop, sampler(0).ShouldSample(params()).Decision)
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
