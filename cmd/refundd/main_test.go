package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/refundd/internal/config"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

func TestLoggingConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"

	lc, err := loggingConfig(cfg, true, false)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.Equal(t, "console", lc.Format)
	assert.True(t, lc.Output.Stderr)
	assert.False(t, lc.Output.OTEL)
	assert.Equal(t, "refundd", lc.Fields["service"])
	assert.Equal(t, version, lc.Fields["version"])
	require.NoError(t, lc.Validate())

	cfg.Logging.Level = "loud"
	_, err = loggingConfig(cfg, false, false)
	assert.ErrorContains(t, err, "logging.level")
}

func TestTelemetryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "otel-collector:4318"
	cfg.Telemetry.Protocol = "http/protobuf"
	cfg.Telemetry.SamplingRate = 0.25

	tc := telemetryConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel-collector:4318", tc.Endpoint)
	assert.Equal(t, "http/protobuf", tc.Protocol)
	assert.InDelta(t, 0.25, tc.SamplingRate, 1e-9)
	assert.Equal(t, "refundd", tc.ServiceName)
	require.NoError(t, tc.Validate())
}

func TestNewApp_Defaults(t *testing.T) {
	a, err := newApp(context.Background(), config.Default(), false)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.bookings)
	assert.NotNil(t, a.notifier)

	core := a.httpCore()
	assert.Nil(t, core.Bookings)
	assert.Nil(t, core.Verifier)
	assert.Nil(t, a.mcpCore().Verifier)

	// Without a model the pipeline still decides from rules.
	fd := a.orchestrator.Decide(context.Background(), triage.Request{
		Ticket: ticket.Context{TicketID: "1", Subject: "cancel", Description: "please cancel"},
		Booking: &ticket.BookingInfo{
			BookingID: ticket.Ptr("PW-1"),
			EventDate: ticket.Ptr("2099-01-31"),
		},
	})
	assert.Equal(t, ticket.Approved, fd.Decision)
	assert.Equal(t, triage.MethodRules, fd.MethodUsed)
}

func TestNewApp_WithBookingAPI(t *testing.T) {
	cfg := config.Default()
	cfg.Bookings.BaseURL = "http://127.0.0.1:1"

	a, err := newApp(context.Background(), cfg, true)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.bookings)
	assert.NotNil(t, a.httpCore().Bookings)
	assert.NotNil(t, a.mcpCore().Verifier)
}

func TestNewApp_InvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"review confidence", func(c *config.Config) { c.Triage.ReviewConfidence = "sure" }, "review_confidence"},
		{"policy path", func(c *config.Config) { c.Policy.Path = "/nonexistent/policy.toml" }, "loading policy table"},
		{"event sink", func(c *config.Config) { c.Events.Sink = "carrier-pigeon" }, "event publisher"},
		{"kafka without brokers", func(c *config.Config) { c.Events.Sink = "kafka" }, "event publisher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			_, err := newApp(context.Background(), cfg, false)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
