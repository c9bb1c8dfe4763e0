package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the SDK providers installed for the process.
type Telemetry struct {
	cfg *Config

	tracers *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider

	mu      sync.Mutex
	reasons []string
	closed  bool
}

// Health reports whether every enabled provider came up.
type Health struct {
	Degraded bool
	Reason   string
}

// New validates cfg and, when telemetry is enabled, installs OTLP tracer
// and meter providers as the process globals. Exporter failures degrade
// the instance rather than failing New.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade(err)
	} else {
		t.tracers = tp
		otel.SetTracerProvider(tp)
	}
	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.degrade(err)
	} else {
		t.meters = mp
		otel.SetMeterProvider(mp)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) degrade(err error) {
	t.mu.Lock()
	t.reasons = append(t.reasons, err.Error())
	t.mu.Unlock()
}

// Tracer returns a tracer from the owned provider, or from the global one
// when telemetry is disabled.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tracers == nil {
		return otel.Tracer(name, opts...)
	}
	return t.tracers.Tracer(name, opts...)
}

// LoggerProvider returns the provider log records are bridged to, or nil
// when telemetry is disabled. Records reach a collector once a log SDK is
// registered with global.SetLoggerProvider; until then they are dropped.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || !t.cfg.Enabled {
		return nil
	}
	return global.GetLoggerProvider()
}

// Health reports the degradation reasons collected by New.
func (t *Telemetry) Health() Health {
	if t == nil {
		return Health{Degraded: true, Reason: "telemetry not initialized"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.reasons) == 0 {
		return Health{}
	}
	return Health{Degraded: true, Reason: fmt.Sprint(t.reasons)}
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies. Calling it twice is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracers != nil {
		if err := t.tracers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
