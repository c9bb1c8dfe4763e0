// Package telemetry sets up OpenTelemetry tracing and metrics for the
// daemon and exports them over OTLP.
//
// Decisions are traced as "triage.decide" spans by internal/triage. The
// HTTP and MCP instruments in internal/http and internal/mcp record into
// the global meter provider that New installs.
//
// Telemetry never stops the daemon: an exporter that cannot be built
// leaves the instance degraded, Health says why, and the SDK globals stay
// no-op.
//
// Tests use a Recorder, which keeps spans and metrics in memory:
//
//	rec := telemetry.NewRecorder()
//	o := triage.NewOrchestrator(ex, engine, triage.WithTracer(rec.Tracer(triage.InstrumentationName)))
//	o.Decide(ctx, req)
//	rec.AssertSpanAttribute(t, "triage.decide", "triage.method", "rules")
package telemetry
