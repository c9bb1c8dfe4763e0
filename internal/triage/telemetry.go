package triage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/refundd/internal/triage"

// Tracer returns the triage tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

func startDecideSpan(ctx context.Context, tracer trace.Tracer, ticketID, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "triage.decide", trace.WithAttributes(
		attribute.String("ticket.id", ticketID),
		attribute.String("request.id", requestID),
	))
}

func endDecideSpan(span trace.Span, fd FinalDecision) {
	span.SetAttributes(
		attribute.String("triage.decision", string(fd.Decision)),
		attribute.String("triage.method", string(fd.MethodUsed)),
		attribute.String("triage.confidence", string(fd.Confidence)),
		attribute.Bool("triage.booking_found", fd.BookingInfoFound),
	)
	switch fd.MethodUsed {
	case MethodExtractionError, MethodRuleError, MethodLLMError:
		span.SetStatus(codes.Error, fd.Reasoning)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// recordError records err on the span in ctx if it is recording.
func recordError(ctx context.Context, err error, stage string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attribute.String("triage.stage", stage)))
	}
}
