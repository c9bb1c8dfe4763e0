package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ticketCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// Desks use numeric ids, booking systems prefix them (PW-123), echo
// generates random request ids.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

func validID(id string) bool {
	return len(id) <= maxIDLen && idPattern.MatchString(id)
}

// WithTicketID attaches the support ticket id to ctx. Ids that are empty,
// too long or carry unexpected characters are dropped, since they come
// from customers.
func WithTicketID(ctx context.Context, ticketID string) context.Context {
	if !validID(ticketID) {
		return ctx
	}
	return context.WithValue(ctx, ticketCtxKey{}, ticketID)
}

// TicketIDFromContext returns the ticket id stored by WithTicketID.
func TicketIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ticketCtxKey{}).(string)
	return s
}

// WithRequestID attaches the transport request id to ctx, with the same
// filtering as WithTicketID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// ContextFields returns the correlation fields carried by ctx: the active
// span, the ticket id and the transport request id.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := TicketIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("ticket_id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("http_request_id", id))
	}
	return fields
}
