// Package logging builds the daemon's zap logger.
//
// Every record goes to stdout (or stderr when stdout carries the MCP stdio
// transport) and, when telemetry is enabled, to the OpenTelemetry log
// pipeline through the otelzap bridge.
//
// Support tickets are free text written by customers, so the stream
// encoder masks sensitive keys outright and masks any card number, bearer
// token or API key found inside string values:
//
//	ctx = logging.WithTicketID(ctx, "48213")
//	logger.Info(ctx, "ticket received", zap.String("subject", subject))
//
//	{"level":"info","msg":"ticket received","ticket_id":"48213",
//	 "subject":"charged twice on card [REDACTED]"}
//
// Warn and below are sampled per message; errors always pass.
package logging
