// Package extraction turns free ticket text into structured booking fields.
//
// # Components
//
//   - PatternExtractor: deterministic regex extraction over plain text and
//     HTML ticket bodies (table rows first, then flattened text).
//   - LLMExtractor: model-assisted extraction over an llm.Completer.
//   - StructuredExtractor: pattern first; when the pattern result is not
//     found or only low confidence, asks the model under a 10 second
//     timeout.
//
// # Confidence
//
// booking_id and event_date are critical fields. amount, reservation_date,
// location, booking_type and customer_email are optional. High confidence
// needs both critical fields and at least four optional ones; medium needs
// both critical fields and two optional ones, or one critical field and
// three optional ones. Everything else is low.
//
// Extraction never returns an error to the caller: failures are reported
// through Result.Error with Found=false.
package extraction
