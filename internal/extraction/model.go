package extraction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/llm"
	"github.com/fyrsmithlabs/refundd/internal/secrets"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// ErrNoModel is reported when model extraction is needed but no model is
// configured.
var ErrNoModel = errors.New("model extraction unavailable")

// maxPromptChars bounds the ticket text sent to the model.
const maxPromptChars = 12000

const extractionPrompt = `You extract parking booking details from customer support tickets.

Respond with a single JSON object and nothing else:
{
  "booking_id": string or null,
  "amount": number or null,
  "reservation_date": "YYYY-MM-DD" or null,
  "event_date": "YYYY-MM-DD" or null,
  "cancellation_date": "YYYY-MM-DD" or null,
  "location": string or null,
  "booking_type": "confirmed" | "on-demand" | "third-party" | null,
  "customer_email": string or null,
  "found": boolean,
  "multiple_bookings": boolean
}

Rules:
- event_date is the day the customer intended to park, not the day they booked.
- Use null for anything not stated. Never guess.
- found is true only if a booking id or an event date is present.
- multiple_bookings is true when the ticket refers to more than one booking.`

// LLMExtractor implements ModelExtractor over an llm.Completer. Ticket
// text is scrubbed of payment and credential data before it is sent.
type LLMExtractor struct {
	completer llm.Completer
	scrubber  secrets.Scrubber
	logger    *zap.Logger
}

// NewLLMExtractor creates an LLMExtractor. A nil scrubber uses the default
// rules.
func NewLLMExtractor(c llm.Completer, scrubber secrets.Scrubber, logger *zap.Logger) *LLMExtractor {
	if scrubber == nil {
		scrubber = secrets.MustNew(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{completer: c, scrubber: scrubber, logger: logger}
}

// ExtractBooking implements ModelExtractor.
func (e *LLMExtractor) ExtractBooking(ctx context.Context, text string) (ModelOutput, error) {
	if e.completer == nil {
		return ModelOutput{}, ErrNoModel
	}

	scrubbed := e.scrubber.Scrub(text)
	if scrubbed.HasFindings() {
		e.logger.Debug("scrubbed ticket text before extraction", zap.Strings("rules", scrubbed.RuleIDs()))
	}
	body := scrubbed.Scrubbed
	if len(body) > maxPromptChars {
		body = body[:maxPromptChars]
	}

	reply, err := e.completer.Complete(ctx, extractionPrompt, "Ticket:\n"+body)
	if err != nil {
		return ModelOutput{}, fmt.Errorf("extraction model call: %w", err)
	}

	fields, err := llm.DecodeObject(reply)
	if err != nil {
		return ModelOutput{}, err
	}
	return e.mapFields(fields), nil
}

func (e *LLMExtractor) mapFields(fields map[string]any) ModelOutput {
	var out ModelOutput
	b := &out.Booking

	if s := stringField(fields, "booking_id"); s != "" {
		b.BookingID = &s
	}
	if v, ok := amountField(fields, "amount"); ok {
		b.Amount = &v
	}
	for key, dst := range map[string]**string{
		"event_date":        &b.EventDate,
		"reservation_date":  &b.ReservationDate,
		"cancellation_date": &b.CancellationDate,
	} {
		raw := stringField(fields, key)
		if raw == "" {
			continue
		}
		d, ok := normalizeDate(raw)
		if !ok {
			e.logger.Debug("dropping unparseable model date", zap.String("field", key))
			continue
		}
		*dst = &d
	}
	if s := stringField(fields, "location"); s != "" {
		b.Location = &s
	}
	if s := stringField(fields, "booking_type"); s != "" {
		bt := ticket.ParseBookingType(s)
		b.BookingType = &bt
	}
	if s := stringField(fields, "customer_email"); s != "" {
		b.CustomerEmail = ticket.Ptr(strings.ToLower(s))
	}

	out.Found, _ = fields["found"].(bool)
	out.MultipleBookings, _ = fields["multiple_bookings"].(bool)
	return out
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func amountField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, v >= 0
	case string:
		return parseAmount(v)
	}
	return 0, false
}

var _ ModelExtractor = (*LLMExtractor)(nil)
