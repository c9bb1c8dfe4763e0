package extraction

import (
	"context"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// Method records which extractor produced a result.
type Method string

const (
	MethodPattern Method = "pattern"
	MethodLLM     Method = "llm"
	MethodNone    Method = "none"
)

// Result is the outcome of an extraction.
type Result struct {
	Found            bool               `json:"found"`
	Booking          ticket.BookingInfo `json:"booking_info"`
	Confidence       ticket.Confidence  `json:"confidence"`
	Method           Method             `json:"method"`
	MultipleBookings bool               `json:"multiple_bookings,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Extractor extracts booking fields from ticket text.
type Extractor interface {
	Extract(ctx context.Context, text string) Result
}

// ModelOutput is the decoded reply of the extraction model.
type ModelOutput struct {
	Booking          ticket.BookingInfo
	Found            bool
	MultipleBookings bool
}

// ModelExtractor is the model-assisted extraction collaborator.
type ModelExtractor interface {
	ExtractBooking(ctx context.Context, text string) (ModelOutput, error)
}

// ScoreConfidence applies the two-critical / five-optional field rule.
func ScoreConfidence(b ticket.BookingInfo) ticket.Confidence {
	critical, optional := b.CriticalCount(), b.OptionalCount()
	switch {
	case critical == 2 && optional >= 4:
		return ticket.ConfidenceHigh
	case critical == 2 && optional >= 2, critical == 1 && optional >= 3:
		return ticket.ConfidenceMedium
	default:
		return ticket.ConfidenceLow
	}
}
