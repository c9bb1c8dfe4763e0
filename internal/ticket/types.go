// Package ticket defines the request-scoped value types shared by the refund
// triage pipeline: the incoming support ticket, the booking fields extracted
// from it, and the confidence and decision vocabularies.
package ticket

import "strings"

// Context is the immutable support ticket a decision is made for.
type Context struct {
	TicketID    string `json:"ticket_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	// Notes is the concatenated conversation history, if any.
	Notes string `json:"notes,omitempty"`
}

// Text returns subject, description and notes joined and lower-cased.
// Keyword signals are matched against this.
func (c Context) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Subject, c.Description, c.Notes} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

// Headline returns subject and description lower-cased, without notes.
func (c Context) Headline() string {
	return strings.ToLower(c.Subject + "\n" + c.Description)
}

// BookingType classifies how a parking booking was made.
type BookingType string

const (
	BookingConfirmed  BookingType = "confirmed"
	BookingOnDemand   BookingType = "on-demand"
	BookingThirdParty BookingType = "third-party"
	BookingUnknown    BookingType = "unknown"
)

// ParseBookingType normalizes free-form booking type values.
// Unrecognized values map to BookingUnknown.
func ParseBookingType(s string) BookingType {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))) {
	case "confirmed", "reserved", "reservation":
		return BookingConfirmed
	case "on-demand", "on demand", "ondemand", "drive-up":
		return BookingOnDemand
	case "third-party", "third party", "thirdparty":
		return BookingThirdParty
	default:
		return BookingUnknown
	}
}

// BookingInfo holds booking fields extracted from a ticket or supplied by the
// caller. A nil field is absent; a non-nil empty string is present but empty.
type BookingInfo struct {
	BookingID        *string      `json:"booking_id,omitempty"`
	Amount           *float64     `json:"amount,omitempty"`
	EventDate        *string      `json:"event_date,omitempty"`
	ReservationDate  *string      `json:"reservation_date,omitempty"`
	CancellationDate *string      `json:"cancellation_date,omitempty"`
	BookingType      *BookingType `json:"booking_type,omitempty"`
	Location         *string      `json:"location,omitempty"`
	CustomerEmail    *string      `json:"customer_email,omitempty"`
}

// Type returns the booking type, or BookingUnknown when absent.
func (b BookingInfo) Type() BookingType {
	if b.BookingType == nil {
		return BookingUnknown
	}
	return *b.BookingType
}

// CriticalCount reports how many of booking_id and event_date are present.
func (b BookingInfo) CriticalCount() int {
	n := 0
	if has(b.BookingID) {
		n++
	}
	if has(b.EventDate) {
		n++
	}
	return n
}

// OptionalCount reports how many of amount, reservation_date, location,
// booking_type and customer_email are present.
func (b BookingInfo) OptionalCount() int {
	n := 0
	if b.Amount != nil {
		n++
	}
	if has(b.ReservationDate) {
		n++
	}
	if has(b.Location) {
		n++
	}
	if b.BookingType != nil {
		n++
	}
	if has(b.CustomerEmail) {
		n++
	}
	return n
}

func has(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// Value returns *p, or "" if p is nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Confidence is the low/medium/high tier used for escalation thresholds.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence parses a tier name. ok is false for anything else.
func ParseConfidence(s string) (Confidence, bool) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c, true
	default:
		return ConfidenceLow, false
	}
}

// Downgrade returns the next lower tier. Low stays low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// AtLeastMedium reports whether c is medium or high.
func (c Confidence) AtLeastMedium() bool {
	return c == ConfidenceMedium || c == ConfidenceHigh
}

// Decision is a triage outcome. Uncertain is internal to the pipeline and
// never leaves the orchestrator.
type Decision string

const (
	Approved         Decision = "Approved"
	Denied           Decision = "Denied"
	NeedsHumanReview Decision = "Needs Human Review"
	Uncertain        Decision = "Uncertain"
)

// ParseDecision accepts the three terminal decisions as returned by the
// case-analysis model. Uncertain is rejected.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return Approved, true
	case "denied":
		return Denied, true
	case "needs human review", "needshumanreview", "needs_human_review":
		return NeedsHumanReview, true
	default:
		return "", false
	}
}

// Terminal reports whether d may be returned to a caller.
func (d Decision) Terminal() bool {
	return d == Approved || d == Denied || d == NeedsHumanReview
}
