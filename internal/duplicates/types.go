package duplicates

import (
	"errors"
	"time"
)

// ErrInvalidBooking marks a candidate booking that cannot take part in
// duplicate detection.
var ErrInvalidBooking = errors.New("invalid booking")

// Action is the recommended handling for a duplicate claim.
type Action string

const (
	ActionRefundDuplicate Action = "refund_duplicate"
	ActionEscalate        Action = "escalate"
	ActionDeny            Action = "deny"
)

// Location identifies the parking facility of a booking.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CandidateBooking is an externally sourced booking considered for
// duplicate resolution. It is read-only.
type CandidateBooking struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  Location  `json:"location"`
	Status    string    `json:"status"`
	PricePaid float64   `json:"price_paid"`
}

// Duration returns the booked window length.
func (b CandidateBooking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Result describes the outcome of duplicate analysis.
type Result struct {
	HasDuplicates   bool     `json:"has_duplicates"`
	DuplicateCount  int      `json:"duplicate_count"`
	UsedBookingID   string   `json:"used_booking_id,omitempty"`
	UnusedBookingID string   `json:"unused_booking_id,omitempty"`
	Action          Action   `json:"action"`
	Explanation     string   `json:"explanation"`
	AllBookingIDs   []string `json:"all_booking_ids"`
}

// SafeToRefund reports whether the result carries everything a caller
// needs before issuing a real refund: a refund action on exactly two
// bookings with both ids present.
func (r Result) SafeToRefund() bool {
	return r.Action == ActionRefundDuplicate &&
		r.DuplicateCount == 2 &&
		r.UsedBookingID != "" &&
		r.UnusedBookingID != ""
}

type usage int

const (
	usageUnknown usage = iota
	usageUsed
	usageUnused
)

func classifyStatus(status string) usage {
	switch status {
	case "completed", "checked_in", "checked_out":
		return usageUsed
	case "confirmed", "pending", "reserved":
		return usageUnused
	}
	return usageUnknown
}
