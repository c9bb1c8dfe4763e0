package http

import (
	"context"

	"github.com/fyrsmithlabs/refundd/internal/bookings"
	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// Decider produces refund decisions. *triage.Orchestrator implements it.
type Decider interface {
	Decide(ctx context.Context, req triage.Request) triage.FinalDecision
}

// BookingSource lists a customer's bookings. *bookings.Client implements it.
type BookingSource interface {
	ListBookings(ctx context.Context, f bookings.ListFilter) ([]duplicates.CandidateBooking, error)
}

// Verifier looks up a booking for the guard. *bookings.Client implements it.
type Verifier interface {
	Verify(ctx context.Context, bookingID, claimedEventDate string) (*guard.VerifiedBooking, error)
}

// DecisionNotifier is told about every decision. *events.Notifier
// implements it.
type DecisionNotifier interface {
	Notify(ctx context.Context, ticketID string, fd triage.FinalDecision)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DuplicatesRequest is the body for POST /api/v1/duplicates. Either
// Bookings or CustomerEmail must be set; the email is resolved through the
// booking source.
type DuplicatesRequest struct {
	Bookings      []duplicates.CandidateBooking `json:"bookings"`
	CustomerEmail string                        `json:"customer_email,omitempty"`
	From          string                        `json:"from,omitempty"`
	To            string                        `json:"to,omitempty"`
}

// GuardRequest is the body for POST /api/v1/guard. When Verified is absent
// and BookingID is set, the booking is looked up through the verifier.
type GuardRequest struct {
	Verified         *guard.VerifiedBooking `json:"verified,omitempty"`
	BookingID        string                 `json:"booking_id,omitempty"`
	ClaimedEventDate string                 `json:"claimed_event_date,omitempty"`
	ClaimContext     string                 `json:"claim_context"`
	FailureReason    string                 `json:"failure_reason,omitempty"`
}

// GuardResponse is the response body for POST /api/v1/guard.
type GuardResponse struct {
	CanAutomate    bool                   `json:"can_automate"`
	ShouldEscalate bool                   `json:"should_escalate"`
	Reason         string                 `json:"reason"`
	Verified       *guard.VerifiedBooking `json:"verified"`
}

// ClassifyRequest is the body for POST /api/v1/reasons/classify.
type ClassifyRequest struct {
	Reasoning string `json:"reasoning"`
	Policy    string `json:"policy"`
}

// ClassifyResponse is the response body for POST /api/v1/reasons/classify.
type ClassifyResponse struct {
	CancellationReason string `json:"cancellation_reason"`
	Valid              bool   `json:"valid"`
}

// ExtractRequest is the body for POST /api/v1/extract.
type ExtractRequest struct {
	Text string `json:"text"`
}
