package rules

import (
	"errors"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// ErrNoPolicy is returned by Evaluate when the engine has no policy table.
var ErrNoPolicy = errors.New("rules: no policy table")

// Policy rule labels.
const (
	RuleMissingEventDate   = "Missing Event Date"
	RuleInvalidDate        = "Invalid Date"
	RuleOperationalFailure = "Operational Failure"
	RuleVehicleMismatch    = "Vehicle Restriction Mismatch"
	RuleVehicleUnverified  = "Vehicle Restriction - Unverified"
	RuleExtraCharge        = "Extra Charge Claim"
	RuleRetroactive        = "Retroactive Booking"
	RuleDuplicateClaim     = "Duplicate Booking Claim"
	RulePreArrival         = "Pre-Arrival"
	RulePostEvent          = "Post-Event Cancellation"
	RulePostEventOversold  = "Post-Event Exception - Oversold"
	RulePostEventDuplicate = "Post-Event Exception - Duplicate Claim"
	RulePostEventPaidAgain = "Post-Event Exception - Paid Again"
	RulePostEventClosed    = "Post-Event Exception - Location Closed"
	RulePostEventBlocked   = "Post-Event Exception - Accessibility"
	RuleOnDemandLate       = "On-Demand Late Cancellation"
	RuleConfirmedShort     = "Confirmed Booking - Short Notice"
	RuleOversold           = "Oversold Location"
	RulePaidAgain          = "Paid Again"
	RuleShortNoticeUnclear = "Short Notice - Unclear Booking Type"
	RuleLateNonOnDemand    = "Late Cancellation - Not On-Demand"
	RuleEdgeCase           = "Edge Case"
)

// Result is the rule engine's verdict. Decision is Approved, Denied,
// NeedsHumanReview or Uncertain.
type Result struct {
	Decision   ticket.Decision   `json:"decision"`
	Reasoning  string            `json:"reasoning"`
	PolicyRule string            `json:"policy_rule"`
	Confidence ticket.Confidence `json:"confidence"`
	KeyFactors []string          `json:"key_factors,omitempty"`

	// DaysBeforeEvent is set once both dates are known.
	DaysBeforeEvent *int `json:"days_before_event,omitempty"`
}

// Uncertain reports whether the result needs model-assisted analysis.
func (r Result) Uncertain() bool {
	return r.Decision == ticket.Uncertain || r.Confidence == ticket.ConfidenceLow
}
