// Package guard blocks automated refund outcomes that would rest on
// unverified booking data.
package guard

import (
	"fmt"
	"strings"
)

// UsageStatus reports whether a booking's parking pass was scanned.
type UsageStatus string

const (
	UsageUsed    UsageStatus = "used"
	UsageNotUsed UsageStatus = "not_used"
	UsageUnknown UsageStatus = "unknown"
)

// MatchConfidence reports how well a verified booking matches the
// customer's claim.
type MatchConfidence string

const (
	MatchExact   MatchConfidence = "exact"
	MatchPartial MatchConfidence = "partial"
	MatchWeak    MatchConfidence = "weak"
)

// VerifiedBooking is produced by a verification source for a single
// request and is never mutated.
type VerifiedBooking struct {
	BookingID       string          `json:"booking_id"`
	PassUsageStatus UsageStatus     `json:"pass_usage_status"`
	MatchConfidence MatchConfidence `json:"match_confidence"`
}

// Escalation reasons.
const (
	ReasonNotVerified  = "booking could not be verified"
	ReasonUnknownUsage = "pass usage status is unknown"
	ReasonWeakMatch    = "booking match confidence is weak"
)

// Guard decides whether verified booking data is trustworthy enough to
// drive an automated Approve or Deny.
type Guard struct{}

// New returns a Guard.
func New() *Guard {
	return &Guard{}
}

// CanAutomate reports whether an automated outcome may be issued.
func (g *Guard) CanAutomate(v *VerifiedBooking) bool {
	return blockReason(v) == ""
}

// ShouldEscalate reports whether the claim must go to a human and why.
// claimContext and failureReason are folded into the returned reason.
func (g *Guard) ShouldEscalate(v *VerifiedBooking, claimContext, failureReason string) (bool, string) {
	reason := blockReason(v)
	if reason == "" {
		return false, ""
	}

	var b strings.Builder
	b.WriteString(reason)
	if failureReason = strings.TrimSpace(failureReason); failureReason != "" {
		fmt.Fprintf(&b, " (%s)", failureReason)
	}
	if claimContext = strings.TrimSpace(claimContext); claimContext != "" {
		fmt.Fprintf(&b, "; customer claim: %s", claimContext)
	}
	return true, b.String()
}

func blockReason(v *VerifiedBooking) string {
	switch {
	case v == nil:
		return ReasonNotVerified
	case v.PassUsageStatus != UsageUsed && v.PassUsageStatus != UsageNotUsed:
		return ReasonUnknownUsage
	case v.MatchConfidence != MatchExact && v.MatchConfidence != MatchPartial:
		return ReasonWeakMatch
	}
	return ""
}
