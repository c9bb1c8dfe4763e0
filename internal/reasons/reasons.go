// Package reasons maps a decision's justification to one of the fixed
// cancellation-reason codes consumed by the downstream payment system.
//
// The code strings are a wire contract and must not be reworded.
package reasons

import "strings"

// Canonical cancellation reasons.
const (
	Other                    = "Other"
	Tolerance                = "Tolerance"
	MultiDay                 = "Multi-day"
	PendingRebook            = "Pending re-book"
	PreArrival               = "Pre-arrival"
	Oversold                 = "Oversold"
	NoAttendant              = "No attendant"
	AmenityMissing           = "Amenity missing"
	PoorExperience           = "Poor experience"
	InaccurateHours          = "Inaccurate hours of operation"
	AttendantRefusedCustomer = "Attendant refused customer"
	DuplicateBooking         = "Duplicate booking"
	ConfirmedRebook          = "Confirmed re-book"
	PaidAgain                = "Paid again"
	Accessibility            = "Accessibility"
	PWCancellation           = "PW cancellation"
)

// All lists the 16 canonical codes.
var All = []string{
	Other,
	Tolerance,
	MultiDay,
	PendingRebook,
	PreArrival,
	Oversold,
	NoAttendant,
	AmenityMissing,
	PoorExperience,
	InaccurateHours,
	AttendantRefusedCustomer,
	DuplicateBooking,
	ConfirmedRebook,
	PaidAgain,
	Accessibility,
	PWCancellation,
}

var valid = func() map[string]bool {
	m := make(map[string]bool, len(All))
	for _, r := range All {
		m[r] = true
	}
	return m
}()

// IsValid reports exact, case-sensitive membership in the canonical set.
func IsValid(code string) bool {
	return valid[code]
}

type rule struct {
	reason   string
	keywords []string
}

// table is evaluated top to bottom; the first reason with any keyword
// present in the text wins.
var table = []rule{
	{Oversold, []string{"oversold", "over-sold", "overbooked", "lot was full", "garage was full", "no available spaces", "no spots", "sold out"}},
	{DuplicateBooking, []string{"duplicate", "double book", "double-book", "booked twice", "charged twice", "two bookings"}},
	{PreArrival, []string{"pre-arrival", "pre arrival", "before the event", "before arrival", "7 or more days", "days before"}},
	{Tolerance, []string{"tolerance", "grace period", "courtesy refund", "goodwill"}},
	{AmenityMissing, []string{"amenity", "amenities", "ev charger", "charger", "elevator", "restroom", "shuttle"}},
	{PoorExperience, []string{"poor experience", "bad experience", "unsafe", "dirty", "rude"}},
	{NoAttendant, []string{"no attendant", "attendant was not", "attendant wasn't", "nobody was there", "unattended", "gate malfunction", "gate was broken", "facility closed", "operational failure"}},
	{AttendantRefusedCustomer, []string{"refused", "turned away", "denied entry", "not allowed", "vehicle restriction", "vehicle type", "would not accept", "didn't accept", "did not accept"}},
	{InaccurateHours, []string{"hours of operation", "inaccurate hours", "wrong hours", "closed early", "opened late", "was closed", "location closed", "closed location"}},
	{MultiDay, []string{"multi-day", "multi day", "multiple days", "multiday"}},
	{PendingRebook, []string{"pending re-book", "pending rebook", "will rebook", "plans to rebook", "rebook pending"}},
	{ConfirmedRebook, []string{"confirmed re-book", "confirmed rebook", "rebooked", "re-booked", "new booking"}},
	{PaidAgain, []string{"paid again", "paid twice", "had to pay", "pay again", "forced to pay", "paid on site"}},
	{Accessibility, []string{"accessibility", "accessible", "wheelchair", "blocked", "could not access", "couldn't access", "road closed", "barricade"}},
	{PWCancellation, []string{"pw cancellation", "cancelled by parkwhiz", "parkwhiz cancel", "operator cancel", "cancelled by the operator", "event cancelled", "event canceled"}},
}

// Classifier implements the reason classification.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the first canonical reason whose keywords appear in the
// reasoning text or policy label, or Other.
func (c *Classifier) Classify(reasoning, policyLabel string) string {
	return Classify(reasoning, policyLabel)
}

// Classify is the package-level form of Classifier.Classify.
func Classify(reasoning, policyLabel string) string {
	text := strings.ToLower(reasoning + " " + policyLabel)
	for _, r := range table {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.reason
			}
		}
	}
	return Other
}
