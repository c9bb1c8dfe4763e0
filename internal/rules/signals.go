package rules

import (
	"github.com/fyrsmithlabs/refundd/internal/policy"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// signals holds the keyword matches found in one ticket. Each field is
// the matched fragment, empty when absent.
type signals struct {
	operational       string
	vehicleRejection  string
	vehicleTerm       string
	extraCharge       string
	retroactive       string
	duplicateHeadline string
	duplicate         string
	oversold          string
	paidAgain         string
	closed            string
	accessibility     string
}

func detectSignals(t *policy.Table, tc ticket.Context) signals {
	text := tc.Text()
	match := func(tag policy.Tag, s string) string {
		m, _ := t.Match(tag, s)
		return m
	}
	return signals{
		operational:       match(policy.TagOperationalFailure, text),
		vehicleRejection:  match(policy.TagVehicleRejection, text),
		vehicleTerm:       match(policy.TagVehicleTerm, text),
		extraCharge:       match(policy.TagExtraCharge, text),
		retroactive:       match(policy.TagRetroactive, text),
		duplicateHeadline: match(policy.TagDuplicate, tc.Headline()),
		duplicate:         match(policy.TagDuplicate, text),
		oversold:          match(policy.TagOversold, text),
		paidAgain:         match(policy.TagPaidAgain, text),
		closed:            match(policy.TagClosedLocation, text),
		accessibility:     match(policy.TagAccessibility, text),
	}
}

func (s signals) vehicleRejected() bool {
	return s.vehicleRejection != "" && s.vehicleTerm != ""
}
