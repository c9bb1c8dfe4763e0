// Package duplicates detects and resolves duplicate parking bookings by
// overlapping time windows at the same location.
package duplicates

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MinOverlapPercent is the share of the shorter booking that must overlap
// for two bookings to count as duplicates.
const MinOverlapPercent = 50.0

// Resolver analyzes candidate bookings for duplicates.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil logger disables logging.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Analyze finds the first duplicate set among bookings and recommends an
// action. Malformed bookings are discarded.
func (r *Resolver) Analyze(bookings []CandidateBooking) Result {
	valid := make([]CandidateBooking, 0, len(bookings))
	for _, b := range bookings {
		if err := validate(b); err != nil {
			r.logger.Debug("discarding candidate booking", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		valid = append(valid, b)
	}

	if len(valid) < 2 {
		return Result{
			Action:        ActionDeny,
			Explanation:   fmt.Sprintf("found %d valid booking(s); at least two are needed for a duplicate", len(valid)),
			AllBookingIDs: ids(valid),
		}
	}

	group := findGroup(valid)
	if len(group) < 2 {
		return Result{
			Action:        ActionDeny,
			Explanation:   "no overlapping bookings at the same location",
			AllBookingIDs: ids(valid),
		}
	}

	res := Result{
		HasDuplicates:  true,
		DuplicateCount: len(group),
		AllBookingIDs:  ids(group),
	}

	if len(group) > 2 {
		res.Action = ActionEscalate
		res.Explanation = fmt.Sprintf("%d overlapping bookings at location %s; too ambiguous to resolve automatically",
			len(group), group[0].Location.ID)
		r.logger.Info("duplicate set escalated", zap.Int("count", len(group)), zap.Strings("booking_ids", res.AllBookingIDs))
		return res
	}

	r.resolvePair(&res, group[0], group[1])
	r.logger.Info("duplicate pair analyzed",
		zap.String("action", string(res.Action)),
		zap.Strings("booking_ids", res.AllBookingIDs),
	)
	return res
}

func (r *Resolver) resolvePair(res *Result, a, b CandidateBooking) {
	ua := classifyStatus(strings.ToLower(strings.TrimSpace(a.Status)))
	ub := classifyStatus(strings.ToLower(strings.TrimSpace(b.Status)))

	switch {
	case ua == usageUnknown || ub == usageUnknown:
		res.Action = ActionEscalate
		res.Explanation = fmt.Sprintf("unrecognized booking status (%s=%q, %s=%q)", a.ID, a.Status, b.ID, b.Status)

	case ua == usageUsed && ub == usageUsed:
		res.Action = ActionEscalate
		res.Explanation = fmt.Sprintf("both bookings %s and %s were used", a.ID, b.ID)

	case ua == usageUsed:
		res.Action = ActionRefundDuplicate
		res.UsedBookingID, res.UnusedBookingID = a.ID, b.ID
		res.Explanation = fmt.Sprintf("booking %s was used; refund unused duplicate %s", a.ID, b.ID)

	case ub == usageUsed:
		res.Action = ActionRefundDuplicate
		res.UsedBookingID, res.UnusedBookingID = b.ID, a.ID
		res.Explanation = fmt.Sprintf("booking %s was used; refund unused duplicate %s", b.ID, a.ID)

	case a.StartTime.Equal(b.StartTime):
		res.Action = ActionEscalate
		res.Explanation = fmt.Sprintf("neither booking was used and %s and %s start at the same time", a.ID, b.ID)

	default:
		keep, refund := a, b
		if b.StartTime.After(a.StartTime) {
			keep, refund = b, a
		}
		res.Action = ActionRefundDuplicate
		res.UsedBookingID, res.UnusedBookingID = keep.ID, refund.ID
		res.Explanation = fmt.Sprintf("neither booking was used; keep the later booking %s and refund %s", keep.ID, refund.ID)
	}
}

// findGroup returns the first group anchored on a booking that has at
// least one overlapping partner at the same location.
func findGroup(bookings []CandidateBooking) []CandidateBooking {
	for i, anchor := range bookings {
		group := []CandidateBooking{anchor}
		for j, other := range bookings {
			if i == j || other.Location.ID != anchor.Location.ID {
				continue
			}
			if OverlapPercent(anchor, other) >= MinOverlapPercent {
				group = append(group, other)
			}
		}
		if len(group) >= 2 {
			return group
		}
	}
	return nil
}

// OverlapPercent returns the overlap of a and b as a percentage of the
// shorter booking's duration.
func OverlapPercent(a, b CandidateBooking) float64 {
	start := a.StartTime
	if b.StartTime.After(start) {
		start = b.StartTime
	}
	end := a.EndTime
	if b.EndTime.Before(end) {
		end = b.EndTime
	}
	overlap := end.Sub(start)
	if overlap <= 0 {
		return 0
	}

	shorter := min(a.Duration(), b.Duration())
	if shorter <= 0 {
		return 0
	}
	return float64(overlap) / float64(shorter) * 100
}

func validate(b CandidateBooking) error {
	switch {
	case strings.TrimSpace(b.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidBooking)
	case b.StartTime.IsZero():
		return fmt.Errorf("%w: missing start_time", ErrInvalidBooking)
	case b.EndTime.IsZero():
		return fmt.Errorf("%w: missing end_time", ErrInvalidBooking)
	case !b.EndTime.After(b.StartTime):
		return fmt.Errorf("%w: end_time not after start_time", ErrInvalidBooking)
	case strings.TrimSpace(b.Location.ID) == "":
		return fmt.Errorf("%w: missing location id", ErrInvalidBooking)
	}
	return nil
}

func ids(bookings []CandidateBooking) []string {
	out := make([]string, len(bookings))
	for i, b := range bookings {
		out[i] = b.ID
	}
	return out
}
