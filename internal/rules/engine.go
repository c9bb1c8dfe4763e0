package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/policy"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// DefaultModelTimeout bounds the vehicle classification call.
const DefaultModelTimeout = 10 * time.Second

// Day thresholds used by the date branches.
const (
	preArrivalDays  = 7
	shortNoticeDays = 3
)

// Engine evaluates the refund policy over extracted booking fields and the
// ticket text. It is safe for concurrent use; the policy table is never
// mutated.
type Engine struct {
	table   *policy.Table
	vehicle VehicleClassifier
	now     func() time.Time
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used when a booking has no cancellation date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithVehicleClassifier enables the model-assisted vehicle restriction check.
func WithVehicleClassifier(c VehicleClassifier) Option {
	return func(e *Engine) {
		e.vehicle = c
	}
}

// WithModelTimeout overrides DefaultModelTimeout.
func WithModelTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine over table.
func NewEngine(table *policy.Table, opts ...Option) *Engine {
	e := &Engine{
		table:   table,
		now:     time.Now,
		timeout: DefaultModelTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PolicyText returns the refund policy text of the engine's table.
func (e *Engine) PolicyText() string {
	if e.table == nil {
		return ""
	}
	return e.table.Text()
}

// Evaluate applies the policy branches in priority order and returns the
// first match. The only error is ErrNoPolicy; data problems are reported
// as an Uncertain result.
func (e *Engine) Evaluate(ctx context.Context, booking ticket.BookingInfo, tc ticket.Context) (Result, error) {
	if e.table == nil {
		return Result{}, ErrNoPolicy
	}

	if strings.TrimSpace(ticket.Value(booking.EventDate)) == "" {
		return Result{
			Decision:   ticket.Uncertain,
			Reasoning:  "No event date is available, so refund eligibility cannot be determined.",
			PolicyRule: RuleMissingEventDate,
			Confidence: ticket.ConfidenceLow,
		}, nil
	}
	event, err := ticket.ParseDate(*booking.EventDate)
	if err != nil {
		return invalidDate("event date", err), nil
	}
	cancelled := ticket.CalendarDate(e.now().UTC())
	if s := ticket.Value(booking.CancellationDate); strings.TrimSpace(s) != "" {
		if cancelled, err = ticket.ParseDate(s); err != nil {
			return invalidDate("cancellation date", err), nil
		}
	}

	days := ticket.DaysBetween(cancelled, event)
	sig := detectSignals(e.table, tc)

	res := e.evaluate(ctx, booking, tc, sig, days)
	res.DaysBeforeEvent = ticket.Ptr(days)

	e.logger.Debug("rule evaluation",
		zap.String("ticket_id", tc.TicketID),
		zap.String("policy_rule", res.PolicyRule),
		zap.String("decision", string(res.Decision)),
		zap.String("confidence", string(res.Confidence)),
		zap.Int("days_before_event", days),
	)
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, booking ticket.BookingInfo, tc ticket.Context, sig signals, days int) Result {
	if sig.operational != "" {
		return Result{
			Decision:   ticket.Uncertain,
			Reasoning:  "Customer reports an operational failure at the location; whether they made a good-faith effort to use the booking needs case review.",
			PolicyRule: RuleOperationalFailure,
			Confidence: ticket.ConfidenceLow,
			KeyFactors: []string{fmt.Sprintf("operational failure: %q", sig.operational)},
		}
	}

	if sig.vehicleRejected() {
		if res, ok := e.checkVehicle(ctx, tc, sig); ok {
			return res
		}
	}

	if sig.extraCharge != "" {
		return Result{
			Decision:   ticket.NeedsHumanReview,
			Reasoning:  "Customer disputes an extra charge. Proof of payment and arrival and exit times must be verified by an agent.",
			PolicyRule: RuleExtraCharge,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{fmt.Sprintf("extra charge claim: %q", sig.extraCharge)},
		}
	}

	if sig.retroactive != "" {
		return Result{
			Decision:   ticket.NeedsHumanReview,
			Reasoning:  "Customer says the booking was made for the wrong time. An agent must confirm what was booked and whether it was used.",
			PolicyRule: RuleRetroactive,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{fmt.Sprintf("retroactive booking claim: %q", sig.retroactive)},
		}
	}

	if sig.duplicateHeadline != "" {
		return duplicateClaim(RuleDuplicateClaim, sig.duplicateHeadline)
	}

	if days >= preArrivalDays {
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  fmt.Sprintf("Cancelled %d days before the event, which qualifies for a full pre-arrival refund.", days),
			PolicyRule: RulePreArrival,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{fmt.Sprintf("%d days before event", days)},
		}
	}

	if days < 0 {
		return postEvent(sig)
	}

	btype := booking.Type()
	if days < shortNoticeDays && btype == ticket.BookingOnDemand {
		return Result{
			Decision:   ticket.Denied,
			Reasoning:  "On-demand bookings cancelled less than 3 days before the event are not refundable.",
			PolicyRule: RuleOnDemandLate,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{"on-demand booking", fmt.Sprintf("%d days before event", days)},
		}
	}

	if days >= shortNoticeDays && btype == ticket.BookingConfirmed {
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  fmt.Sprintf("Confirmed booking cancelled %d days before the event.", days),
			PolicyRule: RuleConfirmedShort,
			Confidence: ticket.ConfidenceMedium,
			KeyFactors: []string{"confirmed booking", fmt.Sprintf("%d days before event", days)},
		}
	}

	if sig.oversold != "" {
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Customer reports the location was oversold and they could not park.",
			PolicyRule: RuleOversold,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{fmt.Sprintf("oversold: %q", sig.oversold)},
		}
	}
	if sig.paidAgain != "" {
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Customer had to pay again on site despite holding a valid booking.",
			PolicyRule: RulePaidAgain,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{fmt.Sprintf("paid again: %q", sig.paidAgain)},
		}
	}

	if days >= shortNoticeDays {
		return Result{
			Decision:   ticket.Uncertain,
			Reasoning:  fmt.Sprintf("Cancelled %d days before the event with booking type %q; the short-notice policy depends on the booking type.", days, btype),
			PolicyRule: RuleShortNoticeUnclear,
			Confidence: ticket.ConfidenceLow,
			KeyFactors: []string{fmt.Sprintf("booking type: %s", btype)},
		}
	}

	if btype != ticket.BookingOnDemand {
		return Result{
			Decision:   ticket.Uncertain,
			Reasoning:  fmt.Sprintf("Late cancellation (%d days before the event) of a %s booking.", days, btype),
			PolicyRule: RuleLateNonOnDemand,
			Confidence: ticket.ConfidenceLow,
			KeyFactors: []string{fmt.Sprintf("booking type: %s", btype)},
		}
	}

	return Result{
		Decision:   ticket.Uncertain,
		Reasoning:  "No policy rule applies to this ticket.",
		PolicyRule: RuleEdgeCase,
		Confidence: ticket.ConfidenceLow,
	}
}

// checkVehicle runs the vehicle restriction branch. ok is false when the
// classifier found the vehicle genuinely restricted, in which case
// evaluation continues with the later branches.
func (e *Engine) checkVehicle(ctx context.Context, tc ticket.Context, sig signals) (Result, bool) {
	factors := []string{
		fmt.Sprintf("rejection: %q", sig.vehicleRejection),
		fmt.Sprintf("vehicle term: %q", sig.vehicleTerm),
	}

	vehicle, restrictions := extractVehicleContext(tc)
	if vehicle == "" || restrictions == "" || e.vehicle == nil {
		return unverifiedVehicle(factors, "the vehicle and restriction details could not be extracted"), true
	}
	factors = append(factors, fmt.Sprintf("vehicle: %q", vehicle), fmt.Sprintf("restrictions: %q", restrictions))

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	cls, err := e.vehicle.ClassifyVehicle(cctx, vehicle, restrictions)
	if err != nil {
		e.logger.Warn("vehicle classification failed",
			zap.String("ticket_id", tc.TicketID),
			zap.Error(err),
		)
		return unverifiedVehicle(factors, fmt.Sprintf("vehicle classification failed: %v", err)), true
	}
	factors = append(factors, fmt.Sprintf("vehicle category: %s", cls.Category))

	if !cls.Allowed() || !cls.IsMismatch {
		e.logger.Debug("vehicle restricted at location",
			zap.String("ticket_id", tc.TicketID),
			zap.String("category", string(cls.Category)),
		)
		return Result{}, false
	}

	if !cls.Confidence.AtLeastMedium() {
		return Result{
			Decision:   ticket.Uncertain,
			Reasoning:  fmt.Sprintf("Customer was turned away; the vehicle was classified as %s, which the location does not restrict, but the classification is not reliable.", cls.Category),
			PolicyRule: RuleVehicleUnverified,
			Confidence: ticket.ConfidenceLow,
			KeyFactors: factors,
		}, true
	}

	reasoning := fmt.Sprintf("Customer was turned away, but the vehicle is classified as %s and the location's vehicle restriction does not exclude that category.", cls.Category)
	if cls.Reasoning != "" {
		reasoning += " " + cls.Reasoning
	}
	return Result{
		Decision:   ticket.Approved,
		Reasoning:  reasoning,
		PolicyRule: RuleVehicleMismatch,
		Confidence: cls.Confidence,
		KeyFactors: factors,
	}, true
}

func unverifiedVehicle(factors []string, why string) Result {
	return Result{
		Decision:   ticket.Approved,
		Reasoning:  fmt.Sprintf("Customer was turned away over a vehicle restriction; %s. Approved pending manual verification of the vehicle type.", why),
		PolicyRule: RuleVehicleMismatch,
		Confidence: ticket.ConfidenceMedium,
		KeyFactors: append(factors, "requires manual verification"),
	}
}

func duplicateClaim(rule, fragment string) Result {
	return Result{
		Decision:   ticket.NeedsHumanReview,
		Reasoning:  "Customer reports a duplicate booking. Duplicate lookup by customer email is not supported, so an agent must review the account.",
		PolicyRule: rule,
		Confidence: ticket.ConfidenceHigh,
		KeyFactors: []string{fmt.Sprintf("duplicate claim: %q", fragment)},
	}
}

// postEvent handles requests made after the event date. The denial message
// never mentions a day count.
func postEvent(sig signals) Result {
	switch {
	case sig.oversold != "":
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Requested after the event, but the customer reports the location was oversold and they could not park.",
			PolicyRule: RulePostEventOversold,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{"post-event", fmt.Sprintf("oversold: %q", sig.oversold)},
		}
	case sig.duplicate != "":
		return duplicateClaim(RulePostEventDuplicate, sig.duplicate)
	case sig.paidAgain != "":
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Requested after the event, but the customer had to pay again on site despite holding a valid booking.",
			PolicyRule: RulePostEventPaidAgain,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{"post-event", fmt.Sprintf("paid again: %q", sig.paidAgain)},
		}
	case sig.closed != "":
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Requested after the event, but the customer reports the location was closed.",
			PolicyRule: RulePostEventClosed,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{"post-event", fmt.Sprintf("location closed: %q", sig.closed)},
		}
	case sig.accessibility != "":
		return Result{
			Decision:   ticket.Approved,
			Reasoning:  "Requested after the event, but access to the location was blocked.",
			PolicyRule: RulePostEventBlocked,
			Confidence: ticket.ConfidenceHigh,
			KeyFactors: []string{"post-event", fmt.Sprintf("access blocked: %q", sig.accessibility)},
		}
	}
	return Result{
		Decision:   ticket.Denied,
		Reasoning:  "Refund requests made after the event date are not eligible under the refund policy.",
		PolicyRule: RulePostEvent,
		Confidence: ticket.ConfidenceHigh,
		KeyFactors: []string{"post-event request"},
	}
}

func invalidDate(field string, err error) Result {
	return Result{
		Decision:   ticket.Uncertain,
		Reasoning:  fmt.Sprintf("The %s could not be parsed: %v", field, err),
		PolicyRule: RuleInvalidDate,
		Confidence: ticket.ConfidenceLow,
	}
}
