package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/rules"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// DefaultModelTimeout bounds a single case-analysis call.
const DefaultModelTimeout = 10 * time.Second

// Policy labels used for escalations the rule engine never saw.
const (
	PolicyExtractionFailed = "Booking Extraction Failed"
	PolicyRuleError        = "Rule Engine Error"
	PolicyAnalysisError    = "Case Analysis Error"
)

// Orchestrator turns a ticket into a FinalDecision. It holds no per-request
// state and may be shared between goroutines.
type Orchestrator struct {
	extractor extraction.Extractor
	rules     RuleEvaluator
	analyzer  CaseAnalyzer
	reasons   ReasonClassifier
	timeout   time.Duration
	review    ticket.Confidence
	tracer    trace.Tracer
	logger    *zap.Logger
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCaseAnalyzer sets the model-assisted case analyzer consulted for
// uncertain rule results.
func WithCaseAnalyzer(a CaseAnalyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

// WithReasonClassifier overrides the default reasons classifier.
func WithReasonClassifier(c ReasonClassifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.reasons = c
		}
	}
}

// WithModelTimeout overrides DefaultModelTimeout.
func WithModelTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithReviewConfidence sends rule results at or below c to case analysis.
// The default is low: only uncertain or low-confidence results are
// reviewed.
func WithReviewConfidence(c ticket.Confidence) Option {
	return func(o *Orchestrator) {
		if _, ok := ticket.ParseConfidence(string(c)); ok {
			o.review = c
		}
	}
}

// WithTracer sets the tracer used for decision spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator. A nil extractor uses a
// pattern-only StructuredExtractor. A nil engine sends every ticket
// straight to case analysis.
func NewOrchestrator(extractor extraction.Extractor, engine RuleEvaluator, opts ...Option) *Orchestrator {
	if extractor == nil {
		extractor = extraction.NewStructuredExtractor(nil)
	}
	o := &Orchestrator{
		extractor: extractor,
		rules:     engine,
		reasons:   reasons.NewClassifier(),
		timeout:   DefaultModelTimeout,
		review:    ticket.ConfidenceLow,
		tracer:    Tracer(),
		logger:    zap.NewNop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decide produces the final decision for req. It never fails: collaborator
// errors and panics become a Needs Human Review decision.
func (o *Orchestrator) Decide(ctx context.Context, req Request) FinalDecision {
	start := time.Now()
	requestID := o.newID()
	ctx, span := startDecideSpan(ctx, o.tracer, req.Ticket.TicketID, requestID)
	logger := o.logger.With(
		zap.String("ticket_id", req.Ticket.TicketID),
		zap.String("request_id", requestID),
	)

	fd := o.decide(ctx, logger, req)
	fd.RequestID = requestID
	if fd.KeyFactors == nil {
		fd.KeyFactors = []string{}
	}
	elapsed := time.Since(start)
	fd.ProcessingTimeMS = elapsed.Milliseconds()

	observeDecision(fd, elapsed)
	endDecideSpan(span, fd)
	logger.Info("refund decision",
		zap.String("decision", string(fd.Decision)),
		zap.String("method", string(fd.MethodUsed)),
		zap.String("confidence", string(fd.Confidence)),
		zap.String("policy", fd.PolicyApplied),
		zap.Int64("processing_time_ms", fd.ProcessingTimeMS),
	)
	return fd
}

func (o *Orchestrator) decide(ctx context.Context, logger *zap.Logger, req Request) FinalDecision {
	req.Ticket = withNotes(req.Ticket, req.Notes)
	booking, found, fd, ok := o.resolveBooking(ctx, logger, req)
	if !ok {
		return fd
	}

	if strings.TrimSpace(ticket.Value(booking.EventDate)) == "" {
		return escalate(MethodValidationFailed, rules.RuleMissingEventDate,
			"Booking information was found but has no event date, so refund eligibility cannot be determined.",
			found, &booking)
	}

	if o.rules == nil {
		analysis, err := o.analyze(ctx, logger, CaseInput{Ticket: req.Ticket, Booking: booking})
		if err != nil {
			o.analysisFailed(ctx, logger, err)
			return escalate(MethodLLMError, PolicyAnalysisError,
				fmt.Sprintf("Case analysis failed: %v", err), found, &booking)
		}
		return o.finish(ctx, logger, fromAnalysis(analysis, MethodLLM, found, &booking))
	}

	var rr rules.Result
	err := o.protect(ctx, logger, "rules", func() error {
		var err error
		rr, err = o.rules.Evaluate(ctx, booking, req.Ticket)
		return err
	})
	if err != nil {
		logger.Warn("rule evaluation failed", zap.Error(err))
		recordError(ctx, err, "rules")
		return escalate(MethodRuleError, PolicyRuleError,
			fmt.Sprintf("Rule evaluation failed: %v", err), found, &booking)
	}

	if !o.needsReview(rr) {
		return o.finish(ctx, logger, fromRule(rr, MethodRules, found, &booking))
	}

	analysis, err := o.analyze(ctx, logger, CaseInput{Ticket: req.Ticket, Booking: booking, RuleContext: &rr})
	if err == nil {
		fd := fromAnalysis(analysis, MethodHybrid, found, &booking)
		fd.KeyFactors = append(fd.KeyFactors, "rule: "+rr.PolicyRule)
		return o.finish(ctx, logger, fd)
	}
	o.analysisFailed(ctx, logger, err)

	if rr.Decision.Terminal() && rr.Confidence.AtLeastMedium() {
		fd := fromRule(rr, MethodRulesFallback, found, &booking)
		fd.Confidence = rr.Confidence.Downgrade()
		fd.Reasoning = fmt.Sprintf("%s Case analysis was unavailable (%v).", rr.Reasoning, err)
		return o.finish(ctx, logger, fd)
	}
	return escalate(MethodLLMError, PolicyAnalysisError,
		fmt.Sprintf("Case analysis failed (%v) and the rule engine was inconclusive: %s", err, rr.Reasoning),
		found, &booking, "rule: "+rr.PolicyRule)
}

// withNotes fills tc.Notes from the request-level notes when the ticket
// carries none, so rules and case analysis see the conversation history.
func withNotes(tc ticket.Context, notes *string) ticket.Context {
	if notes == nil || strings.TrimSpace(*notes) == "" || strings.TrimSpace(tc.Notes) != "" {
		return tc
	}
	tc.Notes = *notes
	return tc
}

// resolveBooking returns the caller's booking or extracts one. When ok is
// false, fd is the escalation to return.
func (o *Orchestrator) resolveBooking(ctx context.Context, logger *zap.Logger, req Request) (booking ticket.BookingInfo, found bool, fd FinalDecision, ok bool) {
	if req.Booking != nil {
		return *req.Booking, true, FinalDecision{}, true
	}

	text := req.Ticket.Description
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		text = *req.Notes
	}

	var res extraction.Result
	err := o.protect(ctx, logger, "extraction", func() error {
		res = o.extractor.Extract(ctx, text)
		return nil
	})
	if err != nil {
		return booking, false, escalate(MethodExtractionError, PolicyExtractionFailed,
			fmt.Sprintf("Booking extraction failed: %v", err), false, nil), false
	}

	if !res.Found || res.Confidence == ticket.ConfidenceLow {
		reasoning := "Could not extract reliable booking information from the ticket."
		if res.Error != "" {
			reasoning += " Extraction error: " + res.Error
		}
		var b *ticket.BookingInfo
		if res.Found {
			b = &res.Booking
		}
		logger.Debug("extraction insufficient",
			zap.Bool("found", res.Found),
			zap.String("confidence", string(res.Confidence)),
			zap.String("method", string(res.Method)),
		)
		return booking, res.Found, escalate(MethodExtractionFailed, PolicyExtractionFailed, reasoning, res.Found, b,
			fmt.Sprintf("extraction: %s/%s", res.Method, res.Confidence)), false
	}
	return res.Booking, true, FinalDecision{}, true
}

func (o *Orchestrator) analyze(ctx context.Context, logger *zap.Logger, in CaseInput) (Analysis, error) {
	if o.analyzer == nil {
		return Analysis{}, ErrNoAnalyzer
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var a Analysis
	err := o.protect(cctx, logger, "analysis", func() error {
		var err error
		a, err = o.analyzer.Analyze(cctx, in)
		return err
	})
	switch {
	case err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded):
		return Analysis{}, fmt.Errorf("case analysis timed out after %s: %w", o.timeout, err)
	case err != nil:
		return Analysis{}, err
	case !a.Decision.Terminal():
		return Analysis{}, fmt.Errorf("case analysis returned invalid decision %q", a.Decision)
	}
	return a, nil
}

func (o *Orchestrator) analysisFailed(ctx context.Context, logger *zap.Logger, err error) {
	CaseAnalysisFailuresTotal.Inc()
	recordError(ctx, err, "analysis")
	logger.Warn("case analysis failed", zap.Error(err))
}

// finish enforces the terminal-decision invariant and attaches the
// cancellation reason to approvals.
func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, fd FinalDecision) FinalDecision {
	if !fd.Decision.Terminal() {
		fd.Decision = ticket.NeedsHumanReview
	}
	if fd.Decision != ticket.Approved {
		fd.CancellationReason = nil
		return fd
	}

	reason := reasons.Other
	err := o.protect(ctx, logger, "reason", func() error {
		reason = o.reasons.Classify(fd.Reasoning, fd.PolicyApplied)
		return nil
	})
	if err != nil || !reasons.IsValid(reason) {
		logger.Warn("reason classification failed, using default",
			zap.String("reason", reason),
			zap.Error(err),
		)
		reason = reasons.Other
	}
	fd.CancellationReason = &reason
	return fd
}

func (o *Orchestrator) needsReview(r rules.Result) bool {
	return r.Decision == ticket.Uncertain || rank(r.Confidence) <= rank(o.review)
}

// protect runs fn and converts a panic into an error.
func (o *Orchestrator) protect(ctx context.Context, logger *zap.Logger, stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			RecoveredPanicsTotal.WithLabelValues(stage).Inc()
			logger.Error("recovered panic",
				zap.String("stage", stage),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("%s panicked: %v", stage, r)
			recordError(ctx, err, stage)
		}
	}()
	return fn()
}

func rank(c ticket.Confidence) int {
	switch c {
	case ticket.ConfidenceHigh:
		return 2
	case ticket.ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

func fromRule(r rules.Result, method Method, found bool, booking *ticket.BookingInfo) FinalDecision {
	return FinalDecision{
		Decision:         r.Decision,
		Reasoning:        r.Reasoning,
		PolicyApplied:    r.PolicyRule,
		Confidence:       r.Confidence,
		BookingInfoFound: found,
		BookingInfo:      booking,
		MethodUsed:       method,
		KeyFactors:       append([]string(nil), r.KeyFactors...),
	}
}

func fromAnalysis(a Analysis, method Method, found bool, booking *ticket.BookingInfo) FinalDecision {
	return FinalDecision{
		Decision:         a.Decision,
		Reasoning:        a.Reasoning,
		PolicyApplied:    a.PolicyApplied,
		Confidence:       a.Confidence,
		BookingInfoFound: found,
		BookingInfo:      booking,
		MethodUsed:       method,
		KeyFactors:       append([]string(nil), a.KeyFactors...),
	}
}

func escalate(method Method, policy, reasoning string, found bool, booking *ticket.BookingInfo, factors ...string) FinalDecision {
	return FinalDecision{
		Decision:         ticket.NeedsHumanReview,
		Reasoning:        reasoning,
		PolicyApplied:    policy,
		Confidence:       ticket.ConfidenceLow,
		BookingInfoFound: found,
		BookingInfo:      booking,
		MethodUsed:       method,
		KeyFactors:       factors,
	}
}
