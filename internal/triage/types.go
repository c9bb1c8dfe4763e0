package triage

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/refundd/internal/rules"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// Method records how a final decision was reached.
type Method string

const (
	MethodRules            Method = "rules"
	MethodLLM              Method = "llm"
	MethodHybrid           Method = "hybrid"
	MethodRulesFallback    Method = "rules_fallback"
	MethodValidationFailed Method = "validation_failed"
	MethodExtractionFailed Method = "extraction_failed"
	MethodExtractionError  Method = "extraction_error"
	MethodRuleError        Method = "rule_error"
	MethodLLMError         Method = "llm_error"
)

// ErrNoAnalyzer is reported when case analysis is needed but no analyzer
// is configured.
var ErrNoAnalyzer = errors.New("case analysis unavailable")

// FinalDecision is the orchestrator's answer for one ticket.
type FinalDecision struct {
	Decision      ticket.Decision   `json:"decision"`
	Reasoning     string            `json:"reasoning"`
	PolicyApplied string            `json:"policy_applied"`
	Confidence    ticket.Confidence `json:"confidence"`

	// CancellationReason is set only for approvals.
	CancellationReason *string `json:"cancellation_reason"`

	BookingInfoFound bool                `json:"booking_info_found"`
	BookingInfo      *ticket.BookingInfo `json:"booking_info,omitempty"`
	MethodUsed       Method              `json:"method_used"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	KeyFactors       []string            `json:"key_factors"`
	RequestID        string              `json:"request_id"`
}

// Request is the input to Decide.
type Request struct {
	Ticket  ticket.Context      `json:"ticket"`
	Notes   *string             `json:"notes,omitempty"`
	Booking *ticket.BookingInfo `json:"booking_info,omitempty"`
}

// CaseInput is what the case analyzer sees.
type CaseInput struct {
	Ticket  ticket.Context
	Booking ticket.BookingInfo
	// RuleContext is the rule engine's uncertain verdict, when there was one.
	RuleContext *rules.Result
}

// Analysis is a validated case-analysis verdict. Decision is always one of
// the three terminal decisions.
type Analysis struct {
	Decision      ticket.Decision   `json:"decision"`
	Reasoning     string            `json:"reasoning"`
	PolicyApplied string            `json:"policy_applied"`
	Confidence    ticket.Confidence `json:"confidence"`
	KeyFactors    []string          `json:"key_factors,omitempty"`
}

// CaseAnalyzer is the model-assisted case analysis collaborator.
type CaseAnalyzer interface {
	Analyze(ctx context.Context, in CaseInput) (Analysis, error)
}

// ReasonClassifier maps an approval's justification to a cancellation
// reason code.
type ReasonClassifier interface {
	Classify(reasoning, policyLabel string) string
}

// RuleEvaluator is the rule engine as seen by the orchestrator.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, booking ticket.BookingInfo, tc ticket.Context) (rules.Result, error)
}
