package triage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/llm"
	"github.com/fyrsmithlabs/refundd/internal/secrets"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

const caseSystemPrompt = `You are a refund analyst for a parking reservation company. Decide the
customer's refund request strictly according to the refund policy below.

%s

Respond with a single JSON object and nothing else:
{
  "decision": "Approved" | "Denied" | "Needs Human Review",
  "reasoning": "two or three sentences citing the policy",
  "policy_applied": "short name of the policy section applied",
  "confidence": "high" | "medium" | "low",
  "key_factors": ["short factor", ...]
}

Choose "Needs Human Review" whenever the ticket lacks the facts the policy
needs, or when payment, usage or account history must be verified.`

// LLMCaseAnalyzer implements CaseAnalyzer over an llm.Completer.
type LLMCaseAnalyzer struct {
	completer  llm.Completer
	policyText string
	scrubber   secrets.Scrubber
	logger     *zap.Logger
}

// NewLLMCaseAnalyzer creates an LLMCaseAnalyzer that judges tickets against
// policyText. A nil scrubber uses the default rules.
func NewLLMCaseAnalyzer(c llm.Completer, policyText string, scrubber secrets.Scrubber, logger *zap.Logger) *LLMCaseAnalyzer {
	if scrubber == nil {
		scrubber = secrets.MustNew(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMCaseAnalyzer{
		completer:  c,
		policyText: policyText,
		scrubber:   scrubber,
		logger:     logger,
	}
}

type caseReply struct {
	Decision      string   `json:"decision"`
	Reasoning     string   `json:"reasoning"`
	PolicyApplied string   `json:"policy_applied"`
	Confidence    string   `json:"confidence"`
	KeyFactors    []string `json:"key_factors"`
}

// Analyze implements CaseAnalyzer. A decision outside the three terminal
// values is an error; an invalid confidence alone is replaced by medium.
func (a *LLMCaseAnalyzer) Analyze(ctx context.Context, in CaseInput) (Analysis, error) {
	if a.completer == nil {
		return Analysis{}, ErrNoAnalyzer
	}

	prompt := a.scrubber.Scrub(buildCasePrompt(in))
	if prompt.HasFindings() {
		a.logger.Debug("scrubbed case prompt", zap.Strings("rules", prompt.RuleIDs()))
	}

	reply, err := a.completer.Complete(ctx, fmt.Sprintf(caseSystemPrompt, a.policyText), prompt.Scrubbed)
	if err != nil {
		return Analysis{}, fmt.Errorf("case analysis call: %w", err)
	}

	var r caseReply
	if err := llm.DecodeJSON(reply, &r); err != nil {
		return Analysis{}, err
	}

	decision, ok := ticket.ParseDecision(r.Decision)
	if !ok {
		return Analysis{}, fmt.Errorf("%w: invalid decision %q", llm.ErrInvalidResponse, r.Decision)
	}
	confidence, ok := ticket.ParseConfidence(r.Confidence)
	if !ok {
		a.logger.Debug("invalid case analysis confidence, using medium", zap.String("confidence", r.Confidence))
		confidence = ticket.ConfidenceMedium
	}

	out := Analysis{
		Decision:      decision,
		Reasoning:     strings.TrimSpace(r.Reasoning),
		PolicyApplied: strings.TrimSpace(r.PolicyApplied),
		Confidence:    confidence,
	}
	for _, f := range r.KeyFactors {
		if f = strings.TrimSpace(f); f != "" {
			out.KeyFactors = append(out.KeyFactors, f)
		}
	}
	if out.PolicyApplied == "" {
		out.PolicyApplied = "Case Analysis"
	}
	return out, nil
}

func buildCasePrompt(in CaseInput) string {
	var sb strings.Builder

	sb.WriteString("TICKET\n")
	fmt.Fprintf(&sb, "Subject: %s\n", in.Ticket.Subject)
	fmt.Fprintf(&sb, "Description: %s\n", in.Ticket.Description)
	if in.Ticket.Status != "" {
		fmt.Fprintf(&sb, "Status: %s\n", in.Ticket.Status)
	}
	if in.Ticket.Notes != "" {
		fmt.Fprintf(&sb, "Conversation notes:\n%s\n", in.Ticket.Notes)
	}

	b := in.Booking
	sb.WriteString("\nBOOKING\n")
	writeField(&sb, "Booking ID", b.BookingID)
	if b.Amount != nil {
		fmt.Fprintf(&sb, "Amount: $%s\n", strconv.FormatFloat(*b.Amount, 'f', 2, 64))
	}
	writeField(&sb, "Event date", b.EventDate)
	writeField(&sb, "Reservation date", b.ReservationDate)
	writeField(&sb, "Cancellation date", b.CancellationDate)
	fmt.Fprintf(&sb, "Booking type: %s\n", b.Type())
	writeField(&sb, "Location", b.Location)

	if rc := in.RuleContext; rc != nil {
		sb.WriteString("\nRULE ENGINE CONTEXT\n")
		fmt.Fprintf(&sb, "Rule: %s\n", rc.PolicyRule)
		fmt.Fprintf(&sb, "Preliminary decision: %s (%s confidence)\n", rc.Decision, rc.Confidence)
		fmt.Fprintf(&sb, "Notes: %s\n", rc.Reasoning)
		if rc.DaysBeforeEvent != nil {
			fmt.Fprintf(&sb, "Days before event: %d\n", *rc.DaysBeforeEvent)
		}
		for _, f := range rc.KeyFactors {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	return sb.String()
}

func writeField(sb *strings.Builder, label string, v *string) {
	if s := ticket.Value(v); s != "" {
		fmt.Fprintf(sb, "%s: %s\n", label, s)
	}
}

var _ CaseAnalyzer = (*LLMCaseAnalyzer)(nil)
