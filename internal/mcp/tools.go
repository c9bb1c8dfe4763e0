package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/logging"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// errInvalidArgument marks tool calls rejected before any work was done.
var errInvalidArgument = errors.New("invalid argument")

// Tool names.
const (
	ToolDecide            = "refund_decide"
	ToolExtractBooking    = "refund_extract_booking"
	ToolDuplicatesAnalyze = "refund_duplicates_analyze"
	ToolGuardCheck        = "refund_guard_check"
	ToolReasonClassify    = "refund_reason_classify"
	ToolSearch            = "tool_search"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() error {
	for _, register := range []func() error{
		s.registerDecisionTools,
		s.registerExtractionTools,
		s.registerDuplicateTools,
		s.registerGuardTools,
		s.registerReasonTools,
		s.registerSearchTools,
	} {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// describe records meta in the tool registry and returns the SDK tool
// definition for it.
func (s *Server) describe(meta *ToolMetadata) (*mcp.Tool, error) {
	if err := s.toolRegistry.Register(meta); err != nil {
		return nil, err
	}
	return &mcp.Tool{Name: meta.Name, Description: meta.Description}, nil
}

// observe starts invocation metrics for tool. The returned func must be
// called with the tool's error when it finishes.
func (s *Server) observe(ctx context.Context, tool string) func(error) {
	finish := s.metrics.start(ctx, tool)
	return func(err error) {
		finish(err)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// ===== DECISION TOOLS =====

type decideInput struct {
	TicketID    string              `json:"ticket_id" jsonschema:"Support ticket identifier"`
	Subject     string              `json:"subject" jsonschema:"Ticket subject line"`
	Description string              `json:"description" jsonschema:"Ticket description or body"`
	Status      string              `json:"status,omitempty" jsonschema:"Ticket status in the helpdesk"`
	Notes       string              `json:"notes,omitempty" jsonschema:"Conversation history; booking fields are extracted from it when present"`
	BookingInfo *ticket.BookingInfo `json:"booking_info,omitempty" jsonschema:"Booking fields already known; skips extraction"`
}

func (s *Server) registerDecisionTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolDecide,
		Description: "Decide a parking refund request: Approved, Denied or Needs Human Review, with reasoning, applied policy and cancellation reason code",
		Category:    CategoryDecision,
		Keywords:    []string{"refund", "cancel", "policy", "triage"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args decideInput) (*mcp.CallToolResult, triage.FinalDecision, error) {
		done := s.observe(ctx, ToolDecide)

		ticketID := strings.TrimSpace(args.TicketID)
		if ticketID == "" {
			err := fmt.Errorf("%w: ticket_id is required", errInvalidArgument)
			done(err)
			return nil, triage.FinalDecision{}, err
		}

		r := triage.Request{
			Ticket: ticket.Context{
				TicketID:    ticketID,
				Subject:     args.Subject,
				Description: args.Description,
				Status:      args.Status,
				Notes:       args.Notes,
			},
			Booking: args.BookingInfo,
		}
		if strings.TrimSpace(args.Notes) != "" {
			r.Notes = ticket.Ptr(args.Notes)
		}

		ctx = logging.WithTicketID(ctx, ticketID)
		fd := s.core.Decider.Decide(ctx, r)
		if s.core.Notifier != nil {
			s.core.Notifier.Notify(ctx, ticketID, fd)
		}
		s.outcomes.RecordDecision(ctx, fd)
		done(nil)

		summary := s.core.Scrubber.Scrub(fd.Reasoning)
		return textResult("%s (%s confidence, method %s): %s",
			fd.Decision, fd.Confidence, fd.MethodUsed, summary.Scrubbed), fd, nil
	})
	return nil
}

// ===== EXTRACTION TOOLS =====

type extractInput struct {
	Text string `json:"text" jsonschema:"Ticket text, plain or HTML"`
}

func (s *Server) registerExtractionTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolExtractBooking,
		Description: "Extract booking id, amount, dates, booking type, location and customer email from ticket text",
		Category:    CategoryExtraction,
		Keywords:    []string{"booking", "parse", "reservation"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args extractInput) (*mcp.CallToolResult, extraction.Result, error) {
		done := s.observe(ctx, ToolExtractBooking)

		if strings.TrimSpace(args.Text) == "" {
			err := fmt.Errorf("%w: text is required", errInvalidArgument)
			done(err)
			return nil, extraction.Result{}, err
		}

		res := s.core.Extractor.Extract(ctx, args.Text)
		done(nil)

		if !res.Found {
			return textResult("No booking information found (method %s)", res.Method), res, nil
		}
		return textResult("Booking found with %s confidence (method %s)", res.Confidence, res.Method), res, nil
	})
	return nil
}

// ===== DUPLICATE TOOLS =====

type bookingInput struct {
	ID           string  `json:"id" jsonschema:"Booking identifier"`
	StartTime    string  `json:"start_time" jsonschema:"Parking window start, RFC 3339"`
	EndTime      string  `json:"end_time" jsonschema:"Parking window end, RFC 3339"`
	LocationID   string  `json:"location_id" jsonschema:"Parking facility identifier"`
	LocationName string  `json:"location_name,omitempty" jsonschema:"Parking facility name"`
	Status       string  `json:"status" jsonschema:"Booking status, e.g. completed, checked_in, confirmed"`
	PricePaid    float64 `json:"price_paid,omitempty" jsonschema:"Amount paid"`
}

func (b bookingInput) candidate() (duplicates.CandidateBooking, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(b.StartTime))
	if err != nil {
		return duplicates.CandidateBooking{}, fmt.Errorf("%w: start_time of booking %q: %v", errInvalidArgument, b.ID, err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(b.EndTime))
	if err != nil {
		return duplicates.CandidateBooking{}, fmt.Errorf("%w: end_time of booking %q: %v", errInvalidArgument, b.ID, err)
	}
	return duplicates.CandidateBooking{
		ID:        b.ID,
		StartTime: start,
		EndTime:   end,
		Location:  duplicates.Location{ID: b.LocationID, Name: b.LocationName},
		Status:    strings.ToLower(strings.TrimSpace(b.Status)),
		PricePaid: b.PricePaid,
	}, nil
}

type duplicatesInput struct {
	Bookings []bookingInput `json:"bookings" jsonschema:"The customer's bookings around the disputed date"`
}

func (s *Server) registerDuplicateTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolDuplicatesAnalyze,
		Description: "Find overlapping bookings at the same location and recommend refunding the unused duplicate, escalating or denying",
		Category:    CategoryDuplicates,
		Keywords:    []string{"duplicate", "double", "charged twice", "overlap"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args duplicatesInput) (*mcp.CallToolResult, duplicates.Result, error) {
		done := s.observe(ctx, ToolDuplicatesAnalyze)

		candidates := make([]duplicates.CandidateBooking, 0, len(args.Bookings))
		for _, b := range args.Bookings {
			c, err := b.candidate()
			if err != nil {
				done(err)
				return nil, duplicates.Result{}, err
			}
			candidates = append(candidates, c)
		}

		res := s.core.Duplicates.Analyze(candidates)
		s.outcomes.RecordDuplicateResult(ctx, res)
		done(nil)

		return textResult("%s: %s", res.Action, res.Explanation), res, nil
	})
	return nil
}

// ===== GUARD TOOLS =====

type guardInput struct {
	Verified         *guard.VerifiedBooking `json:"verified,omitempty" jsonschema:"Booking as verified by the booking system"`
	BookingID        string                 `json:"booking_id,omitempty" jsonschema:"Booking to verify when verified is absent"`
	ClaimedEventDate string                 `json:"claimed_event_date,omitempty" jsonschema:"Event date the customer claims, YYYY-MM-DD"`
	ClaimContext     string                 `json:"claim_context,omitempty" jsonschema:"What the customer says happened"`
	FailureReason    string                 `json:"failure_reason,omitempty" jsonschema:"Why verification failed, if it did"`
}

type guardOutput struct {
	CanAutomate    bool                   `json:"can_automate" jsonschema:"An automated Approve or Deny may be issued"`
	ShouldEscalate bool                   `json:"should_escalate" jsonschema:"The claim must go to a human"`
	Reason         string                 `json:"reason" jsonschema:"Why the claim is escalated"`
	Verified       *guard.VerifiedBooking `json:"verified" jsonschema:"Booking the check was made against"`
}

func (s *Server) registerGuardTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolGuardCheck,
		Description: "Check whether verified booking data is trustworthy enough to issue an automated refund outcome",
		Category:    CategoryGuard,
		Keywords:    []string{"verify", "escalate", "pass usage"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args guardInput) (*mcp.CallToolResult, guardOutput, error) {
		done := s.observe(ctx, ToolGuardCheck)

		verified := args.Verified
		failure := args.FailureReason
		if verified == nil && strings.TrimSpace(args.BookingID) != "" && s.core.Verifier != nil {
			v, err := s.core.Verifier.Verify(ctx, args.BookingID, args.ClaimedEventDate)
			if err != nil {
				s.logger.Warn("booking verification failed",
					zap.String("booking_id", args.BookingID),
					zap.Error(err),
				)
				if failure == "" {
					failure = "verification lookup failed"
				}
			}
			verified = v
		}

		escalate, reason := s.core.Guard.ShouldEscalate(verified, args.ClaimContext, failure)
		out := guardOutput{
			CanAutomate:    s.core.Guard.CanAutomate(verified),
			ShouldEscalate: escalate,
			Reason:         reason,
			Verified:       verified,
		}
		if escalate {
			s.outcomes.RecordGuardBlock(ctx, verified != nil)
		}
		done(nil)

		if escalate {
			return textResult("Escalate: %s", reason), out, nil
		}
		return textResult("Booking %s verified; automation allowed", verified.BookingID), out, nil
	})
	return nil
}

// ===== REASON TOOLS =====

type classifyInput struct {
	Reasoning string `json:"reasoning" jsonschema:"Decision reasoning text"`
	Policy    string `json:"policy,omitempty" jsonschema:"Applied policy label"`
}

type classifyOutput struct {
	CancellationReason string `json:"cancellation_reason" jsonschema:"Canonical cancellation reason code"`
	Valid              bool   `json:"valid" jsonschema:"The code is one of the canonical codes"`
}

func (s *Server) registerReasonTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolReasonClassify,
		Description: "Map decision reasoning and policy label to one of the canonical cancellation reason codes",
		Category:    CategoryReasons,
		Keywords:    []string{"cancellation reason", "code", "classify"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args classifyInput) (*mcp.CallToolResult, classifyOutput, error) {
		done := s.observe(ctx, ToolReasonClassify)

		if strings.TrimSpace(args.Reasoning) == "" && strings.TrimSpace(args.Policy) == "" {
			err := fmt.Errorf("%w: reasoning or policy is required", errInvalidArgument)
			done(err)
			return nil, classifyOutput{}, err
		}

		code := s.core.Reasons.Classify(args.Reasoning, args.Policy)
		done(nil)

		return textResult("Cancellation reason: %s", code), classifyOutput{
			CancellationReason: code,
			Valid:              reasons.IsValid(code),
		}, nil
	})
	return nil
}
