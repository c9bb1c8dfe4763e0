package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

func TestRefundDecide(t *testing.T) {
	notifier := &recordingNotifier{}
	_, cs := newTestServer(t, Core{Notifier: notifier})

	res := callTool(t, cs, ToolDecide, map[string]any{
		"ticket_id":   "48213",
		"subject":     "Cancel my reservation",
		"description": "Plans changed, please cancel.",
		"booking_info": map[string]any{
			"booking_id":   "PW-509266779",
			"amount":       25.0,
			"event_date":   "2025-11-25",
			"booking_type": "confirmed",
		},
	})

	var fd triage.FinalDecision
	decodeStructured(t, res, &fd)
	assert.Equal(t, ticket.Approved, fd.Decision)
	assert.Equal(t, triage.MethodRules, fd.MethodUsed)
	require.NotNil(t, fd.CancellationReason)
	assert.Equal(t, reasons.PreArrival, *fd.CancellationReason)
	assert.Contains(t, resultText(res), "Approved")

	assert.Equal(t, []string{"48213"}, notifier.ticketIDs)
}

func TestRefundDecide_ExtractsFromNotes(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	res := callTool(t, cs, ToolDecide, map[string]any{
		"ticket_id":   "7",
		"subject":     "refund",
		"description": "see notes",
		"notes":       "customer: I want a refund\nBooking ID: PW-123456, Amount: $30.00, Event Date: 2025-11-30",
	})

	var fd triage.FinalDecision
	decodeStructured(t, res, &fd)
	assert.True(t, fd.BookingInfoFound)
	require.NotNil(t, fd.BookingInfo)
	assert.Equal(t, "PW-123456", ticket.Value(fd.BookingInfo.BookingID))
}

func TestRefundDecide_RequiresTicketID(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	res := callTool(t, cs, ToolDecide, map[string]any{
		"ticket_id":   "  ",
		"subject":     "x",
		"description": "y",
	})
	assert.True(t, res.IsError)
}

func TestRefundDecide_ScrubsSummary(t *testing.T) {
	_, cs := newTestServer(t, Core{Decider: deciderFunc(func(triage.Request) triage.FinalDecision {
		return triage.FinalDecision{
			Decision:   ticket.NeedsHumanReview,
			Reasoning:  "Customer pasted card 4111 1111 1111 1111 into the ticket.",
			Confidence: ticket.ConfidenceLow,
			MethodUsed: triage.MethodLLMError,
			KeyFactors: []string{},
		}
	})})

	res := callTool(t, cs, ToolDecide, map[string]any{"ticket_id": "1", "subject": "x", "description": "y"})
	assert.False(t, res.IsError)
	assert.NotContains(t, resultText(res), "4111 1111 1111 1111")
}

func TestRefundExtractBooking(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	res := callTool(t, cs, ToolExtractBooking, map[string]any{
		"text": "Booking ID: PW-509266779, Amount: $45.00, Event Date: 2025-11-25, Location: Downtown Garage",
	})
	var out extraction.Result
	decodeStructured(t, res, &out)
	assert.True(t, out.Found)
	assert.Equal(t, extraction.MethodPattern, out.Method)
	assert.Equal(t, "2025-11-25", ticket.Value(out.Booking.EventDate))

	res = callTool(t, cs, ToolExtractBooking, map[string]any{"text": ""})
	assert.True(t, res.IsError)
}

func TestRefundDuplicatesAnalyze(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	booking := func(id, start, status string) map[string]any {
		return map[string]any{
			"id":          id,
			"start_time":  start,
			"end_time":    "2025-11-25T23:00:00Z",
			"location_id": "L9",
			"status":      status,
		}
	}

	tests := []struct {
		name       string
		bookings   []any
		wantAction duplicates.Action
		wantUnused string
	}{
		{
			name:       "used and unused",
			bookings:   []any{booking("B1", "2025-11-25T18:00:00Z", "Completed"), booking("B2", "2025-11-25T18:30:00Z", "confirmed")},
			wantAction: duplicates.ActionRefundDuplicate,
			wantUnused: "B2",
		},
		{
			name:       "both used",
			bookings:   []any{booking("B1", "2025-11-25T18:00:00Z", "completed"), booking("B2", "2025-11-25T18:30:00Z", "checked_in")},
			wantAction: duplicates.ActionEscalate,
		},
		{
			name:       "single booking",
			bookings:   []any{booking("B1", "2025-11-25T18:00:00Z", "completed")},
			wantAction: duplicates.ActionDeny,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, cs, ToolDuplicatesAnalyze, map[string]any{"bookings": tt.bookings})
			var out duplicates.Result
			decodeStructured(t, res, &out)
			assert.Equal(t, tt.wantAction, out.Action)
			assert.Equal(t, tt.wantUnused, out.UnusedBookingID)
		})
	}

	t.Run("bad timestamp", func(t *testing.T) {
		res := callTool(t, cs, ToolDuplicatesAnalyze, map[string]any{
			"bookings": []any{booking("B1", "yesterday", "completed")},
		})
		assert.True(t, res.IsError)
	})
}

func TestRefundGuardCheck(t *testing.T) {
	verified := map[string]any{"booking_id": "PW-1", "pass_usage_status": "used", "match_confidence": "exact"}

	tests := []struct {
		name         string
		core         Core
		args         map[string]any
		wantAutomate bool
		wantReason   string
	}{
		{
			name:         "verified",
			args:         map[string]any{"verified": verified},
			wantAutomate: true,
		},
		{
			name:       "missing booking",
			args:       map[string]any{"claim_context": "never parked"},
			wantReason: guard.ReasonNotVerified + "; customer claim: never parked",
		},
		{
			name:         "verifier lookup",
			core:         Core{Verifier: stubVerifier{v: &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageNotUsed, MatchConfidence: guard.MatchPartial}}},
			args:         map[string]any{"booking_id": "PW-1", "claimed_event_date": "2025-11-25"},
			wantAutomate: true,
		},
		{
			name:       "verifier failure",
			core:       Core{Verifier: stubVerifier{err: errors.New("booking api: 503")}},
			args:       map[string]any{"booking_id": "PW-1"},
			wantReason: guard.ReasonNotVerified + " (verification lookup failed)",
		},
		{
			name:       "unknown usage",
			args:       map[string]any{"verified": map[string]any{"booking_id": "PW-1", "pass_usage_status": "unknown", "match_confidence": "exact"}},
			wantReason: guard.ReasonUnknownUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cs := newTestServer(t, tt.core)
			res := callTool(t, cs, ToolGuardCheck, tt.args)

			var out guardOutput
			decodeStructured(t, res, &out)
			assert.Equal(t, tt.wantAutomate, out.CanAutomate)
			assert.Equal(t, !tt.wantAutomate, out.ShouldEscalate)
			assert.Equal(t, tt.wantReason, out.Reason)
		})
	}
}

func TestRefundReasonClassify(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	res := callTool(t, cs, ToolReasonClassify, map[string]any{
		"reasoning": "The garage was full when the customer arrived.",
		"policy":    "Oversold",
	})
	var out classifyOutput
	decodeStructured(t, res, &out)
	assert.Equal(t, reasons.Oversold, out.CancellationReason)
	assert.True(t, out.Valid)

	res = callTool(t, cs, ToolReasonClassify, map[string]any{"reasoning": " "})
	assert.True(t, res.IsError)
}

func TestToolSearch(t *testing.T) {
	_, cs := newTestServer(t, Core{})

	res := callTool(t, cs, ToolSearch, map[string]any{"query": "duplicate"})
	var out toolSearchOutput
	decodeStructured(t, res, &out)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, ToolDuplicatesAnalyze, out.Results[0].Name)
	assert.Equal(t, 6, out.TotalTools)

	res = callTool(t, cs, ToolSearch, map[string]any{"query": "refund_.*", "category": "guard"})
	decodeStructured(t, res, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, ToolGuardCheck, out.Results[0].Name)

	res = callTool(t, cs, ToolSearch, map[string]any{"query": "refund", "limit": 2})
	decodeStructured(t, res, &out)
	assert.Len(t, out.Results, 2)

	res = callTool(t, cs, ToolSearch, map[string]any{"query": "zzz-nothing"})
	decodeStructured(t, res, &out)
	assert.Empty(t, out.Results)
	assert.Contains(t, resultText(res), "No tools found")
}
