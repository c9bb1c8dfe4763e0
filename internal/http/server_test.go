package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/bookings"
	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/logging"
	"github.com/fyrsmithlabs/refundd/internal/policy"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/rules"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

type deciderFunc func(context.Context, triage.Request) triage.FinalDecision

func (f deciderFunc) Decide(ctx context.Context, req triage.Request) triage.FinalDecision {
	return f(ctx, req)
}

type recordingNotifier struct {
	mu        sync.Mutex
	ticketIDs []string
	decisions []triage.FinalDecision
}

func (n *recordingNotifier) Notify(_ context.Context, ticketID string, fd triage.FinalDecision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ticketIDs = append(n.ticketIDs, ticketID)
	n.decisions = append(n.decisions, fd)
}

type stubSource struct {
	got      bookings.ListFilter
	bookings []duplicates.CandidateBooking
	err      error
}

func (s *stubSource) ListBookings(_ context.Context, f bookings.ListFilter) ([]duplicates.CandidateBooking, error) {
	s.got = f
	return s.bookings, s.err
}

type stubVerifier struct {
	v   *guard.VerifiedBooking
	err error
}

func (s stubVerifier) Verify(context.Context, string, string) (*guard.VerifiedBooking, error) {
	return s.v, s.err
}

func newEngine() *rules.Engine {
	now := time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)
	return rules.NewEngine(policy.MustDefault(), rules.WithClock(func() time.Time { return now }))
}

func setupTestServer(t *testing.T, core Core) *Server {
	t.Helper()
	if core.Decider == nil {
		core.Decider = triage.NewOrchestrator(nil, newEngine())
	}
	s, err := NewServer(core, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	decider := deciderFunc(func(context.Context, triage.Request) triage.FinalDecision { return triage.FinalDecision{} })

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(Core{Decider: decider}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", s.config.Host)
		assert.Equal(t, 8086, s.config.Port)
		assert.Equal(t, "1M", s.config.BodyLimit)
		assert.NotNil(t, s.core.Extractor)
		assert.NotNil(t, s.core.Duplicates)
		assert.NotNil(t, s.core.Guard)
		assert.NotNil(t, s.core.Reasons)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Core{Decider: decider}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when decider is nil", func(t *testing.T) {
		_, err := NewServer(Core{}, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "decider cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := do(t, setupTestServer(t, Core{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t, Core{})
	do(t, s, http.MethodGet, "/health", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleDecide(t *testing.T) {
	notifier := &recordingNotifier{}
	s := setupTestServer(t, Core{Notifier: notifier})

	rec := do(t, s, http.MethodPost, "/api/v1/decisions", map[string]any{
		"ticket": map[string]any{
			"ticket_id":   "48213",
			"subject":     "Cancel my reservation",
			"description": "Plans changed, please cancel.",
		},
		"booking_info": map[string]any{
			"booking_id":   "PW-509266779",
			"amount":       25.0,
			"event_date":   "2025-11-25",
			"booking_type": "confirmed",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fd map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fd))
	assert.Equal(t, "Approved", fd["decision"])
	assert.Equal(t, "rules", fd["method_used"])
	assert.Equal(t, reasons.PreArrival, fd["cancellation_reason"])
	assert.Equal(t, true, fd["booking_info_found"])
	assert.NotEmpty(t, fd["request_id"])

	require.Len(t, notifier.ticketIDs, 1)
	assert.Equal(t, "48213", notifier.ticketIDs[0])
	assert.Equal(t, ticket.Approved, notifier.decisions[0].Decision)
}

func TestHandleDecide_CollaboratorFailureIsNot5xx(t *testing.T) {
	s := setupTestServer(t, Core{})

	// No booking info and a pattern-only extractor: extraction fails
	rec := do(t, s, http.MethodPost, "/api/v1/decisions", map[string]any{
		"ticket": map[string]any{"ticket_id": "7", "subject": "refund", "description": "please refund me"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var fd map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fd))
	assert.Equal(t, "Needs Human Review", fd["decision"])
	assert.Equal(t, "extraction_failed", fd["method_used"])
	assert.Nil(t, fd["cancellation_reason"])
}

func TestHandleDecide_PropagatesTicketID(t *testing.T) {
	var got, requestID string
	s := setupTestServer(t, Core{Decider: deciderFunc(func(ctx context.Context, req triage.Request) triage.FinalDecision {
		got = logging.TicketIDFromContext(ctx)
		requestID = logging.RequestIDFromContext(ctx)
		return triage.FinalDecision{Decision: ticket.Denied}
	})})

	rec := do(t, s, http.MethodPost, "/api/v1/decisions", `{"ticket":{"ticket_id":" 99 ","subject":"x","description":"y"},"notes":"chat log"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "99", got)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), requestID)
}

func TestHandleDecide_BadRequests(t *testing.T) {
	s := setupTestServer(t, Core{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"ticket":`},
		{"missing ticket id", `{"ticket":{"subject":"x","description":"y"}}`},
		{"blank ticket id", `{"ticket":{"ticket_id":"   "}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/decisions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), body.RequestID)
		})
	}
}

func TestErrorHandler_HidesUnexpectedErrors(t *testing.T) {
	s := setupTestServer(t, Core{})
	s.Handler().GET("/boom", func(echo.Context) error { panic("kaboom: secret detail") })
	s.Handler().GET("/fail", func(echo.Context) error { return errors.New("db password wrong") })

	for _, path := range []string{"/boom", "/fail"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Internal Server Error", body.Error)
			assert.NotContains(t, rec.Body.String(), "secret")
			assert.NotContains(t, rec.Body.String(), "password")
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := (&Config{Port: 9000}).withDefaults()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "1M", cfg.BodyLimit)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
}

func duplicatePair() []duplicates.CandidateBooking {
	start := time.Date(2025, 11, 25, 18, 0, 0, 0, time.UTC)
	loc := duplicates.Location{ID: "L9", Name: "Downtown Garage"}
	return []duplicates.CandidateBooking{
		{ID: "B1", StartTime: start, EndTime: start.Add(5 * time.Hour), Location: loc, Status: "Completed", PricePaid: 25},
		{ID: "B2", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(5 * time.Hour), Location: loc, Status: "CONFIRMED", PricePaid: 25},
	}
}

func TestHandleDuplicates(t *testing.T) {
	t.Run("inline bookings", func(t *testing.T) {
		rec := do(t, setupTestServer(t, Core{}), http.MethodPost, "/api/v1/duplicates",
			DuplicatesRequest{Bookings: duplicatePair()})
		require.Equal(t, http.StatusOK, rec.Code)

		var res duplicates.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, duplicates.ActionRefundDuplicate, res.Action)
		assert.Equal(t, "B1", res.UsedBookingID)
		assert.Equal(t, "B2", res.UnusedBookingID)
	})

	t.Run("fetched through booking source", func(t *testing.T) {
		src := &stubSource{bookings: duplicatePair()}
		rec := do(t, setupTestServer(t, Core{Bookings: src}), http.MethodPost, "/api/v1/duplicates",
			DuplicatesRequest{CustomerEmail: "jane@example.com", From: "2025-11-20", To: "2025-11-30"})
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, "jane@example.com", src.got.Email)
		assert.Equal(t, time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC), src.got.From)
		assert.Equal(t, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), src.got.To)

		var res duplicates.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.SafeToRefund())
	})

	tests := []struct {
		name string
		core Core
		body DuplicatesRequest
		code int
	}{
		{"nothing to analyze", Core{}, DuplicatesRequest{}, http.StatusBadRequest},
		{"no booking source", Core{}, DuplicatesRequest{CustomerEmail: "a@b.c"}, http.StatusServiceUnavailable},
		{"bad date", Core{Bookings: &stubSource{}}, DuplicatesRequest{CustomerEmail: "a@b.c", From: "last week"}, http.StatusBadRequest},
		{"source error", Core{Bookings: &stubSource{err: errors.New("timeout")}}, DuplicatesRequest{CustomerEmail: "a@b.c"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupTestServer(t, tt.core), http.MethodPost, "/api/v1/duplicates", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestHandleGuard(t *testing.T) {
	verified := &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageUsed, MatchConfidence: guard.MatchExact}

	tests := []struct {
		name         string
		core         Core
		body         GuardRequest
		wantAutomate bool
		wantReason   string
	}{
		{
			name:         "verified booking",
			body:         GuardRequest{Verified: verified, ClaimContext: "never parked"},
			wantAutomate: true,
		},
		{
			name:       "no booking",
			body:       GuardRequest{ClaimContext: "never parked", FailureReason: "lookup failed"},
			wantReason: guard.ReasonNotVerified + " (lookup failed); customer claim: never parked",
		},
		{
			name:         "looked up through verifier",
			core:         Core{Verifier: stubVerifier{v: verified}},
			body:         GuardRequest{BookingID: "PW-1", ClaimedEventDate: "2025-11-25"},
			wantAutomate: true,
		},
		{
			name:       "verifier error leaves booking unverified",
			core:       Core{Verifier: stubVerifier{err: errors.New("503")}},
			body:       GuardRequest{BookingID: "PW-1"},
			wantReason: guard.ReasonNotVerified,
		},
		{
			name:       "weak match",
			body:       GuardRequest{Verified: &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageNotUsed, MatchConfidence: guard.MatchWeak}},
			wantReason: guard.ReasonWeakMatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupTestServer(t, tt.core), http.MethodPost, "/api/v1/guard", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp GuardResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantAutomate, resp.CanAutomate)
			assert.Equal(t, !tt.wantAutomate, resp.ShouldEscalate)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}
}

func TestHandleClassify(t *testing.T) {
	s := setupTestServer(t, Core{})

	rec := do(t, s, http.MethodPost, "/api/v1/reasons/classify",
		ClassifyRequest{Reasoning: "The lot was oversold and the customer was turned away.", Policy: "Oversold"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, reasons.Oversold, resp.CancellationReason)
	assert.True(t, resp.Valid)

	rec = do(t, s, http.MethodPost, "/api/v1/reasons/classify", ClassifyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExtract(t *testing.T) {
	s := setupTestServer(t, Core{})

	rec := do(t, s, http.MethodPost, "/api/v1/extract", ExtractRequest{
		Text: "Booking ID: PW-509266779\nEvent date: 2025-11-25\nAmount: $45.00\nLocation: Downtown Garage",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res extraction.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Found)
	assert.Equal(t, "PW-509266779", ticket.Value(res.Booking.BookingID))
	assert.Equal(t, "2025-11-25", ticket.Value(res.Booking.EventDate))

	rec = do(t, s, http.MethodPost, "/api/v1/extract", ExtractRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	s, err := NewServer(Core{Decider: triage.NewOrchestrator(nil, newEngine())}, zap.NewNop(), &Config{Host: "127.0.0.1", Port: 1, BodyLimit: "1K"})
	require.NoError(t, err)

	big := ExtractRequest{Text: string(bytes.Repeat([]byte("a"), 4096))}
	rec := do(t, s, http.MethodPost, "/api/v1/extract", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
