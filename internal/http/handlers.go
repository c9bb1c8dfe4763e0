package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/bookings"
	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/logging"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleDecide always answers 200 once the request is valid; collaborator
// failures are carried inside the decision.
func (s *Server) handleDecide(c echo.Context) error {
	var req triage.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid decision request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Ticket.TicketID = strings.TrimSpace(req.Ticket.TicketID)
	if req.Ticket.TicketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket.ticket_id is required")
	}

	ctx := logging.WithTicketID(c.Request().Context(), req.Ticket.TicketID)
	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
	fd := s.core.Decider.Decide(ctx, req)
	s.logger.Debug("decision served", append(logging.ContextFields(ctx),
		zap.String("decision", string(fd.Decision)),
		zap.String("method_used", string(fd.MethodUsed)))...)

	if s.core.Notifier != nil {
		s.core.Notifier.Notify(ctx, req.Ticket.TicketID, fd)
	}
	return c.JSON(http.StatusOK, fd)
}

func (s *Server) handleDuplicates(c echo.Context) error {
	var req DuplicatesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	candidates := req.Bookings
	if len(candidates) == 0 {
		email := strings.TrimSpace(req.CustomerEmail)
		if email == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "bookings or customer_email is required")
		}
		if s.core.Bookings == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "booking source not configured")
		}

		filter := bookings.ListFilter{Email: email}
		var err error
		if filter.From, err = optionalDate(req.From); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
		}
		if filter.To, err = optionalDate(req.To); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to: "+err.Error())
		}

		candidates, err = s.core.Bookings.ListBookings(c.Request().Context(), filter)
		if err != nil {
			s.logger.Warn("booking lookup failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "booking source unavailable")
		}
	}

	normalized := make([]duplicates.CandidateBooking, len(candidates))
	for i, b := range candidates {
		b.Status = strings.ToLower(strings.TrimSpace(b.Status))
		normalized[i] = b
	}
	return c.JSON(http.StatusOK, s.core.Duplicates.Analyze(normalized))
}

func (s *Server) handleGuard(c echo.Context) error {
	var req GuardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	verified := req.Verified
	if verified == nil && strings.TrimSpace(req.BookingID) != "" && s.core.Verifier != nil {
		v, err := s.core.Verifier.Verify(c.Request().Context(), req.BookingID, req.ClaimedEventDate)
		if err != nil {
			// An unreachable booking API leaves the booking unverified.
			s.logger.Warn("booking verification failed",
				zap.String("booking_id", req.BookingID),
				zap.Error(err),
			)
		}
		verified = v
	}

	escalate, reason := s.core.Guard.ShouldEscalate(verified, req.ClaimContext, req.FailureReason)
	return c.JSON(http.StatusOK, GuardResponse{
		CanAutomate:    s.core.Guard.CanAutomate(verified),
		ShouldEscalate: escalate,
		Reason:         reason,
		Verified:       verified,
	})
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Reasoning) == "" && strings.TrimSpace(req.Policy) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reasoning or policy is required")
	}

	code := s.core.Reasons.Classify(req.Reasoning, req.Policy)
	return c.JSON(http.StatusOK, ClassifyResponse{
		CancellationReason: code,
		Valid:              reasons.IsValid(code),
	})
}

func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	return c.JSON(http.StatusOK, s.core.Extractor.Extract(c.Request().Context(), req.Text))
}

func optionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return ticket.ParseDate(s)
}
