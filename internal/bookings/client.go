// Package bookings is the HTTP client for the booking API. It supplies
// candidate bookings for duplicate resolution and verified bookings for
// the decision guard.
package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fyrsmithlabs/refundd/internal/config"
	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// DefaultTimeout bounds a single booking API request.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes bounds response bodies read from the booking API.
const maxBodyBytes = 4 << 20

var (
	// ErrNotConfigured is returned by New when no base URL is set.
	ErrNotConfigured = errors.New("booking API not configured")

	// ErrUnexpectedStatus wraps non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected booking API status")
)

// Config holds booking API settings.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret config.Secret
	Scopes       []string
	Timeout      time.Duration
}

// Client talks to the booking API using OAuth2 client credentials. Tokens
// are cached and refreshed by the oauth2 transport.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// New creates a Client. When TokenURL is empty requests are sent
// unauthenticated, which is only useful against local fakes.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid booking API base URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var hc *http.Client
	if cfg.TokenURL != "" {
		if cfg.ClientID == "" || !cfg.ClientSecret.IsSet() {
			return nil, fmt.Errorf("booking API client credentials not set")
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		// The token fetch uses the same timeout as API calls.
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
		hc = cc.Client(tokenCtx)
		hc.Timeout = timeout
	} else {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{http: hc, baseURL: base, logger: logger}, nil
}

// ListFilter narrows ListBookings to one customer and date window.
type ListFilter struct {
	Email string
	From  time.Time
	To    time.Time
}

type bookingRecord struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"location"`
	Status    string  `json:"status"`
	PricePaid float64 `json:"price_paid"`
}

func (r bookingRecord) candidate() duplicates.CandidateBooking {
	return duplicates.CandidateBooking{
		ID:        r.ID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Location:  duplicates.Location{ID: r.Location.ID, Name: r.Location.Name},
		Status:    strings.ToLower(strings.TrimSpace(r.Status)),
		PricePaid: r.PricePaid,
	}
}

// ListBookings returns a customer's bookings overlapping the filter window.
func (c *Client) ListBookings(ctx context.Context, f ListFilter) ([]duplicates.CandidateBooking, error) {
	if strings.TrimSpace(f.Email) == "" {
		return nil, fmt.Errorf("customer email required")
	}
	q := url.Values{}
	q.Set("customer_email", strings.ToLower(strings.TrimSpace(f.Email)))
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}

	var body struct {
		Bookings []bookingRecord `json:"bookings"`
	}
	found, err := c.get(ctx, "/v1/bookings?"+q.Encode(), &body)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	out := make([]duplicates.CandidateBooking, 0, len(body.Bookings))
	for _, r := range body.Bookings {
		out = append(out, r.candidate())
	}
	c.logger.Debug("listed bookings", zap.Int("count", len(out)))
	return out, nil
}

// Verify looks a booking up and grades it against the customer's claimed
// event date. A booking the API does not know returns nil, nil.
func (c *Client) Verify(ctx context.Context, bookingID, claimedEventDate string) (*guard.VerifiedBooking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, nil
	}

	var r bookingRecord
	found, err := c.get(ctx, "/v1/bookings/"+url.PathEscape(bookingID), &r)
	if err != nil || !found {
		return nil, err
	}

	return &guard.VerifiedBooking{
		BookingID:       r.ID,
		PassUsageStatus: usageFromStatus(r.Status),
		MatchConfidence: matchDates(r.StartTime, claimedEventDate),
	}, nil
}

func usageFromStatus(status string) guard.UsageStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "checked_in", "checked_out":
		return guard.UsageUsed
	case "confirmed", "pending", "reserved":
		return guard.UsageNotUsed
	default:
		return guard.UsageUnknown
	}
}

// matchDates grades a booking start against a claimed event date: same
// calendar day is exact, one day off is partial, anything else is weak.
func matchDates(start time.Time, claimed string) guard.MatchConfidence {
	if start.IsZero() {
		return guard.MatchWeak
	}
	d, err := ticket.ParseDate(claimed)
	if err != nil {
		return guard.MatchWeak
	}
	switch diff := ticket.DaysBetween(start.UTC(), d); {
	case diff == 0:
		return guard.MatchExact
	case diff == 1 || diff == -1:
		return guard.MatchPartial
	default:
		return guard.MatchWeak
	}
}

// get decodes a JSON response into v. found is false on 404.
func (c *Client) get(ctx context.Context, path string, v any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build booking request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("booking API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("read booking response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Warn("booking API error",
			zap.Int("status", resp.StatusCode),
			zap.String("path", req.URL.Path),
		)
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode booking response: %w", err)
	}
	return true, nil
}
