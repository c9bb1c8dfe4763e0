package bookings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/guard"
)

type fakeAPI struct {
	*httptest.Server
	tokenCalls atomic.Int32
	lastQuery  atomic.Value
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		id, secret, ok := r.BasicAuth()
		if !ok || id != "refundd" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/v1/bookings", auth(func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery.Store(r.URL.Query())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bookings": []map[string]any{
				{
					"id": "B1", "start_time": "2025-11-25T18:00:00Z", "end_time": "2025-11-25T23:00:00Z",
					"location": map[string]any{"id": "L9", "name": "Downtown Garage"}, "status": "Completed", "price_paid": 25.0,
				},
				{
					"id": "B2", "start_time": "2025-11-25T18:30:00Z", "end_time": "2025-11-25T23:00:00Z",
					"location": map[string]any{"id": "L9", "name": "Downtown Garage"}, "status": "confirmed", "price_paid": 25.0,
				},
			},
		})
	}))

	mux.HandleFunc("/v1/bookings/", auth(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/bookings/PW-1":
			_, _ = w.Write([]byte(`{"id":"PW-1","start_time":"2025-11-25T18:00:00Z","end_time":"2025-11-25T23:00:00Z","location":{"id":"L9"},"status":"checked_in"}`))
		case "/v1/bookings/PW-2":
			_, _ = w.Write([]byte(`{"id":"PW-2","start_time":"2025-11-25T18:00:00Z","status":"mystery"}`))
		case "/v1/bookings/PW-500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		BaseURL:      f.URL + "/",
		TokenURL:     f.URL + "/oauth/token",
		ClientID:     "refundd",
		ClientSecret: "s3cret",
		Scopes:       []string{"bookings:read"},
		Timeout:      2 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{BaseURL: "http://localhost", TokenURL: "http://localhost/token"}, nil)
	assert.Error(t, err)

	c, err := New(context.Background(), Config{BaseURL: "http://localhost:9999"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestClient_ListBookings(t *testing.T) {
	f := newFakeAPI(t)
	c := newTestClient(t, f)

	from := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	got, err := c.ListBookings(context.Background(), ListFilter{
		Email: " Jane@Example.com ",
		From:  from,
		To:    from.AddDate(0, 0, 10),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B1", got[0].ID)
	assert.Equal(t, "completed", got[0].Status)
	assert.Equal(t, duplicates.Location{ID: "L9", Name: "Downtown Garage"}, got[0].Location)
	assert.Equal(t, 5*time.Hour, got[0].Duration())

	q := f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"jane@example.com"}, q["customer_email"])
	assert.Equal(t, []string{"2025-11-20T00:00:00Z"}, q["from"])

	// the token is cached across calls
	_, err = c.ListBookings(context.Background(), ListFilter{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	res := duplicates.NewResolver(nil).Analyze(got)
	assert.Equal(t, duplicates.ActionRefundDuplicate, res.Action)
	assert.Equal(t, "B2", res.UnusedBookingID)
}

func TestClient_ListBookingsRequiresEmail(t *testing.T) {
	c := newTestClient(t, newFakeAPI(t))
	_, err := c.ListBookings(context.Background(), ListFilter{})
	assert.Error(t, err)
}

func TestClient_Verify(t *testing.T) {
	c := newTestClient(t, newFakeAPI(t))

	tests := []struct {
		name    string
		id      string
		claimed string
		want    *guard.VerifiedBooking
		wantErr error
	}{
		{"exact", "PW-1", "2025-11-25", &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageUsed, MatchConfidence: guard.MatchExact}, nil},
		{"partial", "PW-1", "2025-11-26", &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageUsed, MatchConfidence: guard.MatchPartial}, nil},
		{"weak", "PW-1", "2025-12-25", &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageUsed, MatchConfidence: guard.MatchWeak}, nil},
		{"unparseable claim", "PW-1", "soon", &guard.VerifiedBooking{BookingID: "PW-1", PassUsageStatus: guard.UsageUsed, MatchConfidence: guard.MatchWeak}, nil},
		{"unknown status", "PW-2", "2025-11-25", &guard.VerifiedBooking{BookingID: "PW-2", PassUsageStatus: guard.UsageUnknown, MatchConfidence: guard.MatchExact}, nil},
		{"not found", "PW-404", "2025-11-25", nil, nil},
		{"blank id", "  ", "2025-11-25", nil, nil},
		{"server error", "PW-500", "2025-11-25", nil, ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Verify(context.Background(), tt.id, tt.claimed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_VerifiedBookingDrivesGuard(t *testing.T) {
	c := newTestClient(t, newFakeAPI(t))
	g := guard.New()

	v, err := c.Verify(context.Background(), "PW-404", "2025-11-25")
	require.NoError(t, err)
	escalate, reason := g.ShouldEscalate(v, "customer says they never parked", "")
	assert.True(t, escalate)
	assert.Contains(t, reason, guard.ReasonNotVerified)

	v, err = c.Verify(context.Background(), "PW-1", "2025-11-25")
	require.NoError(t, err)
	assert.True(t, g.CanAutomate(v))
}

func TestClient_BadCredentials(t *testing.T) {
	f := newFakeAPI(t)
	c, err := New(context.Background(), Config{
		BaseURL:      f.URL,
		TokenURL:     f.URL + "/oauth/token",
		ClientID:     "refundd",
		ClientSecret: "wrong",
	}, nil)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), "PW-1", "2025-11-25")
	assert.Error(t, err)
}
