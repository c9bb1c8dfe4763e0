package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "iso date", in: "2025-11-25", want: "2025-11-25"},
		{name: "rfc3339 takes utc calendar date", in: "2025-11-25T23:30:00-05:00", want: "2025-11-26"},
		{name: "rfc3339 positive offset", in: "2025-11-25T01:00:00+03:00", want: "2025-11-24"},
		{name: "rfc3339 utc", in: "2025-11-25T23:30:00Z", want: "2025-11-25"},
		{name: "naive datetime", in: "2025-11-25T08:00:00", want: "2025-11-25"},
		{name: "space separated", in: "2025-11-25 08:00", want: "2025-11-25"},
		{name: "surrounding whitespace", in: "  2025-01-02 ", want: "2025-01-02"},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "next tuesday", wantErr: true},
		{name: "impossible date", in: "2025-02-30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestDaysBetween(t *testing.T) {
	event := time.Date(2025, 11, 25, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 10, DaysBetween(time.Date(2025, 11, 15, 23, 59, 0, 0, time.UTC), event))
	assert.Equal(t, 0, DaysBetween(time.Date(2025, 11, 25, 18, 0, 0, 0, time.UTC), event))
	assert.Equal(t, -1, DaysBetween(time.Date(2025, 11, 26, 1, 0, 0, 0, time.UTC), event))

	// 21:00 on the 18th in New York is already the 19th in UTC.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, 6, DaysBetween(time.Date(2025, 11, 18, 21, 0, 0, 0, est), event))
	assert.Equal(t, 7, DaysBetween(time.Date(2025, 11, 18, 18, 0, 0, 0, est), event))
}

func TestConfidenceDowngrade(t *testing.T) {
	assert.Equal(t, ConfidenceMedium, ConfidenceHigh.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceMedium.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceLow.Downgrade())
}

func TestParseConfidence(t *testing.T) {
	c, ok := ParseConfidence(" HIGH ")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceHigh, c)

	_, ok = ParseConfidence("certain")
	assert.False(t, ok)
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{
		"Approved":           Approved,
		"denied":             Denied,
		"Needs Human Review": NeedsHumanReview,
	} {
		got, ok := ParseDecision(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}

	_, ok := ParseDecision("Uncertain")
	assert.False(t, ok, "uncertain must never be accepted from a model")
	_, ok = ParseDecision("maybe")
	assert.False(t, ok)
}

func TestBookingInfoCounts(t *testing.T) {
	b := BookingInfo{
		BookingID: Ptr("PW-1"),
		EventDate: Ptr(""),
		Amount:    Ptr(45.0),
		Location:  Ptr("Downtown Garage"),
	}
	assert.Equal(t, 1, b.CriticalCount(), "empty event date is not counted")
	assert.Equal(t, 2, b.OptionalCount())
	assert.Equal(t, BookingUnknown, b.Type())
}

func TestParseBookingType(t *testing.T) {
	assert.Equal(t, BookingOnDemand, ParseBookingType("on_demand"))
	assert.Equal(t, BookingConfirmed, ParseBookingType("Confirmed"))
	assert.Equal(t, BookingThirdParty, ParseBookingType("third party"))
	assert.Equal(t, BookingUnknown, ParseBookingType("monthly"))
}

func TestContextText(t *testing.T) {
	c := Context{Subject: "Refund", Description: "Facility CLOSED", Notes: "  "}
	assert.Equal(t, "refund\nfacility closed", c.Text())
	assert.Equal(t, "refund\nfacility closed", c.Headline())
}
