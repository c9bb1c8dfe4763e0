package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

type stubModel struct {
	out   ModelOutput
	err   error
	delay time.Duration
	calls int
}

func (s *stubModel) ExtractBooking(ctx context.Context, _ string) (ModelOutput, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ModelOutput{}, ctx.Err()
		}
	}
	return s.out, s.err
}

func TestStructuredExtractor_EmptyInput(t *testing.T) {
	model := &stubModel{}
	s := NewStructuredExtractor(model)

	for _, in := range []string{"", "   \n\t"} {
		res := s.Extract(context.Background(), in)
		assert.False(t, res.Found)
		assert.Equal(t, ticket.ConfidenceLow, res.Confidence)
		assert.Equal(t, MethodNone, res.Method)
	}
	assert.Zero(t, model.calls)
}

func TestStructuredExtractor_PatternSufficient(t *testing.T) {
	model := &stubModel{}
	s := NewStructuredExtractor(model)

	res := s.Extract(context.Background(), "Booking ID: PW-509266779, Amount: $45.00, Event Date: 2025-11-25, Location: Downtown Garage")
	assert.True(t, res.Found)
	assert.Equal(t, MethodPattern, res.Method)
	assert.Equal(t, ticket.ConfidenceMedium, res.Confidence)
	assert.Zero(t, model.calls, "model must not be called for a medium pattern result")
}

func TestStructuredExtractor_FallsBackToModel(t *testing.T) {
	model := &stubModel{out: ModelOutput{
		Found: true,
		Booking: ticket.BookingInfo{
			BookingID:     ticket.Ptr("PW-1"),
			EventDate:     ticket.Ptr("2025-12-01"),
			Amount:        ticket.Ptr(20.0),
			Location:      ticket.Ptr("Lot A"),
			CustomerEmail: ticket.Ptr("a@b.co"),
			BookingType:   ticket.Ptr(ticket.BookingConfirmed),
		},
		MultipleBookings: true,
	}}
	s := NewStructuredExtractor(model)

	res := s.Extract(context.Background(), "I want a refund for my parking last week")
	assert.Equal(t, 1, model.calls)
	assert.True(t, res.Found)
	assert.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, ticket.ConfidenceHigh, res.Confidence)
	assert.True(t, res.MultipleBookings)
	assert.Empty(t, res.Error)
}

func TestStructuredExtractor_LowPatternGoesToModel(t *testing.T) {
	model := &stubModel{out: ModelOutput{Found: false}}
	s := NewStructuredExtractor(model)

	// Booking id only: found but low.
	res := s.Extract(context.Background(), "refund PW-1234 please")
	assert.Equal(t, 1, model.calls)
	assert.False(t, res.Found)
	assert.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, ticket.ConfidenceLow, res.Confidence)
}

func TestStructuredExtractor_ModelFoundWithoutCriticalFields(t *testing.T) {
	model := &stubModel{out: ModelOutput{Found: true, Booking: ticket.BookingInfo{Location: ticket.Ptr("Lot A")}}}
	res := NewStructuredExtractor(model).Extract(context.Background(), "refund please")
	assert.False(t, res.Found)
}

func TestStructuredExtractor_ModelError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	model := &stubModel{err: errors.New("malformed JSON")}
	s := NewStructuredExtractor(model, WithLogger(zap.New(core)))

	res := s.Extract(context.Background(), "refund please")
	assert.False(t, res.Found)
	assert.Equal(t, ticket.ConfidenceLow, res.Confidence)
	assert.Equal(t, MethodLLM, res.Method)
	assert.Contains(t, res.Error, "malformed JSON")
	assert.Equal(t, 1, logs.FilterMessage("model extraction failed").Len())
}

func TestStructuredExtractor_ModelTimeout(t *testing.T) {
	model := &stubModel{delay: time.Second}
	s := NewStructuredExtractor(model, WithModelTimeout(20*time.Millisecond))

	start := time.Now()
	res := s.Extract(context.Background(), "refund please")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, res.Found)
	assert.Equal(t, MethodLLM, res.Method)
	assert.Contains(t, res.Error, "timed out")
}

func TestStructuredExtractor_NoModel(t *testing.T) {
	res := NewStructuredExtractor(nil).Extract(context.Background(), "refund please")
	require.False(t, res.Found)
	assert.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, ErrNoModel.Error(), res.Error)
}
