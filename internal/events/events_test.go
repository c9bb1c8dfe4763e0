package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

func approvedDecision() triage.FinalDecision {
	return triage.FinalDecision{
		Decision:           ticket.Approved,
		Reasoning:          "Cancelled 9 days before the event.",
		PolicyApplied:      "Pre-arrival",
		Confidence:         ticket.ConfidenceHigh,
		CancellationReason: ticket.Ptr(reasons.PreArrival),
		MethodUsed:         triage.MethodRules,
		ProcessingTimeMS:   12,
		RequestID:          "req-1",
	}
}

func TestNewDecisionEvent(t *testing.T) {
	at := time.Date(2025, 11, 15, 7, 0, 0, 0, time.FixedZone("PST", -8*3600))
	ev := NewDecisionEvent("48213", approvedDecision(), at)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "48213", ev.TicketID)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, "Approved", ev.Decision)
	assert.Equal(t, "rules", ev.MethodUsed)
	assert.Equal(t, "high", ev.Confidence)
	assert.Equal(t, reasons.PreArrival, *ev.CancellationReason)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.NotEqual(t, ev.ID, NewDecisionEvent("48213", approvedDecision(), at).ID)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Approved":           "approved",
		"Needs Human Review": "needs_human_review",
		"  Denied ":          "denied",
		"":                   "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, slug(in), in)
	}
}

func TestNew(t *testing.T) {
	p, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)

	p, err = New(Config{Sink: "None"}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)

	_, err = New(Config{Sink: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, ErrUnknownSink)

	_, err = New(Config{Sink: SinkKafka}, nil)
	assert.Error(t, err)

	p, err = New(Config{Sink: SinkKafka, KafkaBrokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	kp := p.(*KafkaPublisher)
	assert.Equal(t, DefaultTopic, kp.w.(*kafka.Writer).Topic)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	ev := NewDecisionEvent("48213", approvedDecision(), time.Now())
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("48213"), msg.Key)
	assert.JSONEq(t, string(mustJSON(t, ev)), string(msg.Value))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "decision", Value: []byte("approved")})

	w.err = errors.New("leader not available")
	assert.ErrorIs(t, p.Publish(context.Background(), ev), w.err)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, DecisionEvent) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestNotifier_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &failingPublisher{}
	n := NewNotifier(pub, zap.New(core))

	n.Notify(context.Background(), "48213", approvedDecision())

	assert.Equal(t, 1, pub.calls)
	entries := logs.FilterMessage("failed to publish decision event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "48213", entries[0].ContextMap()["ticket_id"])
}

func TestNotifier_IgnoresCancelledRequest(t *testing.T) {
	w := &fakeWriter{}
	n := NewNotifier(&KafkaPublisher{w: w}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "48213", approvedDecision())

	assert.Len(t, w.msgs, 1)
}

func TestNotifier_NilPublisher(t *testing.T) {
	n := NewNotifier(nil, nil)
	n.Notify(context.Background(), "1", approvedDecision())
	assert.NoError(t, n.Close())
}
