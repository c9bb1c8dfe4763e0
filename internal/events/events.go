// Package events publishes refund decisions to a message broker so that
// downstream systems (payments, reporting) can react without polling.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// Sink names accepted in configuration.
const (
	SinkNone  = "none"
	SinkNATS  = "nats"
	SinkKafka = "kafka"
)

// Defaults for subject and topic names.
const (
	DefaultSubjectPrefix = "refundd.decisions"
	DefaultTopic         = "refund-decisions"
)

// ErrUnknownSink is returned by New for an unrecognized sink.
var ErrUnknownSink = errors.New("unknown event sink")

// DecisionEvent is the message published after each decision.
type DecisionEvent struct {
	ID                 string    `json:"id"`
	TicketID           string    `json:"ticket_id"`
	RequestID          string    `json:"request_id,omitempty"`
	Decision           string    `json:"decision"`
	MethodUsed         string    `json:"method_used"`
	Confidence         string    `json:"confidence"`
	PolicyApplied      string    `json:"policy_applied"`
	CancellationReason *string   `json:"cancellation_reason"`
	ProcessingTimeMS   int64     `json:"processing_time_ms"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// NewDecisionEvent builds the event for fd.
func NewDecisionEvent(ticketID string, fd triage.FinalDecision, at time.Time) DecisionEvent {
	return DecisionEvent{
		ID:                 uuid.NewString(),
		TicketID:           ticketID,
		RequestID:          fd.RequestID,
		Decision:           string(fd.Decision),
		MethodUsed:         string(fd.MethodUsed),
		Confidence:         string(fd.Confidence),
		PolicyApplied:      fd.PolicyApplied,
		CancellationReason: fd.CancellationReason,
		ProcessingTimeMS:   fd.ProcessingTimeMS,
		OccurredAt:         at.UTC(),
	}
}

// slug turns a decision into a subject token: "Needs Human Review" becomes
// "needs_human_review".
func slug(decision string) string {
	s := strings.ToLower(strings.TrimSpace(decision))
	if s == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(s), "_")
}

// Publisher delivers decision events.
type Publisher interface {
	Publish(ctx context.Context, ev DecisionEvent) error
	Close() error
}

// Config selects and configures the sink.
type Config struct {
	Sink          string
	NATSURL       string
	SubjectPrefix string
	KafkaBrokers  []string
	Topic         string
}

// New creates the Publisher for cfg.Sink. An empty sink means none.
func New(cfg Config, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", SinkNone:
		return Noop{}, nil
	case SinkNATS:
		return DialNATS(cfg.NATSURL, cfg.SubjectPrefix, logger)
	case SinkKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Sink)
	}
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, DecisionEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// Notifier publishes decisions on behalf of request handlers. Failures are
// logged and swallowed; a decision is never affected by its event.
type Notifier struct {
	pub     Publisher
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewNotifier wraps pub. A nil pub discards events.
func NewNotifier(pub Publisher, logger *zap.Logger) *Notifier {
	if pub == nil {
		pub = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, logger: logger, timeout: 5 * time.Second, now: time.Now}
}

// Notify publishes the event for fd.
func (n *Notifier) Notify(ctx context.Context, ticketID string, fd triage.FinalDecision) {
	ev := NewDecisionEvent(ticketID, fd, n.now())

	// Publishing must not be cancelled by the caller's request ending.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.pub.Publish(ctx, ev); err != nil {
		n.logger.Warn("failed to publish decision event",
			zap.String("ticket_id", ticketID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("published decision event",
		zap.String("ticket_id", ticketID),
		zap.String("event_id", ev.ID),
	)
}

// Close closes the underlying publisher.
func (n *Notifier) Close() error {
	return n.pub.Close()
}
