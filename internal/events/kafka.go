package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by ticket id, so all
// decisions for one ticket land on the same partition.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher creates a publisher for brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev DecisionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.TicketID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "decision", Value: []byte(slug(ev.Decision))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write decision event: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
