package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes events to <prefix>.<decision>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSPublisher publishes over an existing connection. Close does not
// close nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// DialNATS connects to url and returns a publisher that owns the
// connection.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("refundd"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// Subject returns the subject an event is published to.
func (p *NATSPublisher) Subject(ev DecisionEvent) string {
	return p.prefix + "." + slug(ev.Decision)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev DecisionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(ev))
	msg.Data = data
	msg.Header.Set("Refundd-Event-Id", ev.ID)
	msg.Header.Set("Refundd-Ticket-Id", ev.TicketID)
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish decision event: %w", err)
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

var _ Publisher = (*NATSPublisher)(nil)
