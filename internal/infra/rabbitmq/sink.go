package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel that publishes.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Sink publishes derived events to the topic exchange.
type Sink struct {
	ch       Publisher
	exchange string
	appID    string
	now      func() time.Time
}

// NewSink creates a sink publishing to exchange.
func NewSink(ch Publisher, exchange, appID string) *Sink {
	return &Sink{ch: ch, exchange: exchange, appID: appID, now: time.Now}
}

// Send publishes body as a persistent JSON message. key is unused: routing
// on a topic exchange is by routing key alone.
func (s *Sink) Send(ctx context.Context, routingKey, _ string, body []byte) error {
	err := s.ch.PublishWithContext(ctx, s.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    s.now().UTC(),
		AppId:        s.appID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", routingKey, s.exchange, err)
	}
	return nil
}
