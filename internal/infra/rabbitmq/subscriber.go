package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/app/consumer"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

// RetryMode selects how a requeue request reaches the broker.
type RetryMode string

const (
	// RetryRepublish acks the message and republishes a copy to the tail of
	// the queue with x-retry-count incremented. The broker never dead-letters
	// a plain requeue, so this is what lets the death count grow.
	RetryRepublish RetryMode = "republish"

	// RetryRequeue uses basic.nack with requeue=true. The death count only
	// grows if some other policy dead-letters the message back into the queue.
	RetryRequeue RetryMode = "requeue"
)

// RetryCountHeader carries the republish count.
const RetryCountHeader = "x-retry-count"

// Channel is the part of *amqp.Channel the subscriber uses.
type Channel interface {
	Publisher
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// SubscriberConfig controls the subscription.
type SubscriberConfig struct {
	Queue       string
	ConsumerTag string    // default: "caseflow"
	Prefetch    int       // default: 1
	RetryMode   RetryMode // default: RetryRepublish

	// RepublishTimeout bounds the retry publish, so broker flow control
	// cannot stall the consumer loop (default: 5s).
	RepublishTimeout time.Duration
}

// DefaultSubscriberConfig returns subscriber defaults for the given queue.
func DefaultSubscriberConfig(queue string) SubscriberConfig {
	return SubscriberConfig{
		Queue:       queue,
		ConsumerTag: "caseflow",
		Prefetch:    1,
		RetryMode:   RetryRepublish,

		RepublishTimeout: 5 * time.Second,
	}
}

// Subscriber adapts an AMQP consumer to consumer.Delivery values.
type Subscriber struct {
	ch     Channel
	cfg    SubscriberConfig
	logger *zap.Logger

	stopOnce sync.Once
}

// NewSubscriber creates a subscriber on ch.
func NewSubscriber(ch Channel, cfg SubscriberConfig, logger *zap.Logger) *Subscriber {
	def := DefaultSubscriberConfig(cfg.Queue)
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = def.ConsumerTag
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.RetryMode == "" {
		cfg.RetryMode = def.RetryMode
	}
	if cfg.RepublishTimeout <= 0 {
		cfg.RepublishTimeout = def.RepublishTimeout
	}
	return &Subscriber{ch: ch, cfg: cfg, logger: observability.OrNop(logger).Named("amqp")}
}

// Deliveries starts consuming with manual acks. The returned channel closes
// when the broker channel closes, Stop is called, or ctx is cancelled.
func (s *Subscriber) Deliveries(ctx context.Context) (<-chan consumer.Delivery, error) {
	if err := s.ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch %d: %w", s.cfg.Prefetch, err)
	}
	raw, err := s.ch.Consume(s.cfg.Queue, s.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", s.cfg.Queue, err)
	}
	s.logger.Info("subscribed",
		zap.String("queue", s.cfg.Queue),
		zap.Int("prefetch", s.cfg.Prefetch),
		zap.String("retry_mode", string(s.cfg.RetryMode)))

	out := make(chan consumer.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- &delivery{raw: d, ack: d.Acknowledger, pub: s.ch, queue: s.cfg.Queue,
					mode: s.cfg.RetryMode, timeout: s.cfg.RepublishTimeout}:
				case <-ctx.Done():
					// Unhandled; the broker redelivers it once the channel closes.
					s.Stop()
					return
				}
			}
		}
	}()
	return out, nil
}

// Stop cancels the subscription. Deliveries already handed out can still be
// acked.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		if err := s.ch.Cancel(s.cfg.ConsumerTag, false); err != nil {
			s.logger.Warn("cancel consumer failed", zap.Error(err))
		}
	})
}

// ─── Delivery Adapter ───────────────────────────────────────────────────────

type delivery struct {
	raw     amqp.Delivery
	ack     amqp.Acknowledger
	pub     Publisher
	queue   string
	mode    RetryMode
	timeout time.Duration
}

func (d *delivery) Body() []byte { return d.raw.Body }

func (d *delivery) DeathCount() int { return DeathCount(d.raw.Headers) }

func (d *delivery) Ack() error { return d.ack.Ack(d.raw.DeliveryTag, false) }

func (d *delivery) Nack(requeue bool) error {
	if requeue && d.mode == RetryRepublish {
		if err := d.republish(); err == nil {
			return d.Ack()
		}
		// Fall back to a plain requeue rather than losing the message.
	}
	return d.ack.Nack(d.raw.DeliveryTag, false, requeue)
}

// republish sends a copy to the tail of the queue through the default
// exchange, with the retry count bumped.
func (d *delivery) republish() error {
	headers := amqp.Table{}
	for k, v := range d.raw.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = int32(headerInt(d.raw.Headers[RetryCountHeader]) + 1)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.pub.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		Headers:       headers,
		ContentType:   d.raw.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: d.raw.CorrelationId,
		MessageId:     d.raw.MessageId,
		Timestamp:     d.raw.Timestamp,
		AppId:         d.raw.AppId,
		Body:          d.raw.Body,
	})
}

// DeathCount is the number of failed deliveries recorded in headers: the sum
// of every x-death count plus the republish count.
func DeathCount(headers amqp.Table) int {
	total := headerInt(headers[RetryCountHeader])

	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return total
	}
	for _, entry := range deaths {
		t, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		total += headerInt(t["count"])
	}
	return total
}

func headerInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
