// Package kafka is an alternate sink for derived case events. Each event
// type goes to the topic named after its routing key, keyed by case ID so
// events for one case stay ordered within a partition.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config controls the Kafka writer.
type Config struct {
	Brokers      []string
	TopicPrefix  string        // Prepended to the routing key (default: "")
	BatchTimeout time.Duration // default: 10ms; derived events are sent one at a time
}

// DefaultConfig returns writer defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		BatchTimeout: 10 * time.Millisecond,
	}
}

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes derived events to Kafka.
type Sink struct {
	w      MessageWriter
	prefix string
}

// NewWriter builds a writer that routes by message topic and hashes keys to
// partitions.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewSink creates a sink over w.
func NewSink(w MessageWriter, topicPrefix string) *Sink {
	return &Sink{w: w, prefix: topicPrefix}
}

// Send writes one message to the topic for routingKey.
func (s *Sink) Send(ctx context.Context, routingKey, key string, body []byte) error {
	msg := kafka.Message{
		Topic: s.prefix + routingKey,
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.w.Close()
}
