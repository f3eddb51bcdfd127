// Package consumer runs the payment-completed pipeline.
//
// Per delivery:
//  1. Decode and validate the event
//  2. Ack and skip if the event ID was already processed
//  3. Apply the payment through the reconciler
//  4. Remember the event ID, then ack
//  5. Publish the derived events (best-effort)
//
// Any failure in steps 1-3 is retried through the transport while the
// message's death count is below MaxRetries, then dead-lettered.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

// Outcome is the final disposition of one delivery.
type Outcome string

const (
	Processed    Outcome = "processed"
	Duplicate    Outcome = "duplicate"
	Retried      Outcome = "retried"
	DeadLettered Outcome = "dead_lettered"
)

// Config controls consumer behavior.
type Config struct {
	MaxRetries int // Death count at which a failing message is dead-lettered (default: 3)
}

// DefaultConfig returns consumer defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3}
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Processed    int64 `json:"processed"`
	Duplicates   int64 `json:"duplicates"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"deadLettered"`
	AckFailures  int64 `json:"ackFailures"`
}

// Consumer handles payment-completed deliveries one at a time.
type Consumer struct {
	cfg      Config
	engine   Reconciler
	notifier Notifier
	events   EventLog
	logger   *zap.Logger

	processed    atomic.Int64
	duplicates   atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	ackFailures  atomic.Int64
}

// New creates a consumer. notifier may be nil when nothing listens downstream.
func New(cfg Config, engine Reconciler, notifier Notifier, events EventLog, logger *zap.Logger) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Consumer{
		cfg:      cfg,
		engine:   engine,
		notifier: notifier,
		events:   events,
		logger:   observability.OrNop(logger).Named("consumer"),
	}
}

// Run handles deliveries sequentially until the channel closes or ctx is
// cancelled. A delivery already being handled runs to completion first.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan Delivery) error {
	c.logger.Info("consumer started", zap.Int("max_retries", c.cfg.MaxRetries))
	defer c.logger.Info("consumer stopped", zap.Any("stats", c.Stats()))

	// In-flight work is never aborted by shutdown.
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.Handle(work, d)
		}
	}
}

// Handle processes one delivery and settles it with the transport.
func (c *Consumer) Handle(ctx context.Context, d Delivery) Outcome {
	start := time.Now()
	outcome := c.handle(ctx, d)
	observability.HandleDuration.Observe(time.Since(start).Seconds())
	observability.MessagesHandled.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (c *Consumer) handle(ctx context.Context, d Delivery) Outcome {
	evt, err := decode(d.Body())
	if err != nil {
		return c.fail(d, "", err)
	}
	log := c.logger.With(
		zap.String("event_id", evt.EventID),
		zap.String("case_id", evt.Payload.CaseID),
		zap.String("payment_id", evt.Payload.ID))

	seen, err := c.events.Seen(ctx, evt.EventID)
	if err != nil {
		return c.fail(d, evt.EventID, fmt.Errorf("check event log: %w", err))
	}
	if seen {
		observability.DuplicatesSuppressed.WithLabelValues("event").Inc()
		log.Info("duplicate event skipped")
		c.ack(d, log)
		c.duplicates.Add(1)
		return Duplicate
	}

	p := evt.Payload
	res, err := c.engine.ApplyPayment(ctx, p.CaseID, p.ID, p.Amount)
	if err != nil {
		return c.fail(d, evt.EventID, err)
	}

	// A failed Remember only weakens the event-level check; the payment
	// ledger still suppresses a second application.
	if err := c.events.Remember(ctx, evt.EventID); err != nil {
		log.Warn("remember event failed", zap.Error(err))
	}
	c.ack(d, log)

	if c.notifier != nil {
		c.notifier.PublishReconciliation(ctx, res, p.ID, p.Amount)
	}

	if res.Duplicate {
		c.duplicates.Add(1)
		return Duplicate
	}
	c.processed.Add(1)
	log.Info("payment event processed",
		zap.String("status", string(res.Case.Status)),
		zap.String("balance", res.Case.CurrentDebt.String()))
	return Processed
}

// fail requeues the delivery while it has retries left, else dead-letters it.
func (c *Consumer) fail(d Delivery, eventID string, cause error) Outcome {
	deaths := d.DeathCount()
	log := c.logger.With(zap.String("event_id", eventID), zap.Int("death_count", deaths), zap.Error(cause))

	if deaths < c.cfg.MaxRetries {
		log.Warn("payment event failed; requeueing")
		if err := d.Nack(true); err != nil {
			c.ackFailures.Add(1)
			log.Error("nack failed", zap.NamedError("nack_error", err))
		}
		c.retried.Add(1)
		return Retried
	}

	log.Error("payment event failed; dead-lettering", zap.Int("max_retries", c.cfg.MaxRetries))
	if err := d.Nack(false); err != nil {
		c.ackFailures.Add(1)
		log.Error("nack failed", zap.NamedError("nack_error", err))
	}
	c.deadLettered.Add(1)
	return DeadLettered
}

func (c *Consumer) ack(d Delivery, log *zap.Logger) {
	// An unacked message is redelivered and then suppressed as a duplicate.
	if err := d.Ack(); err != nil {
		c.ackFailures.Add(1)
		log.Error("ack failed", zap.Error(err))
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:    c.processed.Load(),
		Duplicates:   c.duplicates.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		AckFailures:  c.ackFailures.Load(),
	}
}

// decode parses and validates a payment-completed event.
func decode(body []byte) (*domain.PaymentCompletedEvent, error) {
	var evt domain.PaymentCompletedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	switch {
	case evt.EventID == "":
		return nil, fmt.Errorf("%w: missing eventId", domain.ErrInvalidEvent)
	case evt.EventType != "" && evt.EventType != domain.EventPaymentCompleted:
		return nil, fmt.Errorf("%w: unexpected eventType %q", domain.ErrInvalidEvent, evt.EventType)
	case evt.Payload.ID == "":
		return nil, fmt.Errorf("%w: missing payload.id", domain.ErrInvalidEvent)
	case evt.Payload.CaseID == "":
		return nil, fmt.Errorf("%w: missing payload.caseId", domain.ErrInvalidEvent)
	case evt.Payload.Amount.IsNegative():
		return nil, fmt.Errorf("%w: negative amount %s", domain.ErrInvalidAmount, evt.Payload.Amount)
	}
	return &evt, nil
}
