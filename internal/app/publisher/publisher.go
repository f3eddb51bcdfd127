// Package publisher emits the derived case events after a payment has been
// reconciled. Delivery is best-effort: failures are logged and counted, then
// dropped, because the reconciliation they describe is already committed.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/app/reconcile"
	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

// Sink hands an encoded event to a transport. key is the partitioning key
// (the case ID); transports without partitions may ignore it.
type Sink interface {
	Send(ctx context.Context, routingKey, key string, body []byte) error
}

// Config controls the envelope metadata.
type Config struct {
	Source  string        // Envelope source (default: "caseflow")
	Timeout time.Duration // Per-send deadline (default: 5s)
}

// DefaultConfig returns publisher defaults.
func DefaultConfig() Config {
	return Config{
		Source:  "caseflow",
		Timeout: 5 * time.Second,
	}
}

// Publisher builds event envelopes and sends them through a Sink.
type Publisher struct {
	sink   Sink
	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// New creates a publisher. A nil sink drops every event.
func New(cfg Config, sink Sink, logger *zap.Logger) *Publisher {
	if cfg.Source == "" {
		cfg.Source = "caseflow"
	}
	return &Publisher{
		sink:   sink,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: observability.OrNop(logger).Named("publisher"),
	}
}

// PublishBalanceUpdated emits case.balance.updated, correlated by payment ID.
func (p *Publisher) PublishBalanceUpdated(ctx context.Context, payload domain.BalanceUpdatedPayload) {
	p.publish(ctx, domain.EventCaseBalanceUpdated, payload.PaymentID, payload.CaseID, payload)
}

// PublishStatusChanged emits case.status.changed, correlated by case ID.
func (p *Publisher) PublishStatusChanged(ctx context.Context, payload domain.StatusChangedPayload) {
	p.publish(ctx, domain.EventCaseStatusChanged, payload.CaseID, payload.CaseID, payload)
}

// PublishReconciliation emits the events describing one applied payment:
// balance-updated always, status-changed only when the status moved.
// Duplicates describe nothing new and are skipped.
func (p *Publisher) PublishReconciliation(ctx context.Context, res *reconcile.Result, paymentID string, amount decimal.Decimal) {
	if res == nil || res.Case == nil || res.Duplicate {
		return
	}
	c := res.Case

	p.PublishBalanceUpdated(ctx, domain.BalanceUpdatedPayload{
		CaseID:          c.ID,
		PreviousBalance: res.PreviousBalance,
		NewBalance:      c.CurrentDebt,
		PaymentID:       paymentID,
		PaymentAmount:   amount,
		Currency:        c.Currency,
		CaseStatus:      c.Status,
	})

	if !res.StatusChanged() {
		return
	}
	reason := ""
	if n := len(res.Transitions); n > 0 {
		reason = res.Transitions[n-1].Reason
	}
	p.PublishStatusChanged(ctx, domain.StatusChangedPayload{
		CaseID:         c.ID,
		PreviousStatus: res.PreviousStatus,
		NewStatus:      c.Status,
		Reason:         reason,
	})
}

func (p *Publisher) publish(ctx context.Context, eventType, correlationID, key string, payload any) {
	env := domain.Envelope[any]{
		EventID:       p.newID(),
		EventType:     eventType,
		Timestamp:     p.now().UTC(),
		Version:       domain.EventVersion,
		Source:        p.cfg.Source,
		CorrelationID: correlationID,
		Payload:       payload,
	}

	if err := p.send(ctx, eventType, key, env); err != nil {
		observability.PublishFailures.WithLabelValues(eventType).Inc()
		p.logger.Warn("publish failed",
			zap.String("event_type", eventType),
			zap.String("event_id", env.EventID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return
	}

	observability.EventsPublished.WithLabelValues(eventType).Inc()
	p.logger.Debug("event published",
		zap.String("event_type", eventType),
		zap.String("event_id", env.EventID),
		zap.String("correlation_id", correlationID))
}

func (p *Publisher) send(ctx context.Context, routingKey, key string, env domain.Envelope[any]) (err error) {
	if p.sink == nil {
		return fmt.Errorf("%w: no sink configured", domain.ErrPublishFailed)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	// A panicking transport must not take the consumer loop down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sink panic: %v", domain.ErrPublishFailed, r)
		}
	}()

	if err := p.sink.Send(ctx, routingKey, key, body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublishFailed, err)
	}
	return nil
}
