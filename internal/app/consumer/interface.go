package consumer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/debtdesk/caseflow/internal/app/reconcile"
)

// Delivery is one inbound message as seen by the consumer. Transports adapt
// their native deliveries to it.
//
//go:generate mockgen -destination=mocks/mock_consumer.go -package=mocks -source=interface.go
type Delivery interface {
	Body() []byte

	// DeathCount is how many times the transport has already failed this
	// message, as recorded by its dead-letter accounting.
	DeathCount() int

	Ack() error
	Nack(requeue bool) error
}

// Reconciler applies a payment to a case exactly once.
type Reconciler interface {
	ApplyPayment(ctx context.Context, caseID, paymentID string, amount decimal.Decimal) (*reconcile.Result, error)
}

// Notifier emits the derived events for a reconciliation. It never fails.
type Notifier interface {
	PublishReconciliation(ctx context.Context, res *reconcile.Result, paymentID string, amount decimal.Decimal)
}

// EventLog remembers event IDs that were fully processed.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}
