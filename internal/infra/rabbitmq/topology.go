// Package rabbitmq is the RabbitMQ transport: queue topology, the payment event
// subscriber and the sink for derived events.
package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/debtdesk/caseflow/internal/domain"
)

// Topology names every exchange and queue the pipeline uses.
type Topology struct {
	Exchange           string // Topic exchange for all case events
	DeadLetterExchange string
	Queue              string // Inbound payment.completed queue
	DeadLetterQueue    string
}

// DefaultTopology returns the production names.
func DefaultTopology() Topology {
	return Topology{
		Exchange:           "caseflow.events",
		DeadLetterExchange: "caseflow.events.dlx",
		Queue:              "caseflow.payment.completed",
		DeadLetterQueue:    "caseflow.payment.completed.dlq",
	}
}

// Declarer is the part of *amqp.Channel that declares topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates the exchanges, queues and bindings. Declaring is
// idempotent as long as the arguments match what the broker already has.
func (t Topology) Declare(ch Declarer) error {
	for _, ex := range []string{t.Exchange, t.DeadLetterExchange} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": domain.RoutingPaymentFailed,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, domain.EventPaymentCompleted, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.Queue, err)
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, domain.RoutingPaymentFailed, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.DeadLetterQueue, err)
	}
	return nil
}
