package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amounts travel as JSON numbers on the bus and in the API. This flips a
// process-wide decimal setting; see the package doc.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// ─── Event Types & Routing Keys ─────────────────────────────────────────────

const (
	EventPaymentCompleted   = "payment.completed"
	EventCaseBalanceUpdated = "case.balance.updated"
	EventCaseStatusChanged  = "case.status.changed"

	// RoutingPaymentFailed is the dead-letter routing key for payment events
	// that exhausted their retries.
	RoutingPaymentFailed = "payment.completed.failed"

	EventVersion = "1.0"
)

// Envelope is the common wrapper around every event on the bus.
type Envelope[T any] struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlationId"`
	Payload       T         `json:"payload"`
}

// PaymentCompletedPayload is reported by the payment system once a payment
// has cleared.
type PaymentCompletedPayload struct {
	ID          string          `json:"id"`
	CaseID      string          `json:"caseId"`
	DebtorID    string          `json:"debtorId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
}

// PaymentCompletedEvent is the inbound message consumed by the pipeline.
type PaymentCompletedEvent = Envelope[PaymentCompletedPayload]

// BalanceUpdatedPayload is emitted after every applied payment.
type BalanceUpdatedPayload struct {
	CaseID          string          `json:"caseId"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	PaymentID       string          `json:"paymentId"`
	PaymentAmount   decimal.Decimal `json:"paymentAmount"`
	Currency        string          `json:"currency"`
	CaseStatus      CaseStatus      `json:"caseStatus"`
}

// StatusChangedPayload is emitted when a payment moved a case to a new status.
type StatusChangedPayload struct {
	CaseID         string     `json:"caseId"`
	PreviousStatus CaseStatus `json:"previousStatus"`
	NewStatus      CaseStatus `json:"newStatus"`
	Reason         string     `json:"reason"`
}
