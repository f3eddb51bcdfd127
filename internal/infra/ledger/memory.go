package ledger

import (
	"context"

	"github.com/debtdesk/caseflow/internal/domain"
)

// Memory implements domain.Ledger in process memory.
type Memory struct {
	set *Set[domain.PaymentKey]
}

// NewMemory creates an in-memory payment ledger.
func NewMemory(cfg Config) *Memory {
	return &Memory{set: NewSet[domain.PaymentKey](cfg)}
}

// Contains reports whether the payment was already applied to the case.
func (m *Memory) Contains(_ context.Context, key domain.PaymentKey) (bool, error) {
	return m.set.Contains(key), nil
}

// Mark records the payment as applied.
func (m *Memory) Mark(_ context.Context, key domain.PaymentKey) error {
	m.set.Add(key)
	return nil
}

// Len returns the number of resident keys.
func (m *Memory) Len(context.Context) (int, error) {
	return m.set.Len(), nil
}

// Events remembers processed transport event IDs in process memory.
type Events struct {
	set *Set[string]
}

// NewEvents creates an in-memory event-id log.
func NewEvents(cfg Config) *Events {
	return &Events{set: NewSet[string](cfg)}
}

// Seen reports whether the event was already processed.
func (e *Events) Seen(_ context.Context, eventID string) (bool, error) {
	return e.set.Contains(eventID), nil
}

// Remember records the event as processed.
func (e *Events) Remember(_ context.Context, eventID string) error {
	e.set.Add(eventID)
	return nil
}
