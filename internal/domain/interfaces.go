package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// CaseStore holds the current state of every case.
type CaseStore interface {
	// Get returns a copy of the case, or ErrCaseNotFound.
	Get(ctx context.Context, caseID string) (*Case, error)

	// Put replaces the whole case. It is the atomic unit of visibility.
	Put(ctx context.Context, c *Case) error

	// List returns all cases ordered by ID.
	List(ctx context.Context) ([]Case, error)
}

// HistoryLog is the append-only audit trail of a case.
type HistoryLog interface {
	Append(ctx context.Context, caseID string, kind HistoryKind, description, actor string) error
	List(ctx context.Context, caseID string) ([]HistoryEntry, error)
}

// Ledger records which payments have already been applied.
type Ledger interface {
	Contains(ctx context.Context, key PaymentKey) (bool, error)
	Mark(ctx context.Context, key PaymentKey) error
	Len(ctx context.Context) (int, error)
}
