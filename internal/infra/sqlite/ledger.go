package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/ledger"
)

// Key namespaces sharing the idempotency_keys table.
const (
	NamespacePayments = "payment"
	NamespaceEvents   = "event"
)

// Ledger is a durable bounded key set with the same oldest-first eviction
// as the in-memory ledger. It serves both as the payment ledger and as the
// consumer's event log, one namespace each.
type Ledger struct {
	db        *DB
	namespace string
	cfg       ledger.Config
	now       func() time.Time
}

// Ledger returns the key set for namespace.
func (db *DB) Ledger(namespace string, cfg ledger.Config) *Ledger {
	return &Ledger{db: db, namespace: namespace, cfg: cfg.Normalized(), now: time.Now}
}

// Contains reports whether the payment was already applied.
func (l *Ledger) Contains(ctx context.Context, key domain.PaymentKey) (bool, error) {
	return l.has(ctx, key.Encode())
}

// Mark records the payment as applied.
func (l *Ledger) Mark(ctx context.Context, key domain.PaymentKey) error {
	return l.add(ctx, key.Encode())
}

// Len returns the number of resident keys.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	var n int
	err := l.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idempotency_keys WHERE namespace = ?`, l.namespace).Scan(&n)
	return n, err
}

// Seen reports whether the event was already processed.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	return l.has(ctx, eventID)
}

// Remember records the event as processed.
func (l *Ledger) Remember(ctx context.Context, eventID string) error {
	return l.add(ctx, eventID)
}

func (l *Ledger) has(ctx context.Context, key string) (bool, error) {
	var n int
	err := l.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idempotency_keys WHERE namespace = ? AND key = ?`, l.namespace, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s key: %w", l.namespace, err)
	}
	return n > 0, nil
}

// add inserts key and, once the namespace exceeds MaxEntries, deletes the
// EvictCount oldest keys in the same transaction.
func (l *Ledger) add(ctx context.Context, key string) error {
	tx, err := l.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO idempotency_keys (namespace, key, created_at)
		VALUES (?, ?, ?)
	`, l.namespace, key, formatTime(l.now()))
	if err != nil {
		return fmt.Errorf("insert %s key: %w", l.namespace, err)
	}
	if added, _ := res.RowsAffected(); added == 0 {
		return tx.Commit()
	}

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idempotency_keys WHERE namespace = ?`, l.namespace).Scan(&n); err != nil {
		return fmt.Errorf("count %s keys: %w", l.namespace, err)
	}
	if n > l.cfg.MaxEntries {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM idempotency_keys WHERE seq IN (
				SELECT seq FROM idempotency_keys WHERE namespace = ?
				ORDER BY seq LIMIT ?
			)
		`, l.namespace, l.cfg.EvictCount); err != nil {
			return fmt.Errorf("evict %s keys: %w", l.namespace, err)
		}
	}
	return tx.Commit()
}
