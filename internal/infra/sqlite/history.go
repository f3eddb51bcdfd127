package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/debtdesk/caseflow/internal/domain"
)

// HistoryLog implements domain.HistoryLog on SQLite.
type HistoryLog struct {
	db  *DB
	now func() time.Time
}

// History returns the history log backed by this database.
func (db *DB) History() *HistoryLog {
	return &HistoryLog{db: db, now: time.Now}
}

// Append adds an entry to the case's trail. Entries are numbered per case
// so that List returns them in append order even within one clock tick.
func (h *HistoryLog) Append(ctx context.Context, caseID string, kind domain.HistoryKind, description, actor string) error {
	_, err := h.db.db.ExecContext(ctx, `
		INSERT INTO case_history (id, seq, case_id, kind, description, actor, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?
		FROM case_history WHERE case_id = ?
	`, uuid.NewString(), caseID, string(kind), description, actor, formatTime(h.now()), caseID)
	if err != nil {
		return fmt.Errorf("append history %s: %w", caseID, err)
	}
	return nil
}

// List returns the case's entries oldest first.
func (h *HistoryLog) List(ctx context.Context, caseID string) ([]domain.HistoryEntry, error) {
	rows, err := h.db.db.QueryContext(ctx, `
		SELECT id, case_id, kind, description, actor, created_at
		FROM case_history WHERE case_id = ? ORDER BY seq
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &e.CaseID, &kind, &e.Description, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = domain.HistoryKind(kind)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
