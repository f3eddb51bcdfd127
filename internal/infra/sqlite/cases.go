package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/debtdesk/caseflow/internal/domain"
)

// CaseStore implements domain.CaseStore on SQLite.
type CaseStore struct {
	db *DB
}

// Cases returns the case store backed by this database.
func (db *DB) Cases() *CaseStore {
	return &CaseStore{db: db}
}

const caseColumns = `id, debtor_id, creditor_id, original_debt, current_debt, paid_amount,
	interest_accrued, currency, status, priority, assigned_agent, assigned_team,
	created_at, updated_at, last_contact_at, last_payment_at, next_action_at, closed_at,
	source_portfolio, external_reference, tags, notes`

// Get loads a case by ID.
func (s *CaseStore) Get(ctx context.Context, caseID string) (*domain.Case, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCaseNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", caseID, err)
	}
	return c, nil
}

// Put upserts the whole case in one statement.
func (s *CaseStore) Put(ctx context.Context, c *domain.Case) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put case: missing id")
	}
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if c.Tags == nil {
		tags = []byte("[]")
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			debtor_id          = excluded.debtor_id,
			creditor_id        = excluded.creditor_id,
			original_debt      = excluded.original_debt,
			current_debt       = excluded.current_debt,
			paid_amount        = excluded.paid_amount,
			interest_accrued   = excluded.interest_accrued,
			currency           = excluded.currency,
			status             = excluded.status,
			priority           = excluded.priority,
			assigned_agent     = excluded.assigned_agent,
			assigned_team      = excluded.assigned_team,
			created_at         = excluded.created_at,
			updated_at         = excluded.updated_at,
			last_contact_at    = excluded.last_contact_at,
			last_payment_at    = excluded.last_payment_at,
			next_action_at     = excluded.next_action_at,
			closed_at          = excluded.closed_at,
			source_portfolio   = excluded.source_portfolio,
			external_reference = excluded.external_reference,
			tags               = excluded.tags,
			notes              = excluded.notes
	`,
		c.ID, c.DebtorID, c.CreditorID,
		c.OriginalDebt.String(), c.CurrentDebt.String(), c.PaidAmount.String(), c.InterestAccrued.String(),
		c.Currency, string(c.Status), string(c.Priority), c.AssignedAgent, c.AssignedTeam,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
		formatNullableTime(c.LastContactAt), formatNullableTime(c.LastPaymentAt),
		formatNullableTime(c.NextActionAt), formatNullableTime(c.ClosedAt),
		c.SourcePortfolio, c.ExternalReference, string(tags), c.Notes,
	)
	if err != nil {
		return fmt.Errorf("put case %s: %w", c.ID, err)
	}
	return nil
}

// List returns all cases ordered by ID.
func (s *CaseStore) List(ctx context.Context) ([]domain.Case, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*domain.Case, error) {
	var (
		c                                 domain.Case
		original, current, paid, interest string
		status, priority                  string
		createdAt, updatedAt              string
		lastContact, lastPayment          sql.NullString
		nextAction, closedAt              sql.NullString
		tags                              string
	)
	err := row.Scan(
		&c.ID, &c.DebtorID, &c.CreditorID, &original, &current, &paid,
		&interest, &c.Currency, &status, &priority, &c.AssignedAgent, &c.AssignedTeam,
		&createdAt, &updatedAt, &lastContact, &lastPayment, &nextAction, &closedAt,
		&c.SourcePortfolio, &c.ExternalReference, &tags, &c.Notes,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.OriginalDebt, original},
		{&c.CurrentDebt, current},
		{&c.PaidAmount, paid},
		{&c.InterestAccrued, interest},
	} {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", f.src, err)
		}
		*f.dst = v
	}

	c.Status = domain.CaseStatus(status)
	c.Priority = domain.Priority(priority)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	c.LastContactAt = parseNullableTime(lastContact)
	c.LastPaymentAt = parseNullableTime(lastPayment)
	c.NextActionAt = parseNullableTime(nextAction)
	c.ClosedAt = parseNullableTime(closedAt)

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	return &c, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
