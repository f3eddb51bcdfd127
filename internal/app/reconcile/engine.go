// Package reconcile applies completed payments to collection cases.
//
// ApplyPayment, per call:
//  1. Rejects negative amounts and unknown cases (no side effects)
//  2. Returns the current case untouched if (case, payment) is in the ledger
//  3. Adds the amount to PaidAmount and recomputes CurrentDebt
//  4. Applies the auto-close and reopen transitions
//  5. Stores the whole case in one Put, then marks the ledger
//
// Calls for the same case are serialised inside the process. Running several
// processes against one store additionally needs the work partitioned by case
// ID, or a store with conditional updates.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

// TransitionOrder decides how auto-close and reopen interact when one
// payment fully repays a written-off case.
type TransitionOrder string

const (
	// CloseThenReopen checks auto-close first and reopen second, the reopen
	// check looking at the status the case had when the payment arrived.
	// A written-off case paid in full ends ACTIVE with a zero balance.
	// This is the established behavior and the default.
	CloseThenReopen TransitionOrder = "close_then_reopen"

	// ReopenThenClose reopens the case, then re-checks the balance, so a
	// written-off case paid in full ends CLOSED. Opt-in until the business
	// side confirms it as the intended outcome.
	ReopenThenClose TransitionOrder = "reopen_then_close"
)

// Valid reports whether o is a known order.
func (o TransitionOrder) Valid() bool {
	return o == CloseThenReopen || o == ReopenThenClose
}

// Config controls engine behavior.
type Config struct {
	Actor string // Recorded as the actor of history entries (default: "system")

	Order TransitionOrder // default: CloseThenReopen

	// EnforcePaymentGuard rejects payments on cases whose status does not
	// accept payments (LEGAL_ACTION). Off by default: the write path applies
	// every payment and the status query is advisory only.
	EnforcePaymentGuard bool
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{
		Actor: "system",
		Order: CloseThenReopen,
	}
}

// Transition is one engine-driven status change.
type Transition struct {
	From   domain.CaseStatus `json:"from"`
	To     domain.CaseStatus `json:"to"`
	Reason string            `json:"reason"`
}

// Result describes what one ApplyPayment call did.
type Result struct {
	Case            *domain.Case      `json:"case"`
	PreviousBalance decimal.Decimal   `json:"previousBalance"`
	PreviousStatus  domain.CaseStatus `json:"previousStatus"`
	Duplicate       bool              `json:"duplicate"`
	Transitions     []Transition      `json:"transitions,omitempty"`
}

// StatusChanged reports whether the case ended in a different status.
func (r Result) StatusChanged() bool {
	return r.Case != nil && r.Case.Status != r.PreviousStatus
}

// StatusView is the read-only payment eligibility of a case.
type StatusView struct {
	CaseID            string            `json:"caseId"`
	Status            domain.CaseStatus `json:"status"`
	CanAcceptPayments bool              `json:"canAcceptPayments"`
	Reason            string            `json:"reason,omitempty"`
}

// Engine is the balance reconciliation engine.
type Engine struct {
	store   domain.CaseStore
	history domain.HistoryLog
	ledger  domain.Ledger
	cfg     Config
	locks   *caseLocks
	now     func() time.Time
	logger  *zap.Logger
}

// New creates an engine over the given collaborators.
func New(cfg Config, store domain.CaseStore, history domain.HistoryLog, ledger domain.Ledger, logger *zap.Logger) *Engine {
	if cfg.Actor == "" {
		cfg.Actor = "system"
	}
	if !cfg.Order.Valid() {
		cfg.Order = CloseThenReopen
	}
	return &Engine{
		store:   store,
		history: history,
		ledger:  ledger,
		cfg:     cfg,
		locks:   newCaseLocks(),
		now:     time.Now,
		logger:  observability.OrNop(logger).Named("reconcile"),
	}
}

// ApplyPayment applies amount to the case exactly once per paymentID.
// Repeated calls with the same IDs return the current case unchanged.
func (e *Engine) ApplyPayment(ctx context.Context, caseID, paymentID string, amount decimal.Decimal) (*Result, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	if caseID == "" || paymentID == "" {
		return nil, fmt.Errorf("%w: case and payment ids are required", domain.ErrInvalidEvent)
	}

	unlock := e.locks.lock(caseID)
	defer unlock()

	c, err := e.store.Get(ctx, caseID)
	if err != nil {
		if errors.Is(err, domain.ErrCaseNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	res := &Result{
		PreviousBalance: c.CurrentDebt,
		PreviousStatus:  c.Status,
	}

	key := domain.PaymentKey{CaseID: caseID, PaymentID: paymentID}
	applied, err := e.ledger.Contains(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check ledger %s: %w", key, err)
	}
	if applied {
		observability.DuplicatesSuppressed.WithLabelValues("payment").Inc()
		e.logger.Info("payment already applied",
			zap.String("case_id", caseID), zap.String("payment_id", paymentID))
		res.Case = c
		res.Duplicate = true
		return res, nil
	}

	if e.cfg.EnforcePaymentGuard && c.Status == domain.StatusLegalAction {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrPaymentBlocked, caseID, c.Status)
	}

	now := e.now().UTC()
	var notes []historyNote

	c.PaidAmount = c.PaidAmount.Add(amount)
	c.RecomputeDebt()
	c.LastPaymentAt = &now
	c.UpdatedAt = now
	notes = append(notes, historyNote{
		kind: domain.HistoryPaymentReceived,
		desc: fmt.Sprintf("Payment %s received: %s %s", paymentID, amount.StringFixed(2), c.Currency),
	})

	for _, tr := range e.transitions(c, res.PreviousStatus, amount, now) {
		res.Transitions = append(res.Transitions, tr)
		notes = append(notes, noteFor(tr))
		observability.StatusTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}

	if err := e.store.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: put %s: %v", domain.ErrStoreUnavailable, caseID, err)
	}

	// The case is committed from here on. A ledger or history failure must
	// not turn into a retry, which would apply the payment a second time.
	if err := e.ledger.Mark(ctx, key); err != nil {
		e.logger.Error("mark ledger failed; payment applied but not recorded",
			zap.String("case_id", caseID), zap.String("payment_id", paymentID), zap.Error(err))
	} else if n, err := e.ledger.Len(ctx); err == nil {
		observability.LedgerSize.Set(float64(n))
	}
	for _, n := range notes {
		if err := e.history.Append(ctx, caseID, n.kind, n.desc, e.cfg.Actor); err != nil {
			e.logger.Warn("append history failed",
				zap.String("case_id", caseID), zap.String("kind", string(n.kind)), zap.Error(err))
		}
	}

	observability.PaymentsApplied.Inc()
	e.logger.Info("payment applied",
		zap.String("case_id", caseID),
		zap.String("payment_id", paymentID),
		zap.String("amount", amount.String()),
		zap.String("previous_balance", res.PreviousBalance.String()),
		zap.String("new_balance", c.CurrentDebt.String()),
		zap.String("status", string(c.Status)))

	res.Case = c.Clone()
	return res, nil
}

// transitions mutates c's status per the configured order and returns the
// changes it made, in the order they happened.
func (e *Engine) transitions(c *domain.Case, arrived domain.CaseStatus, amount decimal.Decimal, now time.Time) []Transition {
	var out []Transition

	closeIfPaid := func() {
		if c.CurrentDebt.Sign() <= 0 && c.Status != domain.StatusClosed {
			out = append(out, Transition{From: c.Status, To: domain.StatusClosed, Reason: ReasonFullyPaid})
			c.Status = domain.StatusClosed
			c.ClosedAt = &now
		}
	}
	reopen := func(check domain.CaseStatus) {
		if check == domain.StatusWrittenOff && amount.Sign() > 0 {
			out = append(out, Transition{From: c.Status, To: domain.StatusActive, Reason: ReasonPaymentOnWrittenOff})
			c.Status = domain.StatusActive
			c.ClosedAt = nil
		}
	}

	switch e.cfg.Order {
	case ReopenThenClose:
		reopen(c.Status)
		closeIfPaid()
	default:
		closeIfPaid()
		reopen(arrived)
	}
	return out
}

// CaseStatus answers whether a case advertises itself as accepting payments.
// The answer is advisory unless EnforcePaymentGuard is set.
func (e *Engine) CaseStatus(ctx context.Context, caseID string) (*StatusView, error) {
	c, err := e.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		CaseID:            c.ID,
		Status:            c.Status,
		CanAcceptPayments: c.Status.CanAcceptPayments(),
		Reason:            c.Status.PaymentBlockReason(),
	}, nil
}

// ─── History ────────────────────────────────────────────────────────────────

// Transition reasons, also carried on status-changed events.
const (
	ReasonFullyPaid           = "Debt fully paid"
	ReasonPaymentOnWrittenOff = "Payment received on written-off case"
)

type historyNote struct {
	kind domain.HistoryKind
	desc string
}

func noteFor(tr Transition) historyNote {
	switch tr.To {
	case domain.StatusClosed:
		return historyNote{kind: domain.HistoryCaseClosed, desc: fmt.Sprintf("Case closed: %s", tr.Reason)}
	case domain.StatusActive:
		return historyNote{kind: domain.HistoryCaseReopened, desc: fmt.Sprintf("Case reopened: %s", tr.Reason)}
	}
	return historyNote{
		kind: domain.HistoryStatusChanged,
		desc: fmt.Sprintf("Status changed from %s to %s: %s", tr.From, tr.To, tr.Reason),
	}
}
