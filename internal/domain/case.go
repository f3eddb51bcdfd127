// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring: it depends on nothing but the decimal type
// used for money.
//
// Side effect: importing domain sets decimal.MarshalJSONWithoutQuotes for
// the whole process, so every decimal.Decimal (not only domain fields)
// encodes as a JSON number. Events on the bus and API responses rely on it.
// Code in the same binary that needs quoted decimals must use its own type.
package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Case Status ────────────────────────────────────────────────────────────

// CaseStatus is the lifecycle state of a collection case.
type CaseStatus string

const (
	StatusActive      CaseStatus = "ACTIVE"
	StatusSettlement  CaseStatus = "SETTLEMENT"
	StatusLegalAction CaseStatus = "LEGAL_ACTION"
	StatusClosed      CaseStatus = "CLOSED"
	StatusWrittenOff  CaseStatus = "WRITTEN_OFF"
)

// Valid reports whether s is one of the known statuses.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSettlement, StatusLegalAction, StatusClosed, StatusWrittenOff:
		return true
	}
	return false
}

// CanAcceptPayments is the advisory eligibility predicate exposed by the
// status query. The payment write path does not consult it unless the
// engine is configured to enforce the guard.
func (s CaseStatus) CanAcceptPayments() bool {
	return s.PaymentBlockReason() == ""
}

// PaymentBlockReason explains why a status advertises itself as not
// accepting payments. Empty when payments are accepted.
func (s CaseStatus) PaymentBlockReason() string {
	switch s {
	case StatusClosed:
		return "case is closed"
	case StatusWrittenOff:
		return "case has been written off"
	case StatusLegalAction:
		return "case is under legal action"
	}
	return ""
}

// ─── Priority ───────────────────────────────────────────────────────────────

// Priority classifies how urgently a case is worked.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ─── Case ───────────────────────────────────────────────────────────────────

// Case is a single debt-collection matter.
//
// Invariant after every payment application:
//
//	CurrentDebt == max(0, OriginalDebt + InterestAccrued − PaidAmount)
type Case struct {
	ID         string `json:"id"`
	DebtorID   string `json:"debtorId"`
	CreditorID string `json:"creditorId"`

	OriginalDebt    decimal.Decimal `json:"originalDebt"`
	CurrentDebt     decimal.Decimal `json:"currentDebt"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	InterestAccrued decimal.Decimal `json:"interestAccrued"`
	Currency        string          `json:"currency"`

	Status   CaseStatus `json:"status"`
	Priority Priority   `json:"priority"`

	AssignedAgent string `json:"assignedAgent,omitempty"`
	AssignedTeam  string `json:"assignedTeam,omitempty"`

	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastContactAt *time.Time `json:"lastContactAt,omitempty"`
	LastPaymentAt *time.Time `json:"lastPaymentAt,omitempty"`
	NextActionAt  *time.Time `json:"nextActionAt,omitempty"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`

	SourcePortfolio   string   `json:"sourcePortfolio,omitempty"`
	ExternalReference string   `json:"externalReference,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// Outstanding returns max(0, OriginalDebt + InterestAccrued − PaidAmount).
func (c *Case) Outstanding() decimal.Decimal {
	owed := c.OriginalDebt.Add(c.InterestAccrued).Sub(c.PaidAmount)
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

// RecomputeDebt sets CurrentDebt from the other monetary fields.
func (c *Case) RecomputeDebt() {
	c.CurrentDebt = c.Outstanding()
}

// Clone returns a deep copy. Stores hand out clones so that readers never
// observe a case while it is being mutated.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.LastContactAt = cloneTime(c.LastContactAt)
	out.LastPaymentAt = cloneTime(c.LastPaymentAt)
	out.NextActionAt = cloneTime(c.NextActionAt)
	out.ClosedAt = cloneTime(c.ClosedAt)
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ─── History ────────────────────────────────────────────────────────────────

// HistoryKind classifies a case history record.
type HistoryKind string

const (
	HistoryCaseCreated     HistoryKind = "CASE_CREATED"
	HistoryPaymentReceived HistoryKind = "PAYMENT_RECEIVED"
	HistoryCaseClosed      HistoryKind = "CASE_CLOSED"
	HistoryCaseReopened    HistoryKind = "CASE_REOPENED"
	HistoryStatusChanged   HistoryKind = "STATUS_CHANGED"
)

// HistoryEntry is one line of a case's audit trail.
type HistoryEntry struct {
	ID          string      `json:"id"`
	CaseID      string      `json:"caseId"`
	Kind        HistoryKind `json:"kind"`
	Description string      `json:"description"`
	Actor       string      `json:"actor"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ─── Idempotency ────────────────────────────────────────────────────────────

// PaymentKey identifies one application of one payment to one case.
type PaymentKey struct {
	CaseID    string
	PaymentID string
}

// String formats the key as "caseID:paymentID" for logs and errors. It is
// ambiguous when either ID contains a colon; stores use Encode.
func (k PaymentKey) String() string {
	return k.CaseID + ":" + k.PaymentID
}

// Encode returns a storage key that is unique per (CaseID, PaymentID) pair:
// the case ID is length-prefixed, so "len:caseID:paymentID" splits one way.
func (k PaymentKey) Encode() string {
	return strconv.Itoa(len(k.CaseID)) + ":" + k.CaseID + ":" + k.PaymentID
}
