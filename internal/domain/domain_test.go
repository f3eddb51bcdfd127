package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ─── Case Tests ─────────────────────────────────────────────────────────────

func TestCase_Outstanding(t *testing.T) {
	tests := []struct {
		name     string
		original string
		interest string
		paid     string
		want     string
	}{
		{"nothing paid", "5200.50", "320", "0", "5520.50"},
		{"partially paid", "15000", "0", "4500", "10500"},
		{"exactly paid", "5200.50", "320", "5520.50", "0"},
		{"overpaid clamps to zero", "100", "0", "250", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Case{
				OriginalDebt:    dec(tt.original),
				InterestAccrued: dec(tt.interest),
				PaidAmount:      dec(tt.paid),
			}
			c.RecomputeDebt()
			if !c.CurrentDebt.Equal(dec(tt.want)) {
				t.Errorf("CurrentDebt = %s, want %s", c.CurrentDebt, tt.want)
			}
		})
	}
}

func TestCase_Clone_IsDeep(t *testing.T) {
	now := time.Now()
	c := &Case{ID: "CASE-1", Tags: []string{"a"}, ClosedAt: &now}

	cp := c.Clone()
	cp.Tags[0] = "b"
	*cp.ClosedAt = now.Add(time.Hour)

	if c.Tags[0] != "a" {
		t.Error("Clone shares Tags backing array")
	}
	if !c.ClosedAt.Equal(now) {
		t.Error("Clone shares ClosedAt pointer")
	}
}

func TestCase_Clone_Nil(t *testing.T) {
	var c *Case
	if c.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

// ─── Status Tests ───────────────────────────────────────────────────────────

func TestCaseStatus_CanAcceptPayments(t *testing.T) {
	tests := []struct {
		status CaseStatus
		want   bool
	}{
		{StatusActive, true},
		{StatusSettlement, true},
		{StatusLegalAction, false},
		{StatusClosed, false},
		{StatusWrittenOff, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.CanAcceptPayments(); got != tt.want {
				t.Errorf("CanAcceptPayments() = %v, want %v", got, tt.want)
			}
			if tt.want && tt.status.PaymentBlockReason() != "" {
				t.Error("accepting status should have no block reason")
			}
			if !tt.want && tt.status.PaymentBlockReason() == "" {
				t.Error("blocking status should have a reason")
			}
		})
	}
}

func TestCaseStatus_Valid(t *testing.T) {
	if !StatusWrittenOff.Valid() {
		t.Error("WRITTEN_OFF should be valid")
	}
	if CaseStatus("PENDING").Valid() {
		t.Error("PENDING should not be valid")
	}
}

// ─── Event Tests ────────────────────────────────────────────────────────────

func TestPaymentCompletedEvent_Decode(t *testing.T) {
	raw := `{
		"eventId": "evt-1",
		"eventType": "payment.completed",
		"timestamp": "2024-03-01T10:00:00Z",
		"version": "1.0",
		"source": "payment-service",
		"correlationId": "corr-1",
		"payload": {
			"id": "PAY-1",
			"caseId": "CASE-X",
			"debtorId": "DEBTOR-1",
			"amount": 1500.25,
			"currency": "PLN",
			"status": "COMPLETED"
		}
	}`

	var evt PaymentCompletedEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if evt.Payload.CaseID != "CASE-X" {
		t.Errorf("CaseID = %q, want CASE-X", evt.Payload.CaseID)
	}
	if !evt.Payload.Amount.Equal(dec("1500.25")) {
		t.Errorf("Amount = %s, want 1500.25", evt.Payload.Amount)
	}
	if evt.Payload.ProcessedAt != nil {
		t.Error("ProcessedAt should be nil when absent")
	}
}

func TestBalanceUpdated_AmountsAreNumbers(t *testing.T) {
	data, err := json.Marshal(BalanceUpdatedPayload{
		CaseID:     "CASE-X",
		NewBalance: dec("10500.5"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"newBalance":10500.5`) {
		t.Errorf("newBalance not encoded as a number: %s", data)
	}
}

func TestDecimalEncoding_IsProcessWide(t *testing.T) {
	if !decimal.MarshalJSONWithoutQuotes {
		t.Fatal("importing domain should enable unquoted decimal JSON")
	}

	// A decimal outside any domain type encodes the same way.
	data, err := json.Marshal(struct {
		V decimal.Decimal `json:"v"`
	}{dec("12.50")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"v":12.5}` {
		t.Errorf("Marshal() = %s, want {\"v\":12.5}", data)
	}

	c := Case{ID: "CASE-X", OriginalDebt: dec("100"), PaidAmount: dec("40")}
	c.RecomputeDebt()
	data, err = json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"currentDebt":60`) {
		t.Errorf("case amounts not encoded as numbers: %s", data)
	}
}

func TestPaymentKey_String(t *testing.T) {
	k := PaymentKey{CaseID: "CASE-X", PaymentID: "PAY-1"}
	if k.String() != "CASE-X:PAY-1" {
		t.Errorf("String() = %q", k.String())
	}
}

func TestPaymentKey_Encode(t *testing.T) {
	if got := (PaymentKey{CaseID: "CASE-X", PaymentID: "PAY-1"}).Encode(); got != "6:CASE-X:PAY-1" {
		t.Errorf("Encode() = %q, want 6:CASE-X:PAY-1", got)
	}

	// Pairs that flatten to the same "caseID:paymentID" string.
	tests := []struct {
		name string
		a, b PaymentKey
	}{
		{"colon moves between ids", PaymentKey{"A:B", "C"}, PaymentKey{"A", "B:C"}},
		{"empty payment id", PaymentKey{"A:B", ""}, PaymentKey{"A", "B"}},
		{"digits in case id", PaymentKey{"1:A", "B"}, PaymentKey{"1", "A:B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Encode() == tt.b.Encode() {
				t.Errorf("Encode() collides for %+v and %+v: %q", tt.a, tt.b, tt.a.Encode())
			}
		})
	}
}
