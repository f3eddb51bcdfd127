package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/debtdesk/caseflow/internal/domain"
)

func TestCaseStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewCaseStore()

	_, err := s.Get(ctx, "CASE-1")
	if !errors.Is(err, domain.ErrCaseNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrCaseNotFound", err)
	}

	c := &domain.Case{ID: "CASE-1", PaidAmount: decimal.NewFromInt(10), Status: domain.StatusActive}
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// Mutating the caller's copy after Put must not leak into the store.
	c.PaidAmount = decimal.NewFromInt(99)

	got, err := s.Get(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.PaidAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("PaidAmount = %s, want 10", got.PaidAmount)
	}

	// Mutating a read copy must not leak either.
	got.Status = domain.StatusClosed
	again, _ := s.Get(ctx, "CASE-1")
	if again.Status != domain.StatusActive {
		t.Errorf("Status = %s, want ACTIVE", again.Status)
	}
}

func TestCaseStore_PutRequiresID(t *testing.T) {
	s := NewCaseStore()
	if err := s.Put(context.Background(), &domain.Case{}); err == nil {
		t.Error("Put() without ID should fail")
	}
}

func TestCaseStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewCaseStore()
	for _, id := range []string{"CASE-3", "CASE-1", "CASE-2"} {
		s.Put(ctx, &domain.Case{ID: id})
	}

	cases, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 3 {
		t.Fatalf("len = %d, want 3", len(cases))
	}
	for i, want := range []string{"CASE-1", "CASE-2", "CASE-3"} {
		if cases[i].ID != want {
			t.Errorf("cases[%d].ID = %s, want %s", i, cases[i].ID, want)
		}
	}
}

func TestHistoryLog_AppendList(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryLog()

	h.Append(ctx, "CASE-1", domain.HistoryPaymentReceived, "Payment received: 100", "system")
	h.Append(ctx, "CASE-1", domain.HistoryCaseClosed, "Case closed", "system")
	h.Append(ctx, "CASE-2", domain.HistoryPaymentReceived, "Payment received: 5", "system")

	entries, err := h.List(ctx, "CASE-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Kind != domain.HistoryPaymentReceived || entries[1].Kind != domain.HistoryCaseClosed {
		t.Errorf("unexpected order: %s, %s", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Error("entries need distinct IDs")
	}
}
