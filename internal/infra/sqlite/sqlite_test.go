package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/debtdesk/caseflow/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleCase() *domain.Case {
	created := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	contact := created.Add(48 * time.Hour)
	return &domain.Case{
		ID:                "CASE-X",
		DebtorID:          "DEBTOR-1",
		CreditorID:        "CRED-1",
		OriginalDebt:      decimal.RequireFromString("5200.50"),
		CurrentDebt:       decimal.RequireFromString("5520.50"),
		PaidAmount:        decimal.Zero,
		InterestAccrued:   decimal.RequireFromString("320"),
		Currency:          "PLN",
		Status:            domain.StatusActive,
		Priority:          domain.PriorityHigh,
		AssignedAgent:     "agent-7",
		CreatedAt:         created,
		UpdatedAt:         created,
		LastContactAt:     &contact,
		SourcePortfolio:   "PORTFOLIO-2024-Q1",
		ExternalReference: "EXT-991",
		Tags:              []string{"vip", "consumer"},
		Notes:             "prefers email",
	}
}

// ─── Case Store ─────────────────────────────────────────────────────────────

func TestCaseStore_PutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Cases()
	want := sampleCase()

	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, "CASE-X")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.OriginalDebt.Equal(want.OriginalDebt) {
		t.Errorf("OriginalDebt = %s, want %s", got.OriginalDebt, want.OriginalDebt)
	}
	if !got.CurrentDebt.Equal(want.CurrentDebt) {
		t.Errorf("CurrentDebt = %s, want %s", got.CurrentDebt, want.CurrentDebt)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %s, want ACTIVE", got.Status)
	}
	if got.Priority != domain.PriorityHigh {
		t.Errorf("Priority = %s, want HIGH", got.Priority)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.LastContactAt == nil || !got.LastContactAt.Equal(*want.LastContactAt) {
		t.Errorf("LastContactAt = %v, want %v", got.LastContactAt, want.LastContactAt)
	}
	if got.ClosedAt != nil {
		t.Errorf("ClosedAt = %v, want nil", got.ClosedAt)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vip" {
		t.Errorf("Tags = %v, want [vip consumer]", got.Tags)
	}
	if got.Notes != "prefers email" {
		t.Errorf("Notes = %q", got.Notes)
	}
}

func TestCaseStore_Put_Update(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Cases()
	c := sampleCase()
	store.Put(ctx, c)

	closed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	c.PaidAmount = decimal.RequireFromString("5520.50")
	c.RecomputeDebt()
	c.Status = domain.StatusClosed
	c.ClosedAt = &closed
	if err := store.Put(ctx, c); err != nil {
		t.Fatalf("Put(update) error: %v", err)
	}

	got, err := store.Get(ctx, "CASE-X")
	if err != nil {
		t.Fatal(err)
	}
	if !got.CurrentDebt.IsZero() {
		t.Errorf("CurrentDebt = %s, want 0", got.CurrentDebt)
	}
	if got.Status != domain.StatusClosed {
		t.Errorf("Status = %s, want CLOSED", got.Status)
	}
	if got.ClosedAt == nil || !got.ClosedAt.Equal(closed) {
		t.Errorf("ClosedAt = %v, want %v", got.ClosedAt, closed)
	}

	all, _ := store.List(ctx)
	if len(all) != 1 {
		t.Errorf("List() returned %d cases after update, want 1", len(all))
	}
}

func TestCaseStore_Get_NotFound(t *testing.T) {
	store := newTestDB(t).Cases()
	_, err := store.Get(context.Background(), "CASE-FAKE")
	if !errors.Is(err, domain.ErrCaseNotFound) {
		t.Errorf("Get(CASE-FAKE) error = %v, want ErrCaseNotFound", err)
	}
}

func TestCaseStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Cases()
	for _, id := range []string{"CASE-B", "CASE-A"} {
		c := sampleCase()
		c.ID = id
		c.Tags = nil
		store.Put(ctx, c)
	}

	cases, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("List() returned %d, want 2", len(cases))
	}
	if cases[0].ID != "CASE-A" {
		t.Errorf("cases[0].ID = %s, want CASE-A", cases[0].ID)
	}
	if cases[0].Tags != nil {
		t.Errorf("Tags = %v, want nil", cases[0].Tags)
	}
}

// ─── History Log ────────────────────────────────────────────────────────────

func TestHistoryLog_AppendList(t *testing.T) {
	ctx := context.Background()
	h := newTestDB(t).History()

	kinds := []domain.HistoryKind{
		domain.HistoryPaymentReceived,
		domain.HistoryCaseClosed,
		domain.HistoryCaseReopened,
	}
	for _, k := range kinds {
		if err := h.Append(ctx, "CASE-X", k, string(k), "system"); err != nil {
			t.Fatalf("Append(%s) error: %v", k, err)
		}
	}
	h.Append(ctx, "CASE-Y", domain.HistoryPaymentReceived, "other", "system")

	entries, err := h.List(ctx, "CASE-X")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != len(kinds) {
		t.Fatalf("List() returned %d, want %d", len(entries), len(kinds))
	}
	for i, k := range kinds {
		if entries[i].Kind != k {
			t.Errorf("entries[%d].Kind = %s, want %s", i, entries[i].Kind, k)
		}
		if entries[i].Actor != "system" {
			t.Errorf("entries[%d].Actor = %q", i, entries[i].Actor)
		}
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	db.Close()
}
