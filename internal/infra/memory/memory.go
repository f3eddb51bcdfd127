// Package memory provides volatile in-process implementations of the case
// store and history log, for development, tests and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/debtdesk/caseflow/internal/domain"
)

// ─── Case Store ─────────────────────────────────────────────────────────────

// CaseStore implements domain.CaseStore over a map. Cases are copied on the
// way in and out, so a Put is the only way a change becomes visible.
type CaseStore struct {
	mu    sync.RWMutex
	cases map[string]*domain.Case
}

// NewCaseStore creates an empty store.
func NewCaseStore() *CaseStore {
	return &CaseStore{cases: make(map[string]*domain.Case)}
}

// Get returns a copy of the case.
func (s *CaseStore) Get(_ context.Context, caseID string) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCaseNotFound, caseID)
	}
	return c.Clone(), nil
}

// Put stores a copy of the case, replacing any previous version.
func (s *CaseStore) Put(_ context.Context, c *domain.Case) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put case: missing id")
	}
	s.mu.Lock()
	s.cases[c.ID] = c.Clone()
	s.mu.Unlock()
	return nil
}

// List returns copies of all cases ordered by ID.
func (s *CaseStore) List(context.Context) ([]domain.Case, error) {
	s.mu.RLock()
	out := make([]domain.Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, *c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ─── History Log ────────────────────────────────────────────────────────────

// HistoryLog implements domain.HistoryLog in memory.
type HistoryLog struct {
	mu      sync.RWMutex
	entries map[string][]domain.HistoryEntry
	now     func() time.Time
}

// NewHistoryLog creates an empty history log.
func NewHistoryLog() *HistoryLog {
	return &HistoryLog{
		entries: make(map[string][]domain.HistoryEntry),
		now:     time.Now,
	}
}

// Append adds an entry to the case's trail.
func (h *HistoryLog) Append(_ context.Context, caseID string, kind domain.HistoryKind, description, actor string) error {
	e := domain.HistoryEntry{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		Kind:        kind,
		Description: description,
		Actor:       actor,
		CreatedAt:   h.now().UTC(),
	}
	h.mu.Lock()
	h.entries[caseID] = append(h.entries[caseID], e)
	h.mu.Unlock()
	return nil
}

// List returns the case's entries oldest first.
func (h *HistoryLog) List(_ context.Context, caseID string) ([]domain.HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.HistoryEntry(nil), h.entries[caseID]...), nil
}
