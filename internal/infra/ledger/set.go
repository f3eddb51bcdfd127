// Package ledger implements the bounded idempotency records used by the
// payment pipeline: which payments were applied to which case, and which
// transport events were already processed.
package ledger

import "sync"

// ─── Bounded FIFO Set ───────────────────────────────────────────────────────
// Membership set with an insertion-ordered queue alongside the map.
// When the set grows past MaxEntries the EvictCount oldest members are
// dropped in true insertion order.
//
// Duplicate suppression only holds for resident members. A member evicted
// long ago can be re-added; that window is the price of bounded memory.

// Config bounds a Set.
type Config struct {
	MaxEntries int // Size above which eviction triggers (default 10_000)
	EvictCount int // Oldest members dropped per eviction (default 5_000)
}

// DefaultConfig returns the production bound: 10,000 entries, evict 5,000.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 10_000,
		EvictCount: 5_000,
	}
}

// Normalized fills unset or inconsistent bounds with defaults.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.EvictCount <= 0 || c.EvictCount > c.MaxEntries {
		c.EvictCount = c.MaxEntries / 2
		if c.EvictCount == 0 {
			c.EvictCount = 1
		}
	}
	return c
}

// Set is a concurrency-safe bounded set with oldest-first eviction.
type Set[K comparable] struct {
	mu      sync.Mutex
	cfg     Config
	members map[K]struct{}
	order   []K // insertion order; order[head:] are live
	head    int
	evicted int64
}

// NewSet creates an empty bounded set.
func NewSet[K comparable](cfg Config) *Set[K] {
	cfg = cfg.Normalized()
	return &Set[K]{
		cfg:     cfg,
		members: make(map[K]struct{}, cfg.MaxEntries+1),
		order:   make([]K, 0, cfg.MaxEntries+1),
	}
}

// Contains reports whether k is resident.
func (s *Set[K]) Contains(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[k]
	return ok
}

// Add inserts k. Returns false if it was already resident.
// Re-adding a resident member does not refresh its age.
func (s *Set[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[k]; ok {
		return false
	}
	s.members[k] = struct{}{}
	s.order = append(s.order, k)

	if len(s.members) > s.cfg.MaxEntries {
		s.evictLocked(s.cfg.EvictCount)
	}
	return true
}

// Len returns the number of resident members.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Evicted returns the total number of members dropped so far.
func (s *Set[K]) Evicted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

func (s *Set[K]) evictLocked(n int) {
	var zero K
	for i := 0; i < n && s.head < len(s.order); i++ {
		delete(s.members, s.order[s.head])
		s.order[s.head] = zero
		s.head++
		s.evicted++
	}

	// Compact once the dead prefix dominates the backing array.
	if s.head > len(s.order)/2 {
		live := copy(s.order, s.order[s.head:])
		for i := live; i < len(s.order); i++ {
			s.order[i] = zero
		}
		s.order = s.order[:live]
		s.head = 0
	}
}
