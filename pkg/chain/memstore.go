package chain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// MemoryStore is the in-process Store implementation, backed by a mapping
// from context key to per-token occurrence counts. A single mutex guards all
// operations; they are short, so contention stays low even with many
// concurrent producers.
type MemoryStore struct {
	order int

	mu          sync.RWMutex
	transitions map[string]map[string]int
	totals      map[string]int
	keys        []string
}

// NewMemoryStore creates an empty store for contexts of the given order.
// The order must be at least one.
func NewMemoryStore(order int) *MemoryStore {
	return &MemoryStore{
		order:       order,
		transitions: make(map[string]map[string]int),
		totals:      make(map[string]int),
	}
}

// Order returns the configured context window length.
func (s *MemoryStore) Order() int { return s.order }

// Insert increases the occurrence count for (from, to) by one.
func (s *MemoryStore) Insert(_ context.Context, from Context, to string) error {
	if err := checkOrder(s.order, from); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(from.Key(), to, 1)
	return nil
}

// InsertBatch records every token in tos as a transition from from,
// preserving multiplicities.
func (s *MemoryStore) InsertBatch(_ context.Context, from Context, tos []string) error {
	if err := checkOrder(s.order, from); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := from.Key()
	for _, to := range tos {
		s.add(key, to, 1)
	}
	return nil
}

// add assumes the write lock is held.
func (s *MemoryStore) add(key, to string, n int) {
	next, ok := s.transitions[key]
	if !ok {
		next = make(map[string]int)
		s.transitions[key] = next
		s.keys = append(s.keys, key)
	}
	next[to] += n
	s.totals[key] += n
}

// Sample draws a token with probability proportional to its recorded count
// under from. Selection picks a random point in [0, total) and walks
// cumulative counts, so its cost is proportional to the number of distinct
// successor tokens, never to the total count.
func (s *MemoryStore) Sample(_ context.Context, from Context) (string, error) {
	if err := checkOrder(s.order, from); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := from.Key()
	total := s.totals[key]
	if total == 0 {
		return "", ErrNoTransitions
	}
	pick := rand.IntN(total)
	for to, count := range s.transitions[key] {
		pick -= count
		if pick < 0 {
			return to, nil
		}
	}
	// Unreachable while counts stay positive.
	return "", ErrNoTransitions
}

// SampleAny returns a uniformly chosen existing context.
func (s *MemoryStore) SampleAny(_ context.Context) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.keys) == 0 {
		return Context{}, ErrEmptyStore
	}
	return ParseKey(s.keys[rand.IntN(len(s.keys))]), nil
}

// Weight returns the recorded occurrence count for a single transition;
// zero means the transition has never been observed.
func (s *MemoryStore) Weight(_ context.Context, from Context, to string) (int, error) {
	if err := checkOrder(s.order, from); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transitions[from.Key()][to], nil
}

// Len returns the number of distinct contexts recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Merge returns a new store holding the multiset union of s and other:
// counts for identical (context, token) pairs add. Both inputs are left
// unchanged. Stores of differing order cannot be merged.
func (s *MemoryStore) Merge(other *MemoryStore) (*MemoryStore, error) {
	if s.order != other.order {
		return nil, fmt.Errorf("%w: cannot merge order %d with order %d", ErrOrderMismatch, s.order, other.order)
	}
	merged := NewMemoryStore(s.order)
	for _, src := range []*MemoryStore{s, other} {
		src.mu.RLock()
		for key, next := range src.transitions {
			for to, count := range next {
				merged.add(key, to, count)
			}
		}
		src.mu.RUnlock()
	}
	return merged, nil
}
