package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
)

// Snapshot is the serializable representation of a MemoryStore, used for
// JSON-based export and import.
type Snapshot struct {
	Order       int                       `json:"order"`
	Transitions map[string]map[string]int `json:"transitions"` // context key -> token -> count
}

// Export serializes the store into indented JSON and writes it to w.
func (s *MemoryStore) Export(w io.Writer) error {
	s.mu.RLock()
	snap := Snapshot{
		Order:       s.order,
		Transitions: make(map[string]map[string]int, len(s.transitions)),
	}
	for key, next := range s.transitions {
		counts := make(map[string]int, len(next))
		for to, count := range next {
			counts[to] = count
		}
		snap.Transitions[key] = counts
	}
	s.mu.RUnlock()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

// Import reads a JSON snapshot from r and merges it into the store: counts
// for transitions already present add, matching Merge semantics. A snapshot
// of a different order is rejected.
func (s *MemoryStore) Import(r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("chain: failed to decode snapshot: %w", err)
	}
	if snap.Order != s.order {
		return fmt.Errorf("%w: snapshot has order %d, store order is %d", ErrOrderMismatch, snap.Order, s.order)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, next := range snap.Transitions {
		for to, count := range next {
			if count <= 0 {
				continue
			}
			s.add(key, to, count)
		}
	}
	return nil
}

// SaveFile writes the store's snapshot to path via an atomic rename, so a
// crash mid-write never leaves a partial file behind.
func (s *MemoryStore) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}

// LoadFile reads a snapshot file and returns a new MemoryStore holding its
// contents. The store's order comes from the snapshot itself.
func LoadFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chain: failed to open snapshot: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("chain: failed to decode snapshot: %w", err)
	}
	store := NewMemoryStore(snap.Order)
	for key, next := range snap.Transitions {
		for to, count := range next {
			if count <= 0 {
				continue
			}
			store.add(key, to, count)
		}
	}
	return store, nil
}
