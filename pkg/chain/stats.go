package chain

import "context"

// StoreStats holds aggregate counts over a store's contents.
type StoreStats struct {
	Contexts    int // The number of distinct contexts.
	Transitions int // The number of distinct (context, token) pairs.
	TotalWeight int // The sum of all recorded counts; the total number of observed transitions.
}

// Stats returns a snapshot of aggregate counts for the store.
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := StoreStats{Contexts: len(s.keys)}
	for _, next := range s.transitions {
		stats.Transitions += len(next)
	}
	for _, total := range s.totals {
		stats.TotalWeight += total
	}
	return stats
}

// Stats returns a snapshot of aggregate counts for the store.
func (s *SQLStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	if err := s.stmtCountContexts.QueryRowContext(ctx).Scan(&stats.Contexts); err != nil {
		return StoreStats{}, err
	}
	if err := s.stmtCountTransitions.QueryRowContext(ctx).Scan(&stats.Transitions); err != nil {
		return StoreStats{}, err
	}
	if err := s.stmtTotalWeight.QueryRowContext(ctx).Scan(&stats.TotalWeight); err != nil {
		return StoreStats{}, err
	}
	return stats, nil
}
