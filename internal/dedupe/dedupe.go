// Package dedupe removes repeated records by id.
package dedupe

import (
	"sync"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// Records returns records with later duplicates removed. Order is preserved
// and the first occurrence of each id wins. The input is not modified.
func Records(records []record.Record) []record.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Set is a concurrency-safe set of ids.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// MarkIfNew stores id and reports whether it was absent.
func (s *Set) MarkIfNew(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}
