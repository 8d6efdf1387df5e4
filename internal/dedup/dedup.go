// Package dedup rejects repeated records within a single crawl run.
package dedup

import (
	"sync"

	"github.com/banalytics/harvester/internal/domain"
)

// Set tracks the unique keys seen during one run. A Set must not be shared
// across runs; dedup is run-scoped by construction.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns an empty Set for one run.
func New() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Admit reports whether rec should be kept. Records without a unique key
// (dedup-exempt kinds) are always kept. The check and insert are a single
// atomic step so concurrent duplicates cannot both be admitted.
func (s *Set) Admit(rec *domain.Record) bool {
	if rec.UniqueKey == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[*rec.UniqueKey]; dup {
		return false
	}
	s.seen[*rec.UniqueKey] = struct{}{}
	return true
}

// Len returns the number of distinct keys admitted so far.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
