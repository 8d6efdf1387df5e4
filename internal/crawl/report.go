package crawl

import "sync"

// BranchFailure records one failed crawl branch.
type BranchFailure struct {
	Branch string
	Err    error
}

// Report collects per-branch failures for one run. A run with failures is
// partial, not aborted: completed branches' output stands.
type Report struct {
	mu       sync.Mutex
	failures []BranchFailure
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

// AddFailure records a failed branch.
func (r *Report) AddFailure(branch string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, BranchFailure{Branch: branch, Err: err})
}

// Failures returns the recorded failures.
func (r *Report) Failures() []BranchFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BranchFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

// OK reports whether the run completed without branch failures.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures) == 0
}
