// Package jobkeys tracks which (client, ref) jobs have already run their
// pre-calculation hook, gating it to at most once per server lifetime
// until job_cleanup erases the marker (§3 processed-job marker, §4.6).
package jobkeys

import (
	"sync"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

// Set is the processed-jobs marker table. Zero value is usable.
type Set struct {
	mu      sync.Mutex
	marked  map[chunk.JobKey]struct{}
}

// NewSet returns an empty marker set.
func NewSet() *Set {
	return &Set{marked: make(map[chunk.JobKey]struct{})}
}

// Marked reports whether key has a processed-job marker.
func (s *Set) Marked(key chunk.JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.marked[key]
	return ok
}

// Mark sets the processed-job marker for key.
func (s *Set) Mark(key chunk.JobKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marked == nil {
		s.marked = make(map[chunk.JobKey]struct{})
	}
	s.marked[key] = struct{}{}
}

// Unmark erases the processed-job marker for key, reporting whether it was
// present (job_cleanup is a no-op if the marker was never set, §4.2).
func (s *Set) Unmark(key chunk.JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.marked[key]
	delete(s.marked, key)
	return ok
}

// ShouldRunPreHook reports whether the pre-hook for key should run now: it
// must not already be marked. The caller is responsible for marking the
// key afterward per the empty-sentinel rule below — this method never
// mutates state, so callers can inspect before deciding.
//
// Per spec.md §4.6/§9: when the hook descriptor is the empty sentinel, the
// hook is skipped but the marker is deliberately left unset, so later
// batches for the same (client, ref) keep re-entering this branch. That is
// the source's documented (if wasteful) behavior and is preserved here,
// not "fixed".
func (s *Set) ShouldRunPreHook(key chunk.JobKey) bool {
	return !s.Marked(key)
}
