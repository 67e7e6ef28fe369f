package jobkeys

import (
	"testing"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

func TestMarkAndUnmark(t *testing.T) {
	s := NewSet()
	key := chunk.JobKey{Client: "c1", Ref: "job1"}

	if s.Marked(key) {
		t.Fatalf("expected unmarked key to report unmarked")
	}
	if !s.ShouldRunPreHook(key) {
		t.Fatalf("expected pre-hook to be eligible before any marker is set")
	}

	s.Mark(key)
	if !s.Marked(key) {
		t.Fatalf("expected key to be marked after Mark")
	}
	if s.ShouldRunPreHook(key) {
		t.Fatalf("expected pre-hook to be skipped once marked")
	}

	if !s.Unmark(key) {
		t.Fatalf("expected Unmark to report the marker was present")
	}
	if s.Marked(key) {
		t.Fatalf("expected key to be unmarked after Unmark")
	}
}

func TestUnmarkAbsentKeyIsNoOp(t *testing.T) {
	s := NewSet()
	key := chunk.JobKey{Client: "c1", Ref: "nope"}
	if s.Unmark(key) {
		t.Fatalf("expected Unmark on an absent key to report false")
	}
}

func TestKeysAreScopedPerClient(t *testing.T) {
	s := NewSet()
	a := chunk.JobKey{Client: "clientA", Ref: "job1"}
	b := chunk.JobKey{Client: "clientB", Ref: "job1"}

	s.Mark(a)
	if s.Marked(b) {
		t.Fatalf("expected markers to be scoped per (client, ref), not shared across clients")
	}
}
