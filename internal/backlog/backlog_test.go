package backlog

import (
	"reflect"
	"testing"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

func mkChunk(client, ref string, seq int) chunk.Chunk {
	return chunk.Chunk{Client: client, Ref: ref, Seq: seq, Data: []any{seq}}
}

// TestFairInterleaving verifies S4/property 2: two batches of three
// chunks each interleave strictly alternately rather than draining FIFO.
func TestFairInterleaving(t *testing.T) {
	b := New()
	a := &chunk.Batch{Client: "clientA", Chunks: []chunk.Chunk{
		mkChunk("clientA", "jobA", 0),
		mkChunk("clientA", "jobA", 1),
		mkChunk("clientA", "jobA", 2),
	}}
	bb := &chunk.Batch{Client: "clientB", Chunks: []chunk.Chunk{
		mkChunk("clientB", "jobB", 0),
		mkChunk("clientB", "jobB", 1),
		mkChunk("clientB", "jobB", 2),
	}}
	b.Push(a)
	b.Push(bb)

	pulled, _ := b.Dispatch(6)
	if len(pulled) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(pulled))
	}

	var order []string
	for _, c := range pulled {
		order = append(order, c.Ref)
	}
	// Push prepends (§3: LIFO at the batch level), so jobB — pushed
	// second — sits at the head and is dispatched first; the two jobs
	// then alternate as each is rotated to the tail after a partial pull.
	want := []string{"jobB", "jobA", "jobB", "jobA", "jobB", "jobA"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected alternating order %v, got %v", want, order)
	}
}

// TestRefillOnLastChunk verifies S5/property 7: pulling a batch's last
// chunk emits exactly one refill request for that batch's client.
func TestRefillOnLastChunk(t *testing.T) {
	b := New()
	batch := &chunk.Batch{Client: "client1", Chunks: []chunk.Chunk{
		mkChunk("client1", "job1", 0),
		mkChunk("client1", "job1", 1),
	}}
	b.Push(batch)

	pulled, refills := b.Dispatch(1)
	if len(pulled) != 1 || len(refills) != 0 {
		t.Fatalf("first pull should not yet refill: pulled=%d refills=%d", len(pulled), len(refills))
	}

	pulled, refills = b.Dispatch(1)
	if len(pulled) != 1 {
		t.Fatalf("expected second chunk pulled, got %d", len(pulled))
	}
	if len(refills) != 1 || refills[0].Client != "client1" {
		t.Fatalf("expected one refill request for client1, got %v", refills)
	}
}

// TestDispatchStopsWhenBacklogEmpty ensures Dispatch never blocks or
// panics when asked for more chunks than are queued.
func TestDispatchStopsWhenBacklogEmpty(t *testing.T) {
	b := New()
	b.Push(&chunk.Batch{Client: "c", Chunks: []chunk.Chunk{mkChunk("c", "r", 0)}})

	pulled, _ := b.Dispatch(5)
	if len(pulled) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(pulled))
	}
	if !b.Empty() {
		t.Fatalf("expected backlog empty after draining")
	}
}

// TestEmptyBatchIsNoOp covers §4.2: pushing an empty batch never affects
// the backlog.
func TestEmptyBatchIsNoOp(t *testing.T) {
	b := New()
	b.Push(&chunk.Batch{Client: "c", Chunks: nil})
	if !b.Empty() {
		t.Fatalf("expected backlog to remain empty after pushing empty batch")
	}
}
