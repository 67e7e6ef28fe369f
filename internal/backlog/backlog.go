// Package backlog implements the ordered batch queue and the fair
// round-robin dispatcher described in §3 (Backlog) and §4.3 (Dispatcher)
// of spec.md. New batches are prepended — LIFO at the batch level, per
// §3 — while the dispatcher rotates a batch to the tail each time it
// consumes one of its chunks without draining it, so concurrent jobs
// interleave at chunk granularity instead of draining strictly FIFO.
package backlog

import (
	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

// Backlog is the coordinator's ordered sequence of pending batches. Not
// safe for concurrent use — the coordinator event loop is the sole owner,
// per §5's single-threaded mutation rule.
type Backlog struct {
	batches []*chunk.Batch
}

// New returns an empty backlog.
func New() *Backlog {
	return &Backlog{}
}

// Push prepends a newly arrived batch to the head of the backlog — §3's
// "prepended (LIFO at the batch level)" — ahead of §4.2 process_chunks.
// An empty batch is a no-op, per §4.2 "Empty batch is a no-op."
func (b *Backlog) Push(batch *chunk.Batch) {
	if batch == nil || batch.Empty() {
		return
	}
	b.batches = append([]*chunk.Batch{batch}, b.batches...)
}

// Empty reports whether the backlog has no chunks left to dispatch.
func (b *Backlog) Empty() bool {
	b.dropEmpty()
	return len(b.batches) == 0
}

func (b *Backlog) dropEmpty() {
	kept := b.batches[:0]
	for _, batch := range b.batches {
		if !batch.Empty() {
			kept = append(kept, batch)
		}
	}
	b.batches = kept
}

// RefillRequest is emitted when the dispatcher drains a batch's last
// chunk — the pull-side backpressure signal of §4.3 step 3: "clients only
// produce when the server is about to exhaust their contribution."
type RefillRequest struct {
	Client string
}

// Dispatch walks the backlog per §4.3's five numbered steps, pulling up to
// n chunks. It returns the pulled chunks (in dispatch order) and any
// refill requests to send to originating clients.
func (b *Backlog) Dispatch(n int) ([]chunk.Chunk, []RefillRequest) {
	var pulled []chunk.Chunk
	var refills []RefillRequest

	for len(pulled) < n {
		// Step 1: skip (remove) empty batches.
		b.dropEmpty()
		if len(b.batches) == 0 {
			break
		}

		// Step 2: take the head batch's head chunk.
		head := b.batches[0]
		c, ok := head.PopFront()
		if !ok {
			// dropEmpty should have removed this; defensive no-op.
			b.batches = b.batches[1:]
			continue
		}
		pulled = append(pulled, c)

		if head.Empty() {
			// Step 3: that batch is now empty — request a refill from its
			// client, and drop the now-empty batch from the backlog.
			refills = append(refills, RefillRequest{Client: head.Client})
			b.batches = b.batches[1:]
		} else {
			// Step 4: rotate the still-nonempty batch to the tail, so the
			// next pull comes from a different job.
			b.batches = append(b.batches[1:], head)
		}
		// Step 5 (stop when N pulled or backlog empty) is the loop guard.
	}

	return pulled, refills
}

// Len reports the number of non-empty batches currently queued. Exposed
// for metrics/tests, not used by the dispatch algorithm itself.
func (b *Backlog) Len() int {
	b.dropEmpty()
	return len(b.batches)
}
