package calculator

import (
	"context"
	"fmt"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

// Termination is what a supervised worker reports back to the
// coordinator when it finishes — the channel-carried "ok | err(reason)"
// re-architecture hint from spec.md §9, standing in for a monitored
// process's exit reason.
type Termination struct {
	Normal bool
	Reason string
	Out    chunk.OutputChunk
}

// Run executes one chunk to completion in its own goroutine, computing
// every input element through calc and sending the Termination on done
// when finished. The goroutine never shares memory with the caller beyond
// done and recovers any panic from calc as an abnormal termination,
// mirroring the per-process isolation spec.md calls for.
//
// On success (Normal: true) the caller is expected to deliver Out to the
// client directly, per §4.2 "calc_done... Sent by the calculator on
// success" — Run does not send to the client itself; that is the
// coordinator's job via whatever ClientCoordinator it holds.
func Run(ctx context.Context, calc Calculator, c chunk.Chunk, done chan<- Termination) {
	go func() {
		var term Termination
		defer func() {
			if r := recover(); r != nil {
				term = Termination{Normal: false, Reason: fmt.Sprintf("panic: %v", r)}
			}
			done <- term
		}()

		out := make([]chunk.Result, len(c.Data))
		for i, input := range c.Data {
			v, err := calc.Calc(ctx, c.Funcs.Calc, input)
			if err != nil {
				term = Termination{Normal: false, Reason: err.Error()}
				return
			}
			out[i] = chunk.Result{Value: v}
		}

		term = Termination{
			Normal: true,
			Out:    chunk.OutputChunk{Ref: c.Ref, Seq: c.Seq, OutData: out},
		}
	}()
}
