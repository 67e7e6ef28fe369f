// Package chunk defines the unit of work exchanged between a client
// coordinator and this server coordinator.
package chunk

// CalcFailMessage tags a permanently failed output element. It is paired
// with a human-readable reason: (CalcFailMessage, reason).
const CalcFailMessage = "calc_failed"

// HookDescriptor names an optional side-effect to run: a module/function
// pair plus opaque arguments, or the empty sentinel meaning "no hook".
// Matches the wire shape of §6: "pre_mfa and post_mfa are either
// (module, function, args) triples or an empty sentinel."
type HookDescriptor struct {
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
	Args     []any  `json:"args,omitempty"`
}

// Empty reports whether this descriptor is the "no hook" sentinel.
func (h HookDescriptor) Empty() bool {
	return h.Module == "" && h.Function == ""
}

// Valid reports whether a non-empty descriptor is well-formed (has both a
// module and a function name). A malformed descriptor is skipped rather
// than rejected outright — see §4.6/§7 "malformed hook descriptor".
func (h HookDescriptor) Valid() bool {
	return h.Module != "" && h.Function != ""
}

// FuncTriple is the (pre, calc, post) function triple carried by a chunk.
type FuncTriple struct {
	Pre  HookDescriptor `json:"pre"`
	Calc string         `json:"calc"`
	Post HookDescriptor `json:"post"`
}

// JobKey identifies a job within a client: the pair processed-job markers
// are keyed on.
type JobKey struct {
	Client string `json:"client"`
	Ref    string `json:"ref"`
}

// Chunk is the unit of work. Immutable once received from a client.
type Chunk struct {
	Client string     `json:"client"`
	Ref    string     `json:"ref"`
	Seq    int        `json:"seq"`
	Funcs  FuncTriple `json:"funcs"`
	Data   []any      `json:"data"`
}

// Key returns the job key this chunk belongs to.
func (c Chunk) Key() JobKey {
	return JobKey{Client: c.Client, Ref: c.Ref}
}

// Result is either a successful calculator output or a permanent failure
// marker for a single input element.
type Result struct {
	Value  any    `json:"value,omitempty"`
	Failed bool   `json:"failed,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// OutputChunk is the result of computing a Chunk, with output_data the
// same length as the input data (§3).
type OutputChunk struct {
	Ref      string   `json:"ref"`
	Seq      int      `json:"seq"`
	OutData  []Result `json:"out_data"`
}

// FailedOutput synthesizes an output chunk where every element is marked
// permanently failed with the given reason — the §4.5 supervisor's
// exhausted-retry path.
func FailedOutput(c Chunk, reason string) OutputChunk {
	out := make([]Result, len(c.Data))
	for i := range out {
		out[i] = Result{Failed: true, Reason: reason}
	}
	return OutputChunk{Ref: c.Ref, Seq: c.Seq, OutData: out}
}

// Batch is an ordered sequence of chunks delivered in a single
// process_chunks message, consumed head-first (§3).
type Batch struct {
	Client string
	Chunks []Chunk
}

// Empty reports whether the batch has no remaining chunks.
func (b *Batch) Empty() bool {
	return len(b.Chunks) == 0
}

// PopFront removes and returns the head chunk of the batch.
func (b *Batch) PopFront() (Chunk, bool) {
	if len(b.Chunks) == 0 {
		return Chunk{}, false
	}
	c := b.Chunks[0]
	b.Chunks = b.Chunks[1:]
	return c, true
}
