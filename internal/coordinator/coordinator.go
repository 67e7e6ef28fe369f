// Package coordinator implements the server coordinator's finite state
// machine: the scheduler (§4.4), fair dispatch (via internal/backlog,
// §4.3), supervised retry (§4.5), and pre/post-calculation hooks (§4.6).
// It is a single-threaded cooperative event loop (§5): all state mutation
// happens inside the loop's goroutine, and the only suspension point is
// the loop's select awaiting the next message.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pangea-net/compute-coordinator/internal/backlog"
	"github.com/pangea-net/compute-coordinator/internal/calculator"
	"github.com/pangea-net/compute-coordinator/internal/capacity"
	"github.com/pangea-net/compute-coordinator/internal/chunk"
	"github.com/pangea-net/compute-coordinator/internal/hooks"
	"github.com/pangea-net/compute-coordinator/internal/jobkeys"
)

// MaxAttempts bounds retry per in-flight chunk. With attempt starting at
// 0 and checked as attempt >= MaxAttempts, this yields MaxAttempts+1 total
// spawns (1 initial + MaxAttempts retries) before failure synthesis —
// see spec.md §9's note on this counting convention.
const MaxAttempts = 2

// DefaultNumChunks is the compile-time default pull-batch size (§4.1).
const DefaultNumChunks = 10

// State is the scheduler's two-state FSM (§4.4).
type State int

const (
	Waiting State = iota
	Feeding
)

func (s State) String() string {
	if s == Feeding {
		return "feeding"
	}
	return "waiting"
}

type inflightEntry struct {
	attempt int
	chunk   chunk.Chunk
}

// Coordinator is the per-host server coordinator described by spec.md.
// Construct with New and run the event loop with Run in its own
// goroutine; all other methods are safe to call concurrently — they send
// a message onto the loop's channels rather than touching state directly.
type Coordinator struct {
	log      *zap.Logger
	client   ClientCoordinator
	registry ClusterRegistry
	calc     calculator.Calculator
	hooks    *hooks.Registry
	observer Observer

	backlog *backlog.Backlog
	jobs    *jobkeys.Set
	inflight map[string]*inflightEntry

	workers    int
	maxWorkers int
	numChunks  int
	state      State

	msgs     chan func()
	newdata  chan struct{}
	termCh   chan workerTerm
	done     chan struct{}
}

type workerTerm struct {
	calcID string
	term   calculator.Termination
}

// Config configures a new Coordinator.
type Config struct {
	MaxWorkers int
	NumChunks  int
}

// New constructs a Coordinator. Call Run to start its event loop. registry
// may be nil for tests that never call BroadcastServerUp.
func New(cfg Config, client ClientCoordinator, registry ClusterRegistry, calc calculator.Calculator, hookRegistry *hooks.Registry, observer Observer, log *zap.Logger) *Coordinator {
	if cfg.NumChunks <= 0 {
		cfg.NumChunks = DefaultNumChunks
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Coordinator{
		log:        log,
		client:     client,
		registry:   registry,
		calc:       calc,
		hooks:      hookRegistry,
		observer:   observer,
		backlog:    backlog.New(),
		jobs:       jobkeys.NewSet(),
		inflight:   make(map[string]*inflightEntry),
		maxWorkers: cfg.MaxWorkers,
		numChunks:  cfg.NumChunks,
		state:      Waiting,
		msgs:       make(chan func()),
		newdata:    make(chan struct{}, 1),
		termCh:     make(chan workerTerm, 64),
		done:       make(chan struct{}),
	}
}

// Run executes the event loop until ctx is cancelled. Call it in its own
// goroutine; it returns when ctx.Done() fires.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.msgs:
			fn()
		case wt := <-c.termCh:
			c.handleTermination(ctx, wt)
		case <-c.newdata:
			c.dispatchTick(ctx)
		}
	}
}

// do runs fn inside the event loop and blocks until it has executed,
// serializing every external call through the single-threaded loop per
// §5's ordering guarantees.
func (c *Coordinator) do(ctx context.Context, fn func()) {
	result := make(chan struct{})
	wrapped := func() {
		fn()
		close(result)
	}
	select {
	case c.msgs <- wrapped:
	case <-ctx.Done():
		return
	}
	select {
	case <-result:
	case <-ctx.Done():
	}
}

func (c *Coordinator) signalNewData() {
	select {
	case c.newdata <- struct{}{}:
	default:
		// Already pending — newdata coalesces, per §5.
	}
}

// SetClient late-binds the ClientCoordinator. Used when the transport
// implementing ClientCoordinator itself needs a reference to this
// Coordinator to dispatch inbound messages, breaking the construction
// cycle between the two.
func (c *Coordinator) SetClient(ctx context.Context, client ClientCoordinator) {
	c.do(ctx, func() { c.client = client })
}

// BroadcastServerUp implements §4.1's mandatory startup sequence:
// enumerate every client coordinator already registered to cluster via
// the cluster registry, and notify each with server_up(self), carrying
// this host's probed capacity (§12).
func (c *Coordinator) BroadcastServerUp(ctx context.Context, cluster, self string, caps capacity.Capacity) {
	c.do(ctx, func() {
		if c.registry == nil {
			return
		}
		clients, err := c.registry.GetClients(ctx, cluster)
		if err != nil {
			c.log.Warn("coordinator: get_clients failed", zap.Error(err))
			return
		}
		for _, client := range clients {
			if err := c.client.ServerUp(ctx, client, self, caps); err != nil {
				c.log.Warn("coordinator: server_up failed", zap.String("client", client), zap.Error(err))
			}
		}
	})
}

// State returns the current FSM state. Safe for concurrent use; intended
// for tests and diagnostics, not for driving external logic.
func (c *Coordinator) State() State {
	var s State
	c.do(context.Background(), func() { s = c.state })
	return s
}

// --- §4.2 inbound client protocol -----------------------------------------

// ClientData handles an inbound client_data(pid) notification.
func (c *Coordinator) ClientData(ctx context.Context, client string) {
	c.do(ctx, func() {
		if err := c.client.SendChunks(ctx, client, c.numChunks); err != nil {
			c.log.Warn("coordinator: send_chunks failed", zap.String("client", client), zap.Error(err))
		}
	})
}

// ProcessChunks handles an inbound process_chunks(batch) message.
func (c *Coordinator) ProcessChunks(ctx context.Context, b chunk.Batch) {
	c.do(ctx, func() {
		if b.Empty() {
			return
		}
		seen := make(map[chunk.JobKey]bool)
		for _, ch := range b.Chunks {
			key := ch.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			c.runPreHookIfFirstSighting(key, ch.Funcs.Pre)
		}
		c.backlog.Push(&b)
		c.signalNewData()
	})
}

// runPreHookIfFirstSighting implements §4.6 exactly, including the
// flagged-as-possibly-buggy empty-sentinel behavior from §9: skipping on
// the empty sentinel does not set the marker, so later sightings of the
// same (client, ref) repeat this branch.
func (c *Coordinator) runPreHookIfFirstSighting(key chunk.JobKey, pre chunk.HookDescriptor) {
	if c.jobs.Marked(key) {
		return
	}
	if pre.Empty() {
		return // deliberately not marked — see doc comment above.
	}
	start := time.Now()
	err := hooks.RunSync(c.hooks, pre)
	c.observer.ObserveHookLatency("pre", time.Since(start))
	if err != nil {
		c.log.Warn("coordinator: pre-hook failed", zap.String("ref", key.Ref), zap.Error(err))
	}
	c.jobs.Mark(key)
}

// JobCleanup handles an inbound job_cleanup(client, ref, post) message.
func (c *Coordinator) JobCleanup(ctx context.Context, key chunk.JobKey, post chunk.HookDescriptor) {
	c.do(ctx, func() {
		if !c.jobs.Unmark(key) {
			return
		}
		if post.Valid() {
			hooks.RunDetached(c.hooks, post, func(d time.Duration) {
				c.observer.ObserveHookLatency("post", d)
			})
		}
	})
}

// --- §4.7 synchronous configuration surface -------------------------------

// ErrBadNumber is returned by ChangeWorkerNumber for a negative n.
var ErrBadNumber = fmt.Errorf("bad_number")

// ErrBadSize is returned by SetNumChunks for a non-positive size.
var ErrBadSize = fmt.Errorf("bad_size")

// ChangeWorkerNumber implements §4.4's change_worker_number(n).
func (c *Coordinator) ChangeWorkerNumber(ctx context.Context, n int) error {
	if n < 0 {
		return ErrBadNumber
	}
	var grow bool
	c.do(ctx, func() {
		grow = n > c.maxWorkers
		c.maxWorkers = n
		c.observer.SetWorkers(c.workers, c.maxWorkers)
	})
	if grow {
		c.do(ctx, func() {
			c.state = Waiting
			c.signalNewData()
		})
	}
	return nil
}

// GetWorkerNumber implements §4.7's get_worker_number().
func (c *Coordinator) GetWorkerNumber(ctx context.Context) (workers, max int) {
	c.do(ctx, func() {
		workers, max = c.workers, c.maxWorkers
	})
	return
}

// SetNumChunks implements §4.7's set_numchunks(size).
func (c *Coordinator) SetNumChunks(ctx context.Context, size int) error {
	if size <= 0 {
		return ErrBadSize
	}
	c.do(ctx, func() {
		c.numChunks = size
	})
	return nil
}

// GetNumChunks implements §4.7's get_numchunks().
func (c *Coordinator) GetNumChunks(ctx context.Context) (size int) {
	c.do(ctx, func() {
		size = c.numChunks
	})
	return
}

// --- §4.4 scheduler, §4.3 dispatch, §4.5 supervision ----------------------

// dispatchTick runs one waiting->{feeding,waiting} or feeding->feeding
// transition (§4.4's "newdata" row), spawning up to the available slots.
func (c *Coordinator) dispatchTick(ctx context.Context) {
	need := c.maxWorkers - c.workers
	if need <= 0 {
		c.state = Feeding
		return
	}

	spanCtx, end := c.observer.StartDispatchSpan(ctx)
	defer end()

	pulled, refills := c.backlog.Dispatch(need)
	for _, r := range refills {
		if err := c.client.SendChunks(spanCtx, r.Client, c.numChunks); err != nil {
			c.log.Warn("coordinator: refill send_chunks failed", zap.String("client", r.Client), zap.Error(err))
		}
	}
	for _, ch := range pulled {
		c.spawn(spanCtx, ch, 0)
	}
	c.observer.IncDispatched(len(pulled))
	c.observer.SetWorkers(c.workers, c.maxWorkers)

	if len(pulled) == need {
		c.state = Feeding
	} else {
		c.state = Waiting
	}
}

// spawn starts a supervised worker for chunk ch at the given attempt
// number, registering its in-flight entry and incrementing workers.
func (c *Coordinator) spawn(ctx context.Context, ch chunk.Chunk, attempt int) {
	calcID := uuid.NewString()
	c.inflight[calcID] = &inflightEntry{attempt: attempt, chunk: ch}
	c.workers++

	done := make(chan calculator.Termination, 1)
	calculator.Run(ctx, c.calc, ch, done)
	go func() {
		term := <-done
		select {
		case c.termCh <- workerTerm{calcID: calcID, term: term}:
		case <-ctx.Done():
		}
	}()
}

// handleTermination processes a worker's reported termination, per §4.5.
func (c *Coordinator) handleTermination(ctx context.Context, wt workerTerm) {
	entry, ok := c.inflight[wt.calcID]
	if !ok {
		return // defensive: unknown calc id, ignore.
	}
	delete(c.inflight, wt.calcID)

	if wt.term.Normal {
		// calculator.Run does not contact the client, so the coordinator
		// delivers the worker's calc_done here.
		if err := c.client.CalcDone(ctx, entry.chunk.Client, wt.term.Out); err != nil {
			c.log.Warn("coordinator: calc_done delivery failed", zap.String("client", entry.chunk.Client), zap.Error(err))
		}
		c.workers--
		c.dispatchTick(ctx)
		return
	}

	// Abnormal termination.
	if entry.attempt < MaxAttempts {
		c.observer.IncRetried()
		// workers unchanged — the freed slot is reused immediately. spawn
		// counts the new worker, so release the crashed one's count first.
		c.workers--
		c.spawn(ctx, entry.chunk, entry.attempt+1)
		return
	}

	// Retries exhausted: synthesize a permanent failure chunk.
	c.workers--
	c.observer.IncPermanentFailures()
	c.observer.CaptureFailure(fmt.Errorf("%s", wt.term.Reason), entry.chunk.Ref)
	out := chunk.FailedOutput(entry.chunk, wt.term.Reason)
	if err := c.client.CalcDone(ctx, entry.chunk.Client, out); err != nil {
		c.log.Warn("coordinator: failure calc_done delivery failed", zap.String("client", entry.chunk.Client), zap.Error(err))
	}
	// Do not dispatch here — §4.5: "the normal scheduling tick will pick
	// up the freed slot on the next newdata or down(normal)."
}
