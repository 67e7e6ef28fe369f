// Package hooks invokes the pre/post-calculation side effects named by a
// chunk's HookDescriptor (§4.6). Following the re-architecture hint in
// spec.md §9, the reflective (module, function, args) descriptor is
// resolved against a typed registry of closures rather than invoked via
// runtime reflection.
package hooks

import (
	"fmt"
	"sync"
	"time"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

// Func is a registered side-effect. Args are the opaque arguments carried
// on the wire by the chunk's HookDescriptor.
type Func func(args []any) error

// Registry resolves (module, function) pairs to a Func, standing in for
// the reflective module/function lookup an Erlang-style MFA would perform.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a hook function under module.function.
func (r *Registry) Register(module, function string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key(module, function)] = fn
}

func key(module, function string) string {
	return module + ":" + function
}

// Lookup resolves a descriptor to a Func. ok is false for an empty or
// malformed descriptor, or one naming a function never registered —
// all three are "skip, don't fail" per §4.6/§7.
func (r *Registry) Lookup(h chunk.HookDescriptor) (Func, bool) {
	if !h.Valid() {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[key(h.Module, h.Function)]
	return fn, ok
}

// RunSync invokes the hook synchronously, inside the caller's own
// goroutine. Used for the pre-hook, which §4.6 requires to run "inside the
// coordinator's event handling" before the marker is set.
func RunSync(r *Registry, h chunk.HookDescriptor) error {
	fn, ok := r.Lookup(h)
	if !ok {
		return nil
	}
	if err := fn(h.Args); err != nil {
		return fmt.Errorf("pre-hook %s.%s: %w", h.Module, h.Function, err)
	}
	return nil
}

// RunDetached invokes the hook in its own goroutine and does not wait for
// it, per §4.6's "detached unit of execution" requirement for the
// post-hook so its duration never stalls the coordinator. If onDone is
// non-nil, it is called from that same goroutine with the hook's actual
// execution duration once it finishes, regardless of outcome — the caller
// can use this to record latency without blocking on the hook itself.
func RunDetached(r *Registry, h chunk.HookDescriptor, onDone func(time.Duration)) {
	fn, ok := r.Lookup(h)
	if !ok {
		return
	}
	go func() {
		start := time.Now()
		_ = fn(h.Args)
		if onDone != nil {
			onDone(time.Since(start))
		}
	}()
}
