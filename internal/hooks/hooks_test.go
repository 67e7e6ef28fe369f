package hooks

import (
	"errors"
	"testing"
	"time"

	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

func TestLookupEmptyDescriptorSkips(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(chunk.HookDescriptor{})
	if ok {
		t.Fatalf("expected the empty sentinel descriptor to resolve to nothing")
	}
}

func TestLookupUnregisteredFunctionSkips(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(chunk.HookDescriptor{Module: "m", Function: "f"})
	if ok {
		t.Fatalf("expected an unregistered module/function to resolve to nothing")
	}
}

func TestRunSyncInvokesRegisteredHook(t *testing.T) {
	r := NewRegistry()
	var called []any
	r.Register("m", "f", func(args []any) error {
		called = args
		return nil
	})
	if err := RunSync(r, chunk.HookDescriptor{Module: "m", Function: "f", Args: []any{"x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "x" {
		t.Fatalf("expected hook to receive its args, got %v", called)
	}
}

func TestRunSyncSkipsUnregisteredWithoutError(t *testing.T) {
	r := NewRegistry()
	if err := RunSync(r, chunk.HookDescriptor{Module: "m", Function: "f"}); err != nil {
		t.Fatalf("expected a missing hook to be skipped, not errored: %v", err)
	}
}

func TestRunSyncWrapsHookError(t *testing.T) {
	r := NewRegistry()
	r.Register("m", "f", func(args []any) error { return errors.New("boom") })
	if err := RunSync(r, chunk.HookDescriptor{Module: "m", Function: "f"}); err == nil {
		t.Fatalf("expected the hook's error to propagate")
	}
}

func TestRunDetachedDoesNotBlockCaller(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	r.Register("m", "f", func(args []any) error {
		time.Sleep(20 * time.Millisecond)
		close(done)
		return nil
	})

	start := time.Now()
	RunDetached(r, chunk.HookDescriptor{Module: "m", Function: "f"}, nil)
	if time.Since(start) > 5*time.Millisecond {
		t.Fatalf("expected RunDetached to return immediately without waiting on the hook")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected the detached hook to eventually run")
	}
}

func TestRunDetachedReportsDurationAfterCompletion(t *testing.T) {
	r := NewRegistry()
	r.Register("m", "f", func(args []any) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	durCh := make(chan time.Duration, 1)
	RunDetached(r, chunk.HookDescriptor{Module: "m", Function: "f"}, func(d time.Duration) {
		durCh <- d
	})

	select {
	case d := <-durCh:
		if d < 20*time.Millisecond {
			t.Fatalf("expected reported duration to cover the hook's own sleep, got %v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected onDone to be called after the detached hook finishes")
	}
}

func TestRunDetachedToleratesNilOnDone(t *testing.T) {
	r := NewRegistry()
	r.Register("m", "f", func(args []any) error { return nil })
	RunDetached(r, chunk.HookDescriptor{Module: "m", Function: "f"}, nil)
}
