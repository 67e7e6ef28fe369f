package coordinator

import (
	"context"
	"time"
)

// Observer receives side-channel signals from the coordinator for
// metrics/tracing/error-reporting, decoupling the FSM from any concrete
// observability backend (internal/metrics, internal/observability provide
// one, wired together in cmd/coordinator).
type Observer interface {
	SetWorkers(workers, max int)
	IncDispatched(n int)
	IncRetried()
	IncPermanentFailures()
	ObserveHookLatency(kind string, d time.Duration)
	CaptureFailure(err error, jobRef string)
	StartDispatchSpan(ctx context.Context) (context.Context, func())
}

// NoopObserver discards everything. Used when the caller wires no
// observability backend (e.g. in unit tests).
type NoopObserver struct{}

func (NoopObserver) SetWorkers(int, int)                                {}
func (NoopObserver) IncDispatched(int)                                  {}
func (NoopObserver) IncRetried()                                        {}
func (NoopObserver) IncPermanentFailures()                              {}
func (NoopObserver) ObserveHookLatency(string, time.Duration)           {}
func (NoopObserver) CaptureFailure(error, string)                       {}
func (NoopObserver) StartDispatchSpan(ctx context.Context) (context.Context, func()) {
	return ctx, func() {}
}
