package vm

import (
	"context"
	"sync"
	"sync/atomic"
)

// RequestState is the lifecycle state of a transfer request.
type RequestState int32

const (
	RequestCreated RequestState = iota
	RequestValidating
	RequestAccepted
	RequestExecuting
	RequestCompleted
	RequestRejected
	RequestCancelled
)

func (s RequestState) String() string {
	switch s {
	case RequestCreated:
		return "created"
	case RequestValidating:
		return "validating"
	case RequestAccepted:
		return "accepted"
	case RequestExecuting:
		return "executing"
	case RequestCompleted:
		return "completed"
	case RequestRejected:
		return "rejected"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final.
func (s RequestState) IsTerminal() bool {
	switch s {
	case RequestCompleted, RequestRejected, RequestCancelled:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to RequestState) bool {
	switch from {
	case RequestCreated:
		return to == RequestValidating || to == RequestAccepted
	case RequestValidating:
		return to == RequestAccepted || to == RequestRejected
	case RequestAccepted:
		return to == RequestExecuting || to == RequestCancelled
	case RequestExecuting:
		return to == RequestCompleted
	default:
		return false
	}
}

// Future is the handle for work scheduled on a worker.
//
// It is written exactly once, by the worker, and may be read any number
// of times. Every read blocks until the outcome is recorded and then
// observes the same value and error.
type Future struct {
	id    uint64
	state atomic.Int32 // RequestState
	done  chan struct{}
	once  sync.Once

	// Written before done is closed; read only after.
	value Value
	err   error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the request identity.
func (f *Future) ID() uint64 { return f.id }

// State returns the current request state.
func (f *Future) State() RequestState {
	return RequestState(f.state.Load())
}

// transition performs a validated state change. The caller supplies the
// expected prior state so lost races are visible.
func (f *Future) transition(from, to RequestState) bool {
	if !isAllowedTransition(from, to) {
		return false
	}
	return f.state.CompareAndSwap(int32(from), int32(to))
}

// finish records the outcome and releases every waiter. Only the first
// call has any effect.
func (f *Future) finish(from, to RequestState, v Value, err error) {
	f.once.Do(func() {
		f.transition(from, to)
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the outcome is recorded.
func (f *Future) Done() <-chan struct{} { return f.done }

// IsDone reports whether the outcome is recorded.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the request finishes and returns its value, or the
// failure raised on the worker.
func (f *Future) Result() (Value, error) {
	<-f.done
	return f.value, f.err
}

// ResultContext is Result with cancellation of the wait. Cancelling ctx
// does not cancel the request.
func (f *Future) ResultContext(ctx context.Context) (Value, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return Nil, ctx.Err()
	}
}
