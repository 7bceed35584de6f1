package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMutability is returned by the write barrier when a store
	// targets a frozen object.
	ErrInvalidMutability = errors.New("invalid mutability")
	// ErrUseAfterTransfer is returned when a store goes through a
	// reference whose object was handed off to another worker.
	ErrUseAfterTransfer = errors.New("use after transfer")
	// ErrIllegalSharing is returned when a checked transfer finds mutable
	// data still reachable from the sending side.
	ErrIllegalSharing = errors.New("illegal sharing")
	// ErrPropagatedFailure marks a consumer failure re-raised by
	// Future.Result on the waiting side.
	ErrPropagatedFailure = errors.New("propagated failure")
	// ErrWorkerTerminated is returned for work submitted to, or discarded
	// by, a terminating worker.
	ErrWorkerTerminated = errors.New("worker terminated")
)

// MutabilityError describes a rejected store.
type MutabilityError struct {
	ObjectID    uint64
	Kind        Kind
	Op          string
	Transferred bool
}

func (e *MutabilityError) Error() string {
	if e.Transferred {
		return fmt.Sprintf("%s: %s on %s#%d after it was transferred",
			ErrUseAfterTransfer, e.Op, e.Kind, e.ObjectID)
	}
	return fmt.Sprintf("%s: %s on frozen %s#%d", ErrInvalidMutability, e.Op, e.Kind, e.ObjectID)
}

func (e *MutabilityError) Unwrap() []error {
	if e.Transferred {
		return []error{ErrInvalidMutability, ErrUseAfterTransfer}
	}
	return []error{ErrInvalidMutability}
}

// SharingError describes a rejected checked transfer.
type SharingError struct {
	RequestID uint64
	ObjectID  uint64
	Kind      Kind
	Reason    string
}

func (e *SharingError) Error() string {
	return fmt.Sprintf("%s: request %d: %s#%d %s",
		ErrIllegalSharing, e.RequestID, e.Kind, e.ObjectID, e.Reason)
}

func (e *SharingError) Unwrap() error { return ErrIllegalSharing }

// PropagatedFailure carries a consumer failure from a worker back to the
// goroutine observing the future.
type PropagatedFailure struct {
	RequestID uint64
	WorkerID  string
	Cause     error
}

func (e *PropagatedFailure) Error() string {
	return fmt.Sprintf("%s: request %d on worker %s: %v",
		ErrPropagatedFailure, e.RequestID, e.WorkerID, e.Cause)
}

func (e *PropagatedFailure) Unwrap() []error {
	return []error{ErrPropagatedFailure, e.Cause}
}

// PanicError wraps a value recovered from a panicking consumer.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
