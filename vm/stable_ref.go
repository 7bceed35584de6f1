package vm

import (
	"sync/atomic"
)

// StableRef pins an object as a global root. A pinned object counts as
// referenced from outside any graph, so a checked transfer rejects it
// while it is mutable. Frozen objects pass regardless.
type StableRef struct {
	obj      Object
	disposed atomic.Bool
}

// NewStableRef pins obj.
func NewStableRef(obj Object) *StableRef {
	obj.Header().retain()
	return &StableRef{obj: obj}
}

// Get returns the pinned object, or nil after Dispose.
func (s *StableRef) Get() Object {
	if s.disposed.Load() {
		return nil
	}
	return s.obj
}

// Dispose unpins the object. Calling it more than once has no effect.
func (s *StableRef) Dispose() {
	if s.disposed.CompareAndSwap(false, true) {
		s.obj.Header().release()
	}
}
