package vm

import (
	"sync"
	"sync/atomic"
)

// MutabilityState is the externally visible mutability of an object.
type MutabilityState int

const (
	Mutable MutabilityState = iota
	Frozen
)

func (s MutabilityState) String() string {
	switch s {
	case Mutable:
		return "mutable"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// Header flag bits.
const (
	flagFrozen uint32 = 1 << iota
	// flagSealed is set once the object and its whole closure are known
	// to be frozen. The freeze engine prunes sealed objects.
	flagSealed
	// flagTransferred marks a source-side object whose contents were
	// handed off to another worker.
	flagTransferred
)

// nextObjectID hands out object identities. Zero is never used.
var nextObjectID atomic.Uint64

// Header is the per-object memory-model header.
//
// Header is embedded by every object kind. Flag loads are lock-free, so
// the write barrier's fast path is a single atomic load. mu guards the
// object's slots: stores commit with it held after checking the flags
// again, and the frozen and transferred bits are only set with it held.
// A store therefore either lands before the transition, where the
// freeze walk or transfer sees it, or is rejected.
type Header struct {
	id      uint64
	flags   atomic.Uint32
	inbound atomic.Int64 // references held by slots or stable refs
	mu      sync.Mutex
}

// initHeader assigns an identity to a zero header.
func (h *Header) initHeader() {
	if h.id == 0 {
		h.id = nextObjectID.Add(1)
	}
}

// ID returns the object's identity, used in diagnostics.
func (h *Header) ID() uint64 {
	return h.id
}

// IsFrozen reports whether the object has been frozen.
func (h *Header) IsFrozen() bool {
	return h.flags.Load()&flagFrozen != 0
}

// State returns the object's mutability state.
func (h *Header) State() MutabilityState {
	if h.IsFrozen() {
		return Frozen
	}
	return Mutable
}

// IsTransferred reports whether this reference was invalidated by a
// checked transfer.
func (h *Header) IsTransferred() bool {
	return h.flags.Load()&flagTransferred != 0
}

func (h *Header) isSealed() bool {
	return h.flags.Load()&flagSealed != 0
}

// markFrozen transitions Mutable -> Frozen. It returns true only for the
// call that performed the transition.
func (h *Header) markFrozen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setFlag(flagFrozen)
}

func (h *Header) markSealed() {
	h.setFlag(flagSealed)
}

func (h *Header) markTransferred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setFlag(flagTransferred)
}

// setFlag sets bit and reports whether this call changed it.
func (h *Header) setFlag(bit uint32) bool {
	for {
		old := h.flags.Load()
		if old&bit != 0 {
			return false
		}
		if h.flags.CompareAndSwap(old, old|bit) {
			return true
		}
	}
}

// Inbound returns the number of slots and stable references currently
// pointing at the object.
func (h *Header) Inbound() int64 {
	return h.inbound.Load()
}

func (h *Header) retain() {
	h.inbound.Add(1)
}

func (h *Header) release() {
	h.inbound.Add(-1)
}

// IsFrozen reports whether obj is frozen. A nil object is treated as
// frozen since there is nothing to mutate.
func IsFrozen(obj Object) bool {
	if obj == nil {
		return true
	}
	return obj.Header().IsFrozen()
}
