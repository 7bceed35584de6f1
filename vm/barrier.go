package vm

import (
	"fmt"
)

// CheckMutable is the write barrier. Every mutating operation calls it
// before computing or storing anything. It performs a single atomic load
// and takes no locks.
func CheckMutable(obj Object) error {
	return checkMutable(obj, "store")
}

func checkMutable(obj Object, op string) error {
	h := obj.Header()
	flags := h.flags.Load()
	if flags&(flagFrozen|flagTransferred) == 0 {
		return nil
	}
	return &MutabilityError{
		ObjectID:    h.id,
		Kind:        obj.Kind(),
		Op:          op,
		Transferred: flags&flagTransferred != 0,
	}
}

// storeValue commits v to slots[i], which belong to obj. The barrier is
// checked again with the slots locked, so a store that passed the first
// check but lost the race with a freeze or transfer writes nothing.
func storeValue(obj Object, slots []Value, i int, v Value, op string) error {
	h := obj.Header()
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkMutable(obj, op); err != nil {
		return err
	}
	retainRef(v)
	releaseRef(slots[i])
	slots[i] = v
	return nil
}

// loadValue reads slots[i] with the slots locked.
func loadValue(h *Header, slots []Value, i int) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slots[i]
}

// loadValues copies slots with the slots locked. Callers iterate the copy,
// so callbacks run without holding the lock.
func loadValues(h *Header, slots []Value) []Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Value(nil), slots...)
}

func rangeError(op string, i, n int) error {
	return fmt.Errorf("%s: index %d out of range [0,%d)", op, i, n)
}
