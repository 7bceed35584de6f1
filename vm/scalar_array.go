package vm

import (
	"fmt"
)

// Scalar is the set of element types a ScalarArray or Box can hold.
// Scalars are value-typed: they carry no header of their own.
type Scalar interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~uint16 | ~float32 | ~float64
}

// ScalarArray is a fixed-size array of value-typed elements. Freezing it
// marks only the array; there is no graph behind the elements.
type ScalarArray[T Scalar] struct {
	hdr   Header
	elems []T
}

// Element kinds mirroring the primitive arrays of the host type system.
type (
	ByteArray    = ScalarArray[int8]
	ShortArray   = ScalarArray[int16]
	IntArray     = ScalarArray[int32]
	LongArray    = ScalarArray[int64]
	BooleanArray = ScalarArray[bool]
	CharArray    = ScalarArray[uint16]
	FloatArray   = ScalarArray[float32]
	DoubleArray  = ScalarArray[float64]
)

// NewScalarArray creates a mutable zero-filled array of n elements.
func NewScalarArray[T Scalar](n int) *ScalarArray[T] {
	a := &ScalarArray[T]{elems: make([]T, n)}
	a.hdr.initHeader()
	return a
}

// ScalarArrayOf creates a mutable array holding a copy of values.
func ScalarArrayOf[T Scalar](values ...T) *ScalarArray[T] {
	a := &ScalarArray[T]{elems: append([]T(nil), values...)}
	a.hdr.initHeader()
	return a
}

func (a *ScalarArray[T]) Header() *Header        { return &a.hdr }
func (a *ScalarArray[T]) Kind() Kind             { return KindScalarArray }
func (a *ScalarArray[T]) ForEachRef(func(Object)) {}

// Len returns the number of elements.
func (a *ScalarArray[T]) Len() int { return len(a.elems) }

// At returns element i.
// Panics if index is out of range.
func (a *ScalarArray[T]) At(i int) T {
	if i < 0 || i >= len(a.elems) {
		panic("ScalarArray.At: index out of range")
	}
	a.hdr.mu.Lock()
	defer a.hdr.mu.Unlock()
	return a.elems[i]
}

// Set stores v at index i after passing the write barrier.
func (a *ScalarArray[T]) Set(i int, v T) error {
	if err := checkMutable(a, "set element"); err != nil {
		return err
	}
	if i < 0 || i >= len(a.elems) {
		return rangeError("ScalarArray.Set", i, len(a.elems))
	}
	return a.store(i, v, "set element")
}

// Update replaces element i with fn(old), as in a[i]++. The barrier runs
// before fn.
func (a *ScalarArray[T]) Update(i int, fn func(T) T) error {
	if err := checkMutable(a, "update element"); err != nil {
		return err
	}
	if i < 0 || i >= len(a.elems) {
		return rangeError("ScalarArray.Update", i, len(a.elems))
	}
	return a.store(i, fn(a.At(i)), "update element")
}

func (a *ScalarArray[T]) store(i int, v T, op string) error {
	a.hdr.mu.Lock()
	defer a.hdr.mu.Unlock()
	if err := checkMutable(a, op); err != nil {
		return err
	}
	a.elems[i] = v
	return nil
}

// Slice returns a copy of the elements.
func (a *ScalarArray[T]) Slice() []T {
	a.hdr.mu.Lock()
	defer a.hdr.mu.Unlock()
	return append([]T(nil), a.elems...)
}

func (a *ScalarArray[T]) String() string {
	return fmt.Sprint(a.Slice())
}

func (a *ScalarArray[T]) cloneShell() Object {
	return ScalarArrayOf(a.Slice()...)
}

func (a *ScalarArray[T]) rewire(func(Object) Object) {}

func (a *ScalarArray[T]) invalidate() {
	a.hdr.mu.Lock()
	defer a.hdr.mu.Unlock()
	clear(a.elems)
}
