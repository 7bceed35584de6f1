package vm

import (
	"fmt"
)

// Char is a Unicode code point held in a Box.
type Char rune

// Box is a heap-allocated scalar. Boxes are frozen at construction,
// like Text.
type Box[T Scalar] struct {
	hdr Header
	v   T
}

// NewBox creates a frozen box holding v.
func NewBox[T Scalar](v T) *Box[T] {
	b := &Box[T]{v: v}
	b.hdr.initHeader()
	b.hdr.freezeAtConstruction()
	return b
}

func BoxInt(n int64) *Box[int64]       { return NewBox(n) }
func BoxFloat(f float64) *Box[float64] { return NewBox(f) }
func BoxChar(r rune) *Box[Char]        { return NewBox(Char(r)) }
func BoxBool(b bool) *Box[bool]        { return NewBox(b) }
func BoxByte(b int8) *Box[int8]        { return NewBox(b) }
func BoxShort(s int16) *Box[int16]     { return NewBox(s) }

func (b *Box[T]) Header() *Header        { return &b.hdr }
func (b *Box[T]) Kind() Kind             { return KindBox }
func (b *Box[T]) ForEachRef(func(Object)) {}

// Value returns the boxed scalar.
func (b *Box[T]) Value() T { return b.v }

func (b *Box[T]) String() string {
	if c, ok := any(b.v).(Char); ok {
		return string(rune(c))
	}
	return fmt.Sprint(b.v)
}

// BoxValue boxes an immediate into a frozen heap object. References are
// returned unchanged; Nil boxes to nil.
func BoxValue(v Value) Object {
	switch v.tag {
	case tagBool:
		return BoxBool(v.bits != 0)
	case tagInt:
		return BoxInt(int64(v.bits))
	case tagFloat:
		return BoxFloat(v.Float64())
	case tagChar:
		return BoxChar(rune(v.bits))
	case tagRef:
		return v.obj
	default:
		return nil
	}
}
