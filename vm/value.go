package vm

import (
	"fmt"
	"math"
	"strconv"
)

// Value is the content of a record field or reference array element.
//
// A Value is either an immediate scalar or a reference to an Object:
//   - Nil, Bool, SmallInt, Float and Char are immediates. They are copied
//     by value, carry no header and are immutable by nature.
//   - Ref points at a heap Object whose header governs mutation.
//
// The zero Value is Nil.
type Value struct {
	tag  valueTag
	bits uint64
	obj  Object
}

type valueTag uint8

const (
	tagNil valueTag = iota
	tagBool
	tagInt
	tagFloat
	tagChar
	tagRef
)

// Pre-defined immediate values.
var (
	Nil   = Value{}
	True  = Value{tag: tagBool, bits: 1}
	False = Value{tag: tagBool, bits: 0}
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// FromSmallInt creates an integer immediate.
func FromSmallInt(n int64) Value {
	return Value{tag: tagInt, bits: uint64(n)}
}

// FromFloat64 creates a float immediate.
func FromFloat64(f float64) Value {
	return Value{tag: tagFloat, bits: math.Float64bits(f)}
}

// FromChar creates a character immediate from a Unicode code point.
func FromChar(r rune) Value {
	return Value{tag: tagChar, bits: uint64(r)}
}

// FromBool converts a Go bool to True or False.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromObject wraps an object reference. A nil object yields Nil.
func FromObject(obj Object) Value {
	if obj == nil {
		return Nil
	}
	return Value{tag: tagRef, obj: obj}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) IsNil() bool      { return v.tag == tagNil }
func (v Value) IsBool() bool     { return v.tag == tagBool }
func (v Value) IsSmallInt() bool { return v.tag == tagInt }
func (v Value) IsFloat() bool    { return v.tag == tagFloat }
func (v Value) IsChar() bool     { return v.tag == tagChar }

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool { return v.tag == tagRef }

// IsImmediate returns true for values that carry no header.
func (v Value) IsImmediate() bool { return v.tag != tagRef }

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// Bool returns the boolean payload. Panics if v is not a bool.
func (v Value) Bool() bool {
	if v.tag != tagBool {
		panic("Value.Bool: not a bool")
	}
	return v.bits != 0
}

// SmallInt returns the integer payload. Panics if v is not an integer.
func (v Value) SmallInt() int64 {
	if v.tag != tagInt {
		panic("Value.SmallInt: not an integer")
	}
	return int64(v.bits)
}

// Float64 returns the float payload. Panics if v is not a float.
func (v Value) Float64() float64 {
	if v.tag != tagFloat {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(v.bits)
}

// Char returns the character payload. Panics if v is not a character.
func (v Value) Char() rune {
	if v.tag != tagChar {
		panic("Value.Char: not a character")
	}
	return rune(v.bits)
}

// Object returns the referenced object, or nil for immediates.
func (v Value) Object() Object {
	return v.obj
}

// IsFrozen reports whether v may be shared freely. Immediates are always
// frozen; references defer to the object header.
func (v Value) IsFrozen() bool {
	if v.tag != tagRef {
		return true
	}
	return v.obj.Header().IsFrozen()
}

// String renders the value for logs and the CLI.
func (v Value) String() string {
	switch v.tag {
	case tagNil:
		return "nil"
	case tagBool:
		return strconv.FormatBool(v.bits != 0)
	case tagInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case tagFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case tagChar:
		return string(rune(v.bits))
	case tagRef:
		if s, ok := v.obj.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%s#%d", v.obj.Kind(), v.obj.Header().ID())
	default:
		return "?"
	}
}

// retainRef and releaseRef maintain inbound counts for slot stores.
func retainRef(v Value) {
	if v.tag == tagRef {
		v.obj.Header().retain()
	}
}

func releaseRef(v Value) {
	if v.tag == tagRef {
		v.obj.Header().release()
	}
}
