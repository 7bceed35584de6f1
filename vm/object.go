package vm

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of an object.
type Kind int

const (
	KindRecord Kind = iota
	KindRefArray
	KindScalarArray
	KindText
	KindBox
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "Record"
	case KindRefArray:
		return "RefArray"
	case KindScalarArray:
		return "ScalarArray"
	case KindText:
		return "Text"
	case KindBox:
		return "Box"
	default:
		return "Object"
	}
}

// Object is a heap object governed by the memory model.
//
// ForEachRef is the only capability the freeze engine and transfer
// validation need: it must call fn once for every outgoing reference.
type Object interface {
	Header() *Header
	Kind() Kind
	ForEachRef(fn func(Object))
}

// handoff is implemented by kinds that a checked transfer can move to
// another worker. cloneShell returns an unfrozen copy whose references
// still point at the originals; rewire then redirects each reference.
type handoff interface {
	cloneShell() Object
	rewire(remap func(Object) Object)
	invalidate()
}

// ---------------------------------------------------------------------------
// Class: the declared shape of a record
// ---------------------------------------------------------------------------

// Class names a record shape and its fields.
type Class struct {
	Name   string
	Fields []string
}

// NewClass declares a record shape.
func NewClass(name string, fields ...string) *Class {
	return &Class{Name: name, Fields: fields}
}

// IndexOf returns the slot index for a field name, or -1.
func (c *Class) IndexOf(field string) int {
	for i, f := range c.Fields {
		if f == field {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

// Record is an object with a fixed number of named fields.
type Record struct {
	hdr    Header
	class  *Class
	fields []Value
}

// NewRecord creates a mutable record with every field set to Nil.
func NewRecord(c *Class) *Record {
	r := &Record{class: c, fields: make([]Value, len(c.Fields))}
	r.hdr.initHeader()
	return r
}

// NewRecordWithFields creates a mutable record and initializes its fields
// in declaration order. Panics if the value count does not match the class.
func NewRecordWithFields(c *Class, values ...Value) *Record {
	if len(values) != len(c.Fields) {
		panic(fmt.Sprintf("NewRecordWithFields: %s has %d fields, got %d values",
			c.Name, len(c.Fields), len(values)))
	}
	r := &Record{class: c, fields: make([]Value, len(values))}
	r.hdr.initHeader()
	for i, v := range values {
		retainRef(v)
		r.fields[i] = v
	}
	return r
}

func (r *Record) Header() *Header { return &r.hdr }
func (r *Record) Kind() Kind      { return KindRecord }

// Class returns the record's shape.
func (r *Record) Class() *Class { return r.class }

// NumFields returns the number of fields.
func (r *Record) NumFields() int { return len(r.fields) }

// Field returns the value at index i.
// Panics if index is out of range.
func (r *Record) Field(i int) Value {
	if i < 0 || i >= len(r.fields) {
		panic("Record.Field: index out of range")
	}
	return loadValue(&r.hdr, r.fields, i)
}

// FieldNamed returns the value of the named field.
func (r *Record) FieldNamed(name string) (Value, bool) {
	i := r.class.IndexOf(name)
	if i < 0 {
		return Nil, false
	}
	return loadValue(&r.hdr, r.fields, i), true
}

// SetField stores v at index i. The write barrier runs first; if the
// record is frozen or was transferred away, nothing is written.
func (r *Record) SetField(i int, v Value) error {
	if err := checkMutable(r, "set field"); err != nil {
		return err
	}
	if i < 0 || i >= len(r.fields) {
		return rangeError("Record.SetField", i, len(r.fields))
	}
	return r.store(i, v, "set field")
}

// SetFieldNamed stores v in the named field.
func (r *Record) SetFieldNamed(name string, v Value) error {
	if err := checkMutable(r, "set "+name); err != nil {
		return err
	}
	i := r.class.IndexOf(name)
	if i < 0 {
		return fmt.Errorf("%s has no field %q", r.class.Name, name)
	}
	return r.store(i, v, "set "+name)
}

// UpdateField replaces field i with fn(old). The barrier runs before fn
// is called, so a frozen record never sees the new value computed.
func (r *Record) UpdateField(i int, fn func(Value) Value) error {
	if err := checkMutable(r, "update field"); err != nil {
		return err
	}
	if i < 0 || i >= len(r.fields) {
		return rangeError("Record.UpdateField", i, len(r.fields))
	}
	return r.store(i, fn(r.Field(i)), "update field")
}

func (r *Record) store(i int, v Value, op string) error {
	return storeValue(r, r.fields, i, v, op)
}

// ForEachField calls fn for every field in declaration order.
func (r *Record) ForEachField(fn func(name string, v Value)) {
	for i, v := range loadValues(&r.hdr, r.fields) {
		fn(r.class.Fields[i], v)
	}
}

// ForEachRef calls fn for every field holding a reference.
func (r *Record) ForEachRef(fn func(Object)) {
	for _, v := range loadValues(&r.hdr, r.fields) {
		if v.IsObject() {
			fn(v.obj)
		}
	}
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.class.Name)
	b.WriteByte('(')
	for i, v := range loadValues(&r.hdr, r.fields) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.class.Fields[i])
		b.WriteByte('=')
		if v.IsObject() {
			fmt.Fprintf(&b, "%s#%d", v.obj.Kind(), v.obj.Header().ID())
		} else {
			b.WriteString(v.String())
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (r *Record) cloneShell() Object {
	c := &Record{class: r.class, fields: loadValues(&r.hdr, r.fields)}
	c.hdr.initHeader()
	return c
}

func (r *Record) rewire(remap func(Object) Object) {
	for i, v := range r.fields {
		if v.IsObject() {
			v.obj = remap(v.obj)
			r.fields[i] = v
		}
		retainRef(r.fields[i])
	}
}

func (r *Record) invalidate() {
	r.hdr.mu.Lock()
	defer r.hdr.mu.Unlock()
	for i, v := range r.fields {
		releaseRef(v)
		r.fields[i] = Nil
	}
}
