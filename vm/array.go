package vm

// RefArray is a fixed-size array of Values. Elements may reference other
// objects, so freezing a RefArray freezes everything it reaches.
type RefArray struct {
	hdr   Header
	elems []Value
}

// NewRefArray creates a mutable array of n Nil elements.
func NewRefArray(n int) *RefArray {
	a := &RefArray{elems: make([]Value, n)}
	a.hdr.initHeader()
	return a
}

// NewRefArrayOf creates a mutable array holding values.
func NewRefArrayOf(values ...Value) *RefArray {
	a := &RefArray{elems: make([]Value, len(values))}
	a.hdr.initHeader()
	for i, v := range values {
		retainRef(v)
		a.elems[i] = v
	}
	return a
}

func (a *RefArray) Header() *Header { return &a.hdr }
func (a *RefArray) Kind() Kind      { return KindRefArray }

// Len returns the number of elements.
func (a *RefArray) Len() int { return len(a.elems) }

// At returns element i.
// Panics if index is out of range.
func (a *RefArray) At(i int) Value {
	if i < 0 || i >= len(a.elems) {
		panic("RefArray.At: index out of range")
	}
	return loadValue(&a.hdr, a.elems, i)
}

// Set stores v at index i after passing the write barrier.
func (a *RefArray) Set(i int, v Value) error {
	if err := checkMutable(a, "set element"); err != nil {
		return err
	}
	if i < 0 || i >= len(a.elems) {
		return rangeError("RefArray.Set", i, len(a.elems))
	}
	return storeValue(a, a.elems, i, v, "set element")
}

// ForEachRef calls fn for every element holding a reference.
func (a *RefArray) ForEachRef(fn func(Object)) {
	for _, v := range loadValues(&a.hdr, a.elems) {
		if v.IsObject() {
			fn(v.obj)
		}
	}
}

func (a *RefArray) cloneShell() Object {
	c := &RefArray{elems: loadValues(&a.hdr, a.elems)}
	c.hdr.initHeader()
	return c
}

func (a *RefArray) rewire(remap func(Object) Object) {
	for i, v := range a.elems {
		if v.IsObject() {
			v.obj = remap(v.obj)
			a.elems[i] = v
		}
		retainRef(a.elems[i])
	}
}

func (a *RefArray) invalidate() {
	a.hdr.mu.Lock()
	defer a.hdr.mu.Unlock()
	for i, v := range a.elems {
		releaseRef(v)
		a.elems[i] = Nil
	}
}
