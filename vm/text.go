package vm

import (
	"strings"
)

// Text is an immutable string object. Every Text is frozen when it is
// constructed, so it crosses worker boundaries without a freeze call.
type Text struct {
	hdr Header
	s   string
}

// NewText creates a frozen Text.
func NewText(s string) *Text {
	t := &Text{s: s}
	t.hdr.initHeader()
	t.hdr.freezeAtConstruction()
	return t
}

// Concat joins texts into a new frozen Text.
func Concat(parts ...*Text) *Text {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.s)
	}
	return NewText(b.String())
}

func (t *Text) Header() *Header        { return &t.hdr }
func (t *Text) Kind() Kind             { return KindText }
func (t *Text) ForEachRef(func(Object)) {}

// Value returns the Go string.
func (t *Text) Value() string { return t.s }

// Len returns the length in bytes.
func (t *Text) Len() int { return len(t.s) }

func (t *Text) String() string { return t.s }

// freezeAtConstruction marks a not-yet-published leaf object frozen and
// sealed.
func (h *Header) freezeAtConstruction() {
	h.flags.Store(flagFrozen | flagSealed)
}
