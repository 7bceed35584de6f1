// Package snapshot captures object graphs as deterministic CBOR documents.
//
// A snapshot records every object reachable from a root together with its
// mutability state, so two captures of the same graph can be compared
// byte for byte. The CLI uses it to dump graphs; tests use it to show that
// a rejected store leaves a graph untouched.
package snapshot

import (
	"crypto/sha256"
	"fmt"

	"github.com/chazu/isola/vm"
	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Slot is one field or element. Exactly one of Ref and Immediate is used:
// Ref is the index of the referenced node plus one, zero for immediates.
type Slot struct {
	Name      string `cbor:"1,keyasint,omitempty"`
	Ref       int    `cbor:"2,keyasint,omitempty"`
	Immediate string `cbor:"3,keyasint,omitempty"`
}

// Node is one captured object. Nodes are numbered in breadth-first
// discovery order starting from the root, which is node 0.
type Node struct {
	Kind        string `cbor:"1,keyasint"`
	Frozen      bool   `cbor:"2,keyasint"`
	Transferred bool   `cbor:"3,keyasint,omitempty"`
	Class       string `cbor:"4,keyasint,omitempty"`
	Slots       []Slot `cbor:"5,keyasint,omitempty"`
	Payload     string `cbor:"6,keyasint,omitempty"`
}

// Snapshot is a captured graph.
type Snapshot struct {
	Nodes []Node `cbor:"1,keyasint"`
	// IDs holds the runtime identity of each node. It is not encoded, so
	// equal graphs built separately encode identically.
	IDs []uint64 `cbor:"-"`
}

// Capture walks the graph reachable from root.
func Capture(root vm.Object) *Snapshot {
	s := &Snapshot{}
	if root == nil {
		return s
	}
	index := map[vm.Object]int{root: 0}
	queue := []vm.Object{root}

	ref := func(o vm.Object) int {
		if i, ok := index[o]; ok {
			return i + 1
		}
		index[o] = len(queue)
		queue = append(queue, o)
		return len(queue)
	}
	slot := func(name string, v vm.Value) Slot {
		if v.IsObject() {
			return Slot{Name: name, Ref: ref(v.Object())}
		}
		return Slot{Name: name, Immediate: v.String()}
	}

	for i := 0; i < len(queue); i++ {
		obj := queue[i]
		h := obj.Header()
		n := Node{
			Kind:        obj.Kind().String(),
			Frozen:      h.IsFrozen(),
			Transferred: h.IsTransferred(),
		}
		switch o := obj.(type) {
		case *vm.Record:
			n.Class = o.Class().Name
			o.ForEachField(func(name string, v vm.Value) {
				n.Slots = append(n.Slots, slot(name, v))
			})
		case *vm.RefArray:
			for j := 0; j < o.Len(); j++ {
				n.Slots = append(n.Slots, slot("", o.At(j)))
			}
		case fmt.Stringer:
			n.Payload = o.String()
		}
		s.Nodes = append(s.Nodes, n)
		s.IDs = append(s.IDs, h.ID())
	}
	return s
}

// Marshal encodes the snapshot as canonical CBOR.
func (s *Snapshot) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal decodes a snapshot produced by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return &s, nil
}

// Fingerprint returns the SHA-256 of the canonical encoding.
func (s *Snapshot) Fingerprint() ([32]byte, error) {
	data, err := s.Marshal()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// AllFrozen reports whether every captured node is frozen.
func (s *Snapshot) AllFrozen() bool {
	for _, n := range s.Nodes {
		if !n.Frozen {
			return false
		}
	}
	return true
}
