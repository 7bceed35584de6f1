package vm

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// TransferMode selects how a value crossing a worker boundary is checked.
type TransferMode int

const (
	// TransferChecked accepts frozen data and isolated mutable subgraphs,
	// and rejects everything else with ErrIllegalSharing.
	TransferChecked TransferMode = iota
	// TransferUnsafe skips validation. The caller vouches that the value
	// is not shared.
	TransferUnsafe
)

func (m TransferMode) String() string {
	switch m {
	case TransferChecked:
		return "checked"
	case TransferUnsafe:
		return "unsafe"
	default:
		return fmt.Sprintf("TransferMode(%d)", int(m))
	}
}

// ParseTransferMode converts "checked" or "unsafe" to a TransferMode.
func ParseTransferMode(s string) (TransferMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checked", "":
		return TransferChecked, nil
	case "unsafe":
		return TransferUnsafe, nil
	default:
		return 0, fmt.Errorf("unknown transfer mode %q", s)
	}
}

var transferLog = commonlog.GetLogger("isola.transfer")

var nextRequestID atomic.Uint64

// Transfer validates v for crossing a worker boundary under mode and
// returns the value the receiving side must use.
//
// In checked mode a fully frozen value is returned unchanged. An isolated
// mutable subgraph is handed off: the receiver gets a fresh copy and the
// originals are invalidated, so later stores through any source-side
// reference fail with ErrUseAfterTransfer.
func Transfer(mode TransferMode, v Value) (Value, error) {
	return transfer(mode, v, nextRequestID.Add(1))
}

func transfer(mode TransferMode, v Value, requestID uint64) (Value, error) {
	if mode == TransferUnsafe || !v.IsObject() {
		return v, nil
	}
	members, err := collectIsolated(v.obj, requestID)
	if err != nil {
		transferLog.Warningf("request %d rejected: %v", requestID, err)
		return Nil, err
	}
	if len(members) == 0 {
		return v, nil
	}
	transferLog.Debugf("request %d hands off %d mutable objects", requestID, len(members))
	return FromObject(handOff(v.obj, members)), nil
}

// collectIsolated walks the closure of root and returns its mutable
// objects in discovery order. It fails if any of them is referenced from
// outside that set, or is otherwise not movable.
//
// Isolation is decided by inbound counts: every slot store retains its
// target, so a mutable object is exclusively owned by the set exactly
// when all of its inbound references come from set members. Go-level
// references (locals, captured variables) are not counted; they are the
// source-side references that handOff invalidates.
func collectIsolated(root Object, requestID uint64) ([]Object, error) {
	reject := func(obj Object, reason string) error {
		return &SharingError{
			RequestID: requestID,
			ObjectID:  obj.Header().ID(),
			Kind:      obj.Kind(),
			Reason:    reason,
		}
	}

	var members []Object
	internal := make(map[Object]int64)
	visited := map[Object]struct{}{root: {}}
	stack := []Object{root}

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := obj.Header()

		if h.IsTransferred() {
			return nil, reject(obj, "was already transferred")
		}
		if h.isSealed() {
			continue
		}
		frozen := h.IsFrozen()
		if !frozen {
			if _, ok := obj.(handoff); !ok {
				return nil, reject(obj, "is mutable and cannot be handed off")
			}
			members = append(members, obj)
		}

		var childErr error
		obj.ForEachRef(func(child Object) {
			if child == nil || childErr != nil {
				return
			}
			if !child.Header().IsFrozen() {
				if frozen {
					childErr = reject(child, "is mutable but referenced from a frozen object")
					return
				}
				internal[child]++
			}
			if _, seen := visited[child]; seen {
				return
			}
			visited[child] = struct{}{}
			stack = append(stack, child)
		})
		if childErr != nil {
			return nil, childErr
		}
	}

	for _, obj := range members {
		if obj.Header().Inbound() != internal[obj] {
			return nil, reject(obj, "is mutable and still referenced from outside the transferred graph")
		}
	}
	return members, nil
}

// handOff marks the isolated members transferred, copies them, redirects
// internal references to the copies and invalidates the originals.
// Frozen objects stay shared. Members are marked before they are copied,
// so no store through a source reference can land after the copy.
func handOff(root Object, members []Object) Object {
	for _, obj := range members {
		obj.Header().markTransferred()
	}
	copies := make(map[Object]Object, len(members))
	for _, obj := range members {
		copies[obj] = obj.(handoff).cloneShell()
	}
	remap := func(o Object) Object {
		if c, ok := copies[o]; ok {
			return c
		}
		return o
	}
	for _, obj := range members {
		copies[obj].(handoff).rewire(remap)
	}
	for _, obj := range members {
		obj.(handoff).invalidate()
	}
	return remap(root)
}
