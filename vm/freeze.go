package vm

// FreezeStats reports the work done by one freeze call.
type FreezeStats struct {
	Visited int // objects walked
	Frozen  int // objects this call transitioned to Frozen
}

// Freeze freezes the object graph reachable from v. Immediates are
// already immutable and are ignored. Freeze never fails.
func Freeze(v Value) {
	if v.IsObject() {
		freezeGraph(v.obj)
	}
}

// FreezeObject freezes root and everything reachable from it.
func FreezeObject(root Object) {
	if root != nil {
		freezeGraph(root)
	}
}

// FreezeWithStats is FreezeObject returning traversal statistics.
func FreezeWithStats(root Object) FreezeStats {
	if root == nil {
		return FreezeStats{}
	}
	return freezeGraph(root)
}

// freezeGraph walks the closure of root with an explicit stack and a
// visited set keyed by object identity, so cycles terminate and each edge
// costs O(1).
//
// Every visited object is marked frozen on the way down, and its slots
// are read only after the mark. Marking takes the object's slot lock, so
// a store that was already past the barrier commits first and its value
// is seen by the scan; any later store is rejected. Only when the walk is
// complete are the visited objects sealed. A sealed object is
// pruned by later walks; a frozen but unsealed one is walked again,
// because a concurrent freeze may have marked it without having reached
// its children yet. This makes the postcondition hold under any
// interleaving: when freezeGraph returns, the whole closure is frozen.
func freezeGraph(root Object) FreezeStats {
	var stats FreezeStats
	if root.Header().isSealed() {
		return stats
	}

	visited := map[Object]struct{}{root: {}}
	stack := []Object{root}
	var walked []Object

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stats.Visited++
		if obj.Header().markFrozen() {
			stats.Frozen++
		}
		walked = append(walked, obj)

		obj.ForEachRef(func(child Object) {
			if child == nil {
				return
			}
			if _, seen := visited[child]; seen {
				return
			}
			visited[child] = struct{}{}
			if child.Header().isSealed() {
				return
			}
			stack = append(stack, child)
		})
	}

	for _, obj := range walked {
		obj.Header().markSealed()
	}
	return stats
}
