package vm

import (
	"fmt"

	"lumen/pkg/errors"
)

// Ref is a managed reference: an index into the arena's slot table plus the
// generation the slot had when the reference was created. A Ref whose
// generation no longer matches is stale; dereferencing one is an engine
// defect, not a recoverable runtime error.
type Ref struct {
	index uint32
	gen   uint32
}

// NilRef is the zero reference. Generation 0 is never allocated, so NilRef
// can never alias a live slot.
var NilRef = Ref{}

func (r Ref) IsNil() bool { return r == NilRef }

// RootSource enumerates managed references that must be treated as live:
// active call frames (operand stacks, registers, scope chains), the global
// store, and pending host callbacks.
type RootSource interface {
	EachRoot(fn func(Ref))
}

type arenaSlot struct {
	gen    uint32
	data   ObjectData // nil when the slot is free
	marked bool
}

// Arena is the sole authority for allocating managed objects and granting
// mutable access to them. It reclaims unreachable objects with a mark-sweep
// trace over the registered root sources; collection runs only at safepoints
// between instructions, never inside one.
type Arena struct {
	slots       []arenaSlot
	free        []uint32
	liveCount   int
	allocsSince int
	threshold   int
	roots       []RootSource
	pins        []Ref
	mutDepth    int
	collections uint64
}

// DefaultCollectThreshold is the allocation count between automatic
// collection attempts at safepoints.
const DefaultCollectThreshold = 4096

func NewArena() *Arena {
	return &Arena{threshold: DefaultCollectThreshold}
}

// AddRoots registers a root source. The engine registers itself; the driver
// registers its pending-callback table.
func (a *Arena) AddRoots(src RootSource) {
	a.roots = append(a.roots, src)
}

// SetThreshold overrides the allocation count between automatic collections.
// A threshold of 1 collects at every safepoint, which the reachability tests
// use.
func (a *Arena) SetThreshold(n int) {
	if n < 1 {
		n = 1
	}
	a.threshold = n
}

// Allocate creates a new managed node. The caller is responsible for making
// the reference reachable (operand stack, register, slot, pin) before the
// next safepoint; within a single instruction that is always true.
func (a *Arena) Allocate(data ObjectData) Ref {
	if data == nil {
		panic(&errors.InvariantError{Msg: "arena: allocate nil object data"})
	}
	a.allocsSince++
	a.liveCount++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].data = data
		return Ref{index: idx, gen: a.slots[idx].gen}
	}
	a.slots = append(a.slots, arenaSlot{gen: 1, data: data})
	return Ref{index: uint32(len(a.slots) - 1), gen: 1}
}

// Get resolves a reference for reading. Stale or nil references are a
// contract violation and abort the enclosing invocation.
func (a *Arena) Get(ref Ref) ObjectData {
	if int(ref.index) >= len(a.slots) {
		panic(&errors.InvariantError{Msg: fmt.Sprintf("arena: reference #%d out of range", ref.index)})
	}
	s := &a.slots[ref.index]
	if s.data == nil || s.gen != ref.gen {
		panic(&errors.InvariantError{Msg: fmt.Sprintf("arena: stale reference #%d@%d", ref.index, ref.gen)})
	}
	return s.data
}

// Mutate grants exclusive, checked access to a node for the duration of fn.
// fn must not re-enter the interpreter: collection is excluded while any
// mutation handle is held, and a safepoint inside fn would break that.
func (a *Arena) Mutate(ref Ref, fn func(ObjectData)) {
	data := a.Get(ref)
	a.mutDepth++
	defer func() { a.mutDepth-- }()
	fn(data)
}

// Pin roots a reference independently of frames. Native callbacks pin values
// they hold across engine re-entry; Unpin releases in LIFO order.
func (a *Arena) Pin(ref Ref) {
	a.pins = append(a.pins, ref)
}

// Unpin releases the n most recent pins.
func (a *Arena) Unpin(n int) {
	if n > len(a.pins) {
		panic(&errors.InvariantError{Msg: "arena: unpin underflow"})
	}
	a.pins = a.pins[:len(a.pins)-n]
}

// MaybeCollect runs a collection when enough allocations accumulated. The
// interpreters call this at the instruction-fetch boundary.
func (a *Arena) MaybeCollect() {
	if a.allocsSince >= a.threshold {
		a.Collect()
	}
}

// Collect marks from the root set and sweeps unmarked nodes. It must never
// run while a mutation handle is held.
func (a *Arena) Collect() {
	if a.mutDepth != 0 {
		panic(&errors.InvariantError{Msg: "arena: collection during held mutation handle"})
	}

	// Mark.
	var gray []Ref
	push := func(ref Ref) {
		if ref.IsNil() {
			return
		}
		gray = append(gray, ref)
	}
	for _, src := range a.roots {
		src.EachRoot(push)
	}
	for _, ref := range a.pins {
		push(ref)
	}
	for len(gray) > 0 {
		ref := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		if int(ref.index) >= len(a.slots) {
			continue
		}
		s := &a.slots[ref.index]
		if s.data == nil || s.gen != ref.gen || s.marked {
			continue
		}
		s.marked = true
		s.data.EachRef(push)
	}

	// Sweep. Freed slots bump their generation so surviving weak references
	// observe "gone" instead of a recycled object.
	for i := range a.slots {
		s := &a.slots[i]
		if s.data == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		s.data = nil
		s.gen++
		a.free = append(a.free, uint32(i))
		a.liveCount--
	}

	a.allocsSince = 0
	a.collections++
}

// LiveCount returns the number of live managed objects.
func (a *Arena) LiveCount() int { return a.liveCount }

// Collections returns how many collection cycles have run.
func (a *Arena) Collections() uint64 { return a.collections }

// alive reports whether a reference still resolves, without panicking. Weak
// references use this.
func (a *Arena) alive(ref Ref) bool {
	if ref.IsNil() || int(ref.index) >= len(a.slots) {
		return false
	}
	s := &a.slots[ref.index]
	return s.data != nil && s.gen == ref.gen
}
