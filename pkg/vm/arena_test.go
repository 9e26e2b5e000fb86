package vm

import (
	"testing"

	"lumen/pkg/errors"
)

// rootSet is a test root source with explicit membership.
type rootSet struct {
	refs []Ref
}

func (r *rootSet) EachRoot(fn func(Ref)) {
	for _, ref := range r.refs {
		fn(ref)
	}
}

func newPlain() *PlainData {
	d := &PlainData{}
	d.proto = Null
	d.bag = NewPropBag()
	return d
}

func TestArenaAllocateGet(t *testing.T) {
	a := NewArena()
	ref := a.Allocate(newPlain())
	if ref.IsNil() {
		t.Fatal("allocation returned nil ref")
	}
	if a.Get(ref) == nil {
		t.Fatal("Get returned nil for live ref")
	}
	if a.LiveCount() != 1 {
		t.Errorf("LiveCount = %d, want 1", a.LiveCount())
	}
}

func TestArenaCollectsUnreachable(t *testing.T) {
	a := NewArena()
	roots := &rootSet{}
	a.AddRoots(roots)

	kept := a.Allocate(newPlain())
	dropped := a.Allocate(newPlain())
	roots.refs = []Ref{kept}

	a.Collect()

	if a.LiveCount() != 1 {
		t.Errorf("LiveCount = %d, want 1", a.LiveCount())
	}
	if a.Get(kept) == nil {
		t.Error("rooted object must survive")
	}
	if a.alive(dropped) {
		t.Error("unrooted object must be collected")
	}
}

func TestArenaTracesThroughObjects(t *testing.T) {
	a := NewArena()
	roots := &rootSet{}
	a.AddRoots(roots)

	inner := a.Allocate(newPlain())
	outer := newPlain()
	outer.bag.Set("child", ObjectValue(inner), false)
	outerRef := a.Allocate(outer)
	roots.refs = []Ref{outerRef}

	a.Collect()

	if !a.alive(inner) {
		t.Error("object reachable through a property must survive")
	}
}

func TestArenaStaleRefPanics(t *testing.T) {
	a := NewArena()
	a.AddRoots(&rootSet{})
	ref := a.Allocate(newPlain())
	a.Collect() // nothing roots it

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on stale reference")
		}
		if _, ok := r.(*errors.InvariantError); !ok {
			t.Fatalf("expected *errors.InvariantError, got %T", r)
		}
	}()
	a.Get(ref)
}

func TestArenaGenerationPreventsAliasing(t *testing.T) {
	a := NewArena()
	roots := &rootSet{}
	a.AddRoots(roots)

	old := a.Allocate(newPlain())
	a.Collect()

	// The freed slot is recycled; the old reference must not resolve to the
	// new occupant.
	recycled := a.Allocate(newPlain())
	if recycled.index != old.index {
		t.Fatalf("expected slot reuse, got %d and %d", old.index, recycled.index)
	}
	if a.alive(old) {
		t.Error("stale reference aliases recycled slot")
	}
	roots.refs = []Ref{recycled}
	if !a.alive(recycled) {
		t.Error("recycled slot must be live under its new generation")
	}
}

func TestArenaPins(t *testing.T) {
	a := NewArena()
	a.AddRoots(&rootSet{})

	ref := a.Allocate(newPlain())
	a.Pin(ref)
	a.Collect()
	if !a.alive(ref) {
		t.Error("pinned object must survive collection")
	}

	a.Unpin(1)
	a.Collect()
	if a.alive(ref) {
		t.Error("unpinned object must be collected")
	}
}

func TestArenaMutateExcludesCollection(t *testing.T) {
	a := NewArena()
	a.AddRoots(&rootSet{})
	ref := a.Allocate(newPlain())
	a.Pin(ref)

	defer func() {
		if recover() == nil {
			t.Fatal("collection during a held mutation handle must panic")
		}
	}()
	a.Mutate(ref, func(ObjectData) {
		a.Collect()
	})
}

func TestArenaThresholdTriggersCollection(t *testing.T) {
	a := NewArena()
	a.AddRoots(&rootSet{})
	a.SetThreshold(1)

	a.Allocate(newPlain())
	a.MaybeCollect()
	if a.Collections() == 0 {
		t.Error("threshold of 1 must collect at the first safepoint")
	}
}

func TestWeakRef(t *testing.T) {
	a := NewArena()
	roots := &rootSet{}
	a.AddRoots(roots)

	ref := a.Allocate(newPlain())
	roots.refs = []Ref{ref}
	w := a.NewWeakRef(ref)

	if got, ok := w.Get(); !ok || got != ref {
		t.Fatal("weak ref must resolve while target is rooted")
	}

	roots.refs = nil
	a.Collect()

	if w.Alive() {
		t.Error("weak ref must observe collection")
	}
	if _, ok := w.Get(); ok {
		t.Error("collected weak ref must not resolve")
	}
}

func TestWeakRefDoesNotRoot(t *testing.T) {
	a := NewArena()
	a.AddRoots(&rootSet{})
	ref := a.Allocate(newPlain())
	w := a.NewWeakRef(ref)

	a.Collect()

	if w.Alive() {
		t.Error("a weak reference alone must not keep its target alive")
	}
}
