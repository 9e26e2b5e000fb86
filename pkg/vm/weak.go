package vm

// WeakRef observes a managed object without keeping it alive. It resolves to
// "gone" once its target is collected; the generation tag on freed slots
// guarantees a recycled slot is never mistaken for the old object.
type WeakRef struct {
	ref   Ref
	arena *Arena
}

// NewWeakRef creates a weak reference to a managed object. Weak references
// are not roots.
func (a *Arena) NewWeakRef(ref Ref) WeakRef {
	return WeakRef{ref: ref, arena: a}
}

// Get returns the target reference and true while the target is alive, or
// NilRef and false once it has been collected.
func (w WeakRef) Get() (Ref, bool) {
	if w.arena == nil || !w.arena.alive(w.ref) {
		return NilRef, false
	}
	return w.ref, true
}

// Alive reports whether the target has not been collected yet.
func (w WeakRef) Alive() bool {
	return w.arena != nil && w.arena.alive(w.ref)
}
