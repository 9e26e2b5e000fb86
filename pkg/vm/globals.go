package vm

// Globals wraps the single global object. Both dialects end their scope
// chains at it, and the host reads and writes named globals through it.
type Globals struct {
	engine *Engine
	obj    Ref
}

func newGlobals(e *Engine) *Globals {
	g := &Globals{engine: e}
	d := &PlainData{}
	d.proto = Null
	d.bag = NewPropBag()
	g.obj = e.arena.Allocate(d)
	return g
}

// Object returns the global object as a value; it is the outermost scope of
// every frame.
func (g *Globals) Object() Value { return ObjectValue(g.obj) }

// Get reads a named global. Missing names report false, never an error.
func (g *Globals) Get(name string) (Value, bool) {
	bag := g.engine.arena.Get(g.obj).Base().Bag()
	entry, ok := bag.Get(name, false)
	if !ok || entry.hasAccessor {
		return Undefined, ok
	}
	return entry.value, true
}

// Set defines or overwrites a named global.
func (g *Globals) Set(name string, v Value) {
	g.engine.arena.Mutate(g.obj, func(data ObjectData) {
		data.Base().Bag().Set(name, v, false)
	})
}

// Delete removes a named global.
func (g *Globals) Delete(name string) bool {
	var removed bool
	g.engine.arena.Mutate(g.obj, func(data ObjectData) {
		removed = data.Base().Bag().Delete(name, false)
	})
	return removed
}

// Names returns defined global names in definition order.
func (g *Globals) Names() []string {
	return g.engine.arena.Get(g.obj).Base().Bag().Names()
}

func (g *Globals) eachRoot(fn func(Ref)) {
	fn(g.obj)
}
