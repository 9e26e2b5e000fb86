package vm

import (
	"strings"
)

type ObjectKind uint8

const (
	KindPlain ObjectKind = iota
	KindArray
	KindFunction
	KindClass
	KindBoundMethod
	KindNamespace
)

func (k ObjectKind) String() string {
	switch k {
	case KindPlain:
		return "Object"
	case KindArray:
		return "Array"
	case KindFunction:
		return "Function"
	case KindClass:
		return "Class"
	case KindBoundMethod:
		return "BoundMethod"
	case KindNamespace:
		return "Namespace"
	default:
		return "Unknown"
	}
}

// ObjectData is the closed polymorphic set of managed object variants. All
// state mutation goes through the arena's Mutate path; EachRef enumerates
// outgoing managed references for the tracer.
type ObjectData interface {
	Kind() ObjectKind
	Base() *BaseObject
	EachRef(fn func(Ref))
}

// BaseObject carries what every variant shares: the class back-reference,
// the prototype link (dialect-1 chains), the sealed flag, resolved trait slot
// values, and the dynamic property bag (nil exactly when sealed).
type BaseObject struct {
	class  Ref   // runtime class, zero Ref when classless
	proto  Value // prototype object or Null
	sealed bool
	slots  []Value
	bag    *PropBag
}

func (b *BaseObject) Base() *BaseObject { return b }

func (b *BaseObject) Class() Ref   { return b.class }
func (b *BaseObject) Proto() Value { return b.proto }
func (b *BaseObject) Sealed() bool { return b.sealed }

// SetProto rewires the prototype link. Only the arena's mutate path and the
// resolver during construction call this.
func (b *BaseObject) SetProto(proto Value) { b.proto = proto }

// Slot reads a resolved trait slot. Slot indices come from the resolver and
// are trusted; a bad index is an engine defect, not a script error.
func (b *BaseObject) Slot(i int) Value { return b.slots[i] }

func (b *BaseObject) SetSlot(i int, v Value) { b.slots[i] = v }

func (b *BaseObject) SlotCount() int { return len(b.slots) }

// Bag exposes the dynamic property bag; nil for sealed objects.
func (b *BaseObject) Bag() *PropBag { return b.bag }

func (b *BaseObject) eachBaseRef(fn func(Ref)) {
	if b.class != NilRef {
		fn(b.class)
	}
	eachValueRef(b.proto, fn)
	for _, v := range b.slots {
		eachValueRef(v, fn)
	}
	if b.bag != nil {
		b.bag.eachRef(fn)
	}
}

func eachValueRef(v Value, fn func(Ref)) {
	if v.typ == TypeObject {
		fn(v.Ref())
	}
}

// --- Dynamic property bag ---

// bagEntry is one dynamic property: a plain value or an accessor pair.
type bagEntry struct {
	name        string
	value       Value
	getter      Value
	setter      Value
	hasAccessor bool
}

// PropBag is the ordered name → slot mapping behind every dynamic object.
// Insertion order is preserved for enumeration; lookup is by exact name with
// an optional case-folded path for the legacy dialect's pre-v7 scripts.
type PropBag struct {
	entries []bagEntry
	index   map[string]int
	folded  map[string]int // lower-cased name -> entry index
}

func NewPropBag() *PropBag {
	return &PropBag{
		index:  make(map[string]int),
		folded: make(map[string]int),
	}
}

// Get returns (value, true) when the property exists as a plain value.
// Accessor entries report present=true with hasAccessor; callers route those
// through the resolver so the getter runs with the right receiver.
func (p *PropBag) Get(name string, foldCase bool) (entry *bagEntry, ok bool) {
	i, found := p.lookup(name, foldCase)
	if !found {
		return nil, false
	}
	return &p.entries[i], true
}

func (p *PropBag) lookup(name string, foldCase bool) (int, bool) {
	if i, ok := p.index[name]; ok {
		return i, true
	}
	if foldCase {
		if i, ok := p.folded[strings.ToLower(name)]; ok {
			return i, true
		}
	}
	return 0, false
}

// Set stores a plain value, creating the slot when absent. The stored name
// keeps its original spelling even under case-folded lookup.
func (p *PropBag) Set(name string, v Value, foldCase bool) {
	if i, ok := p.lookup(name, foldCase); ok {
		p.entries[i].value = v
		p.entries[i].hasAccessor = false
		return
	}
	p.append(bagEntry{name: name, value: v})
}

// SetAccessor installs a getter/setter pair under the name.
func (p *PropBag) SetAccessor(name string, getter, setter Value, foldCase bool) {
	if i, ok := p.lookup(name, foldCase); ok {
		p.entries[i].getter = getter
		p.entries[i].setter = setter
		p.entries[i].hasAccessor = true
		return
	}
	p.append(bagEntry{name: name, getter: getter, setter: setter, hasAccessor: true})
}

func (p *PropBag) append(e bagEntry) {
	p.index[e.name] = len(p.entries)
	low := strings.ToLower(e.name)
	if _, exists := p.folded[low]; !exists {
		p.folded[low] = len(p.entries)
	}
	p.entries = append(p.entries, e)
}

// Delete removes a property. Returns true when something was removed.
func (p *PropBag) Delete(name string, foldCase bool) bool {
	i, ok := p.lookup(name, foldCase)
	if !ok {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	// Rebuild both indices; deletion is rare next to lookup.
	p.index = make(map[string]int, len(p.entries))
	p.folded = make(map[string]int, len(p.entries))
	for j := range p.entries {
		p.index[p.entries[j].name] = j
		low := strings.ToLower(p.entries[j].name)
		if _, exists := p.folded[low]; !exists {
			p.folded[low] = j
		}
	}
	return true
}

// Names returns property names in insertion order.
func (p *PropBag) Names() []string {
	names := make([]string, len(p.entries))
	for i := range p.entries {
		names[i] = p.entries[i].name
	}
	return names
}

func (p *PropBag) Len() int { return len(p.entries) }

func (p *PropBag) eachRef(fn func(Ref)) {
	for i := range p.entries {
		eachValueRef(p.entries[i].value, fn)
		eachValueRef(p.entries[i].getter, fn)
		eachValueRef(p.entries[i].setter, fn)
	}
}

// --- Variants ---

// PlainData is an ordinary dynamic (or sealed) object.
type PlainData struct {
	BaseObject
}

func (*PlainData) Kind() ObjectKind { return KindPlain }

func (d *PlainData) EachRef(fn func(Ref)) { d.eachBaseRef(fn) }

// ArrayData is a dense, auto-expanding element vector plus the usual dynamic
// bag for named properties.
type ArrayData struct {
	BaseObject
	elements []Value
}

func (*ArrayData) Kind() ObjectKind { return KindArray }

func (d *ArrayData) EachRef(fn func(Ref)) {
	d.eachBaseRef(fn)
	for _, v := range d.elements {
		eachValueRef(v, fn)
	}
}

func (d *ArrayData) Length() int { return len(d.elements) }

// Get returns Undefined outside the current bounds.
func (d *ArrayData) Get(i int) Value {
	if i < 0 || i >= len(d.elements) {
		return Undefined
	}
	return d.elements[i]
}

// Set expands the array with Undefined holes when writing past the end.
func (d *ArrayData) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(d.elements) <= i {
		d.elements = append(d.elements, Undefined)
	}
	d.elements[i] = v
}

func (d *ArrayData) Append(v Value) { d.elements = append(d.elements, v) }

// SetLength truncates or extends with Undefined.
func (d *ArrayData) SetLength(n int) {
	if n < 0 {
		n = 0
	}
	for len(d.elements) < n {
		d.elements = append(d.elements, Undefined)
	}
	d.elements = d.elements[:n]
}

func (d *ArrayData) Elements() []Value { return d.elements }

// FunctionData is a callable: either compiled bytecode with its captured
// scope chain, or a native Go callback registered by the host.
type FunctionData struct {
	BaseObject
	Name   string
	Method *Method // nil for natives
	Scope  []Value // captured scope chain, innermost last
	Native NativeFunc
	Arity  int // declared parameter count for natives (-1 = variadic)
}

func (*FunctionData) Kind() ObjectKind { return KindFunction }

func (d *FunctionData) EachRef(fn func(Ref)) {
	d.eachBaseRef(fn)
	for _, v := range d.Scope {
		eachValueRef(v, fn)
	}
}

func (d *FunctionData) IsNative() bool { return d.Native != nil }

// BoundMethodData pairs a function with the receiver it was resolved on.
// The resolver produces these so `this` binds at call time, not at
// resolution time.
type BoundMethodData struct {
	BaseObject
	Func     Value // the underlying function object
	Receiver Value
}

func (*BoundMethodData) Kind() ObjectKind { return KindBoundMethod }

func (d *BoundMethodData) EachRef(fn func(Ref)) {
	d.eachBaseRef(fn)
	eachValueRef(d.Func, fn)
	eachValueRef(d.Receiver, fn)
}

// NamespaceData is a named scope qualifier from the trait dialect's constant
// pools. It exists so qualified names round-trip through the core; the
// resolver only compares URIs.
type NamespaceData struct {
	BaseObject
	URI string
}

func (*NamespaceData) Kind() ObjectKind { return KindNamespace }

func (d *NamespaceData) EachRef(fn func(Ref)) { d.eachBaseRef(fn) }
