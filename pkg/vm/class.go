package vm

import (
	"lumen/pkg/errors"
)

// classState is the class initialization state machine. A class initializes
// at most once; a failed initializer poisons the class permanently.
type classState uint8

const (
	classUninitialized classState = iota
	classInitializing
	classReady
	classFailed
)

// Trait is the runtime form of a declared class member: a slot index into
// instance (or static) storage, or a method/accessor value.
type Trait struct {
	Name    string
	Kind    TraitDefKind
	Type    CoerceType // declared slot type; writes coerce through it
	Slot    int        // slot index for slot/const traits
	Default Value
	Method  Value // function object for method/getter traits
	Setter  Value // setter half of an accessor pair
}

// ClassData is a runtime class: resolved traits, the superclass link and the
// lazy initializer state. Classes are managed objects themselves so statics
// and method closures stay reachable.
type ClassData struct {
	BaseObject

	Name           string
	SuperName      string
	Super          Ref // NilRef at the root
	Interfaces     []Ref
	InterfaceNames []string
	IsInterface    bool
	Sealed         bool

	InstanceTraits []Trait
	StaticTraits   []Trait
	instanceIndex  map[string]int
	staticIndex    map[string]int

	// slotCount covers the whole chain: superclass slots precede this
	// class's own, so an instance's slot vector is laid out root-first.
	slotCount int

	Ctor       Value // constructor function or Undefined
	StaticInit Value // static initializer or Undefined

	state   classState
	initErr error

	statics []Value // static slot storage, indexed by StaticTraits slot

	// conforms caches interface checks per interface class ref.
	conforms map[Ref]bool
}

func (*ClassData) Kind() ObjectKind { return KindClass }

func (d *ClassData) EachRef(fn func(Ref)) {
	d.eachBaseRef(fn)
	if d.Super != NilRef {
		fn(d.Super)
	}
	for _, ref := range d.Interfaces {
		fn(ref)
	}
	for i := range d.InstanceTraits {
		eachValueRef(d.InstanceTraits[i].Method, fn)
		eachValueRef(d.InstanceTraits[i].Setter, fn)
		eachValueRef(d.InstanceTraits[i].Default, fn)
	}
	for i := range d.StaticTraits {
		eachValueRef(d.StaticTraits[i].Method, fn)
		eachValueRef(d.StaticTraits[i].Setter, fn)
		eachValueRef(d.StaticTraits[i].Default, fn)
	}
	eachValueRef(d.Ctor, fn)
	eachValueRef(d.StaticInit, fn)
	for _, v := range d.statics {
		eachValueRef(v, fn)
	}
}

// SlotCount is the instance slot vector size for this class including
// inherited slots.
func (d *ClassData) SlotCount() int { return d.slotCount }

// ownTrait finds a trait declared directly on this class.
func (d *ClassData) ownTrait(name string) (*Trait, bool) {
	if i, ok := d.instanceIndex[name]; ok {
		return &d.InstanceTraits[i], true
	}
	return nil, false
}

func (d *ClassData) ownStaticTrait(name string) (*Trait, bool) {
	if i, ok := d.staticIndex[name]; ok {
		return &d.StaticTraits[i], true
	}
	return nil, false
}

// registerClass records a class under its name and keeps declaration order
// for deterministic iteration.
func (e *Engine) registerClass(name string, ref Ref) {
	if _, exists := e.classes[name]; !exists {
		e.classOrder = append(e.classOrder, name)
	}
	e.classes[name] = ref
}

// LookupClass resolves a class by name.
func (e *Engine) LookupClass(name string) (Ref, bool) {
	ref, ok := e.classes[name]
	return ref, ok
}

// DefineClass instantiates a static class descriptor into a runtime class.
// Superclasses and interfaces must already be defined; traits resolve in
// declaration order, and a subclass slot layout extends its superclass's.
func (e *Engine) DefineClass(def *ClassDef, pool *ConstPool) (Value, error) {
	cd := &ClassData{
		Name:           def.Name,
		SuperName:      def.SuperName,
		InterfaceNames: def.InterfaceNames,
		IsInterface:    def.IsInterface,
		Sealed:         def.Sealed,
		Ctor:           Undefined,
		StaticInit:     Undefined,
		instanceIndex:  make(map[string]int),
		staticIndex:    make(map[string]int),
	}
	cd.proto = Null
	cd.sealed = true

	if def.SuperName != "" {
		super, ok := e.classes[def.SuperName]
		if !ok {
			return Undefined, &errors.PropertyNotFoundError{Object: "class registry", Property: def.SuperName}
		}
		cd.Super = super
		cd.slotCount = e.arena.Get(super).(*ClassData).slotCount
	}
	for _, iname := range def.InterfaceNames {
		iref, ok := e.classes[iname]
		if !ok {
			return Undefined, &errors.PropertyNotFoundError{Object: "class registry", Property: iname}
		}
		cd.Interfaces = append(cd.Interfaces, iref)
	}

	bind := func(td *TraitDef) (Trait, error) {
		t := Trait{Name: td.Name, Kind: td.Kind, Type: td.Type, Default: td.Default, Method: Undefined, Setter: Undefined}
		switch td.Kind {
		case TraitDefMethod, TraitDefGetter, TraitDefSetter:
			if td.MethodIndex < 0 || td.MethodIndex >= len(pool.Methods) {
				return t, &errors.InvariantError{Msg: "class " + def.Name + ": trait " + td.Name + " has no method body"}
			}
			t.Method = e.NewFunction(pool.Methods[td.MethodIndex], nil, td.Name)
		}
		return t, nil
	}

	for i := range def.InstanceTraits {
		td := &def.InstanceTraits[i]
		t, err := bind(td)
		if err != nil {
			return Undefined, err
		}
		switch td.Kind {
		case TraitDefSlot, TraitDefConst:
			t.Slot = cd.slotCount
			cd.slotCount++
			cd.instanceIndex[t.Name] = len(cd.InstanceTraits)
			cd.InstanceTraits = append(cd.InstanceTraits, t)
		case TraitDefGetter, TraitDefSetter:
			// Getter and setter halves of one name merge into one trait.
			if j, ok := cd.instanceIndex[t.Name]; ok && cd.InstanceTraits[j].Kind == TraitDefGetter {
				if td.Kind == TraitDefSetter {
					cd.InstanceTraits[j].Setter = t.Method
				} else {
					cd.InstanceTraits[j].Method = t.Method
				}
				continue
			}
			merged := t
			if td.Kind == TraitDefSetter {
				merged.Kind = TraitDefGetter
				merged.Setter = t.Method
				merged.Method = Undefined
			}
			cd.instanceIndex[merged.Name] = len(cd.InstanceTraits)
			cd.InstanceTraits = append(cd.InstanceTraits, merged)
		default:
			cd.instanceIndex[t.Name] = len(cd.InstanceTraits)
			cd.InstanceTraits = append(cd.InstanceTraits, t)
		}
	}

	staticSlot := 0
	for i := range def.StaticTraits {
		td := &def.StaticTraits[i]
		t, err := bind(td)
		if err != nil {
			return Undefined, err
		}
		switch td.Kind {
		case TraitDefSlot, TraitDefConst:
			t.Slot = staticSlot
			staticSlot++
		case TraitDefGetter, TraitDefSetter:
			if j, ok := cd.staticIndex[t.Name]; ok && cd.StaticTraits[j].Kind == TraitDefGetter {
				if td.Kind == TraitDefSetter {
					cd.StaticTraits[j].Setter = t.Method
				} else {
					cd.StaticTraits[j].Method = t.Method
				}
				continue
			}
			if td.Kind == TraitDefSetter {
				t.Kind = TraitDefGetter
				t.Setter = t.Method
				t.Method = Undefined
			}
		}
		cd.staticIndex[t.Name] = len(cd.StaticTraits)
		cd.StaticTraits = append(cd.StaticTraits, t)
	}
	cd.statics = make([]Value, staticSlot)
	for i := range cd.statics {
		cd.statics[i] = Undefined
	}
	for i := range cd.StaticTraits {
		t := &cd.StaticTraits[i]
		if t.Kind == TraitDefSlot || t.Kind == TraitDefConst {
			cd.statics[t.Slot] = t.Default
		}
	}

	if def.CtorIndex >= 0 {
		if def.CtorIndex >= len(pool.Methods) {
			return Undefined, &errors.InvariantError{Msg: "class " + def.Name + ": constructor index out of range"}
		}
		cd.Ctor = e.NewFunction(pool.Methods[def.CtorIndex], nil, def.Name)
	}
	if def.StaticInitIndex >= 0 {
		if def.StaticInitIndex >= len(pool.Methods) {
			return Undefined, &errors.InvariantError{Msg: "class " + def.Name + ": static initializer index out of range"}
		}
		cd.StaticInit = e.NewFunction(pool.Methods[def.StaticInitIndex], nil, def.Name+"$cinit")
	}

	ref := e.arena.Allocate(cd)
	e.registerClass(def.Name, ref)
	return ObjectValue(ref), nil
}

// EnsureInitialized runs the class's static initializer exactly once,
// superclasses first. A cycle among initializers fails deterministically; a
// failed initializer re-raises the same error on every later touch.
func (e *Engine) EnsureInitialized(class Ref) error {
	cd := e.arena.Get(class).(*ClassData)
	switch cd.state {
	case classReady:
		return nil
	case classFailed:
		return cd.initErr
	case classInitializing:
		err := &errors.InitializationCycleError{Class: cd.Name}
		cd.state = classFailed
		cd.initErr = err
		return err
	}

	cd.state = classInitializing
	if cd.Super != NilRef {
		if err := e.EnsureInitialized(cd.Super); err != nil {
			cd.state = classFailed
			cd.initErr = &errors.InitializationCycleError{Class: cd.Name, Cause: err}
			return cd.initErr
		}
	}
	if !cd.StaticInit.IsUndefined() {
		if _, err := e.Call(cd.StaticInit, ObjectValue(class), nil); err != nil {
			cd.state = classFailed
			cd.initErr = &errors.InitializationCycleError{Class: cd.Name, Cause: err}
			return cd.initErr
		}
	}
	// Interface conformance settles here: a declared interface whose methods
	// never resolve to concrete traits simply does not conform.
	for _, iref := range cd.Interfaces {
		e.classConforms(class, iref)
	}
	cd.state = classReady
	return nil
}

// Construct instantiates a class: initializes it if needed, allocates the
// instance with default-valued slots, links the prototype chain and runs the
// constructor chain implicitly root-first when constructors delegate.
func (e *Engine) Construct(class Value, args []Value) (Value, error) {
	if class.Type() != TypeObject {
		return Undefined, &errors.TypeMismatchError{Want: "Class", Got: class.Type().String()}
	}
	cd, ok := e.arena.Get(class.Ref()).(*ClassData)
	if !ok {
		// Constructing a plain function: dialect-1 style `new f()` with the
		// function's prototype property as the instance prototype.
		return e.constructFromFunction(class, args)
	}
	if cd.IsInterface {
		return Undefined, &errors.TypeMismatchError{Want: "Class", Got: "Interface",
			Msg: "interface " + cd.Name + " cannot be instantiated"}
	}
	if err := e.EnsureInitialized(class.Ref()); err != nil {
		return Undefined, err
	}

	inst := &PlainData{}
	inst.class = class.Ref()
	inst.proto = Null
	inst.sealed = cd.Sealed
	if !cd.Sealed {
		inst.bag = NewPropBag()
	}
	inst.slots = make([]Value, cd.slotCount)
	for i := range inst.slots {
		inst.slots[i] = Undefined
	}
	// Slot defaults apply root-first so subclass defaults win.
	if err := e.applySlotDefaults(inst, class.Ref()); err != nil {
		return Undefined, err
	}

	instance := ObjectValue(e.arena.Allocate(inst))
	e.arena.Pin(instance.Ref())
	defer e.arena.Unpin(1)

	if err := e.runCtorChain(class.Ref(), instance, args); err != nil {
		return Undefined, err
	}
	return instance, nil
}

func (e *Engine) applySlotDefaults(inst *PlainData, class Ref) error {
	cd := e.arena.Get(class).(*ClassData)
	if cd.Super != NilRef {
		if err := e.applySlotDefaults(inst, cd.Super); err != nil {
			return err
		}
	}
	for i := range cd.InstanceTraits {
		t := &cd.InstanceTraits[i]
		if t.Kind != TraitDefSlot && t.Kind != TraitDefConst {
			continue
		}
		v := t.Default
		if t.Type != CoerceAny {
			coerced, err := e.CoerceTo(v, t.Type)
			if err != nil {
				return err
			}
			v = coerced
		}
		inst.slots[t.Slot] = v
	}
	return nil
}

// runCtorChain runs constructors root-first. A class without its own
// constructor implicitly delegates to its superclass.
func (e *Engine) runCtorChain(class Ref, instance Value, args []Value) error {
	cd := e.arena.Get(class).(*ClassData)
	if cd.Ctor.IsUndefined() {
		if cd.Super != NilRef {
			return e.runCtorChain(cd.Super, instance, args)
		}
		return nil
	}
	_, err := e.Call(cd.Ctor, instance, args)
	return err
}

// CallSuper invokes the superclass constructor of the receiver's class, for
// explicit constructsuper delegation.
func (e *Engine) CallSuper(class Ref, instance Value, args []Value) error {
	cd := e.arena.Get(class).(*ClassData)
	if cd.Super == NilRef {
		return nil
	}
	return e.runCtorChain(cd.Super, instance, args)
}

// constructFromFunction implements prototype-style construction: allocate a
// dynamic object, link it to the function's "prototype" property and invoke
// the function as constructor. A non-object return is discarded.
func (e *Engine) constructFromFunction(fn Value, args []Value) (Value, error) {
	if !e.IsCallable(fn) {
		return Undefined, &errors.TypeMismatchError{Want: "Function", Got: e.TypeOf(fn)}
	}
	instance := e.NewPlainObject(NilRef, false)
	proto, err := e.GetProperty(fn, "prototype")
	if err == nil && proto.Type() == TypeObject {
		e.arena.Mutate(instance.Ref(), func(data ObjectData) {
			data.Base().SetProto(proto)
		})
	}
	e.arena.Pin(instance.Ref())
	defer e.arena.Unpin(1)
	result, err := e.Call(fn, instance, args)
	if err != nil {
		return Undefined, err
	}
	if result.Type() == TypeObject {
		return result, nil
	}
	return instance, nil
}

// InstanceOf reports whether v is an instance of the given class or
// conforms to the given interface, walking the superclass chain. For
// function values it falls back to prototype-chain membership.
func (e *Engine) InstanceOf(v Value, class Value) (bool, error) {
	if v.Type() != TypeObject || class.Type() != TypeObject {
		return false, nil
	}
	if cd, ok := e.arena.Get(class.Ref()).(*ClassData); ok {
		base := e.arena.Get(v.Ref()).Base()
		if base.class == NilRef {
			return false, nil
		}
		if cd.IsInterface {
			return e.classConforms(base.class, class.Ref()), nil
		}
		for cur := base.class; cur != NilRef; {
			if cur == class.Ref() {
				return true, nil
			}
			cur = e.arena.Get(cur).(*ClassData).Super
		}
		return false, nil
	}
	// Prototype-style: walk v's proto chain looking for class.prototype.
	proto, err := e.GetProperty(class, "prototype")
	if err != nil || proto.Type() != TypeObject {
		return false, nil
	}
	for cur := e.arena.Get(v.Ref()).Base().Proto(); cur.Type() == TypeObject; {
		if cur.SameObject(proto) {
			return true, nil
		}
		cur = e.arena.Get(cur.Ref()).Base().Proto()
	}
	return false, nil
}

// classConforms reports whether class (or any superclass) declares the
// interface, directly or through interface inheritance, and every method the
// interface declares resolves to a concrete trait somewhere in the class
// chain. Results are cached per class.
func (e *Engine) classConforms(class Ref, iface Ref) bool {
	cd := e.arena.Get(class).(*ClassData)
	if cd.conforms == nil {
		cd.conforms = make(map[Ref]bool)
	} else if hit, ok := cd.conforms[iface]; ok {
		return hit
	}
	result := false
	for _, declared := range cd.Interfaces {
		if declared == iface || e.interfaceExtends(declared, iface) {
			result = e.implementsInterface(class, iface)
			break
		}
	}
	if !result && cd.Super != NilRef {
		result = e.classConforms(cd.Super, iface)
	}
	cd.conforms[iface] = result
	return result
}

// implementsInterface verifies that each method, getter and setter trait the
// interface (and the interfaces it extends) declares resolves to a trait of
// the same shape in the class chain. Slot traits do not satisfy a method
// name.
func (e *Engine) implementsInterface(class Ref, iface Ref) bool {
	id := e.arena.Get(iface).(*ClassData)
	for i := range id.InstanceTraits {
		t := &id.InstanceTraits[i]
		switch t.Kind {
		case TraitDefMethod, TraitDefGetter, TraitDefSetter:
		default:
			continue
		}
		impl, ok := e.resolveTrait(class, t.Name)
		if !ok || (impl.Kind != TraitDefMethod && impl.Kind != TraitDefGetter) {
			return false
		}
	}
	for _, parent := range id.Interfaces {
		if !e.implementsInterface(class, parent) {
			return false
		}
	}
	return true
}

func (e *Engine) interfaceExtends(iface Ref, target Ref) bool {
	id := e.arena.Get(iface).(*ClassData)
	for _, parent := range id.Interfaces {
		if parent == target || e.interfaceExtends(parent, target) {
			return true
		}
	}
	return false
}
