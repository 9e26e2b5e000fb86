package vm

import (
	"strconv"

	"lumen/pkg/errors"
)

// Property resolution order, for every read and write:
//
//  1. declared traits, walking the receiver's class chain subclass-first
//  2. the receiver's own dynamic property bag
//  3. the prototype chain (bags and accessors only; receivers keep their
//     identity, so a getter found on a prototype runs against the original
//     receiver)
//
// Sealed objects skip step 2 and report PropertyNotFound instead of falling
// through to Undefined.

// GetProperty reads a property with exact-case name matching.
func (e *Engine) GetProperty(obj Value, name string) (Value, error) {
	return e.GetPropertyFold(obj, name, false)
}

// GetPropertyFold reads a property; fold enables the legacy case-insensitive
// lookup used by pre-v7 scripts of the stack dialect.
func (e *Engine) GetPropertyFold(obj Value, name string, fold bool) (Value, error) {
	switch obj.Type() {
	case TypeUndefined, TypeNull:
		return Undefined, &errors.TypeMismatchError{
			Want: "Object", Got: obj.Type().String(),
			Msg: "cannot read property " + strconv.Quote(name) + " of " + obj.Type().String(),
		}
	case TypeObject:
		return e.getObjectProperty(obj, name, fold)
	default:
		return e.getPrimitiveProperty(obj, name, fold)
	}
}

func (e *Engine) getObjectProperty(obj Value, name string, fold bool) (Value, error) {
	data := e.arena.Get(obj.Ref())

	switch d := data.(type) {
	case *ClassData:
		return e.getStaticProperty(obj, d, name)
	case *ArrayData:
		if idx, ok := arrayIndex(name); ok {
			return d.Get(idx), nil
		}
		if name == "length" {
			return IntegerValue(int32(d.Length())), nil
		}
	case *FunctionData:
		if name == "length" {
			if d.IsNative() {
				return IntegerValue(int32(d.Arity)), nil
			}
			return IntegerValue(int32(len(d.Method.Params))), nil
		}
	case *NamespaceData:
		if name == "uri" {
			return NewString(d.URI), nil
		}
	}

	base := data.Base()

	// Declared traits, subclass shadows superclass.
	if base.class != NilRef {
		if t, ok := e.resolveTrait(base.class, name); ok {
			return e.readTrait(obj, base, t)
		}
	}

	// Own dynamic bag.
	if base.bag != nil {
		if entry, ok := base.bag.Get(name, fold); ok {
			return e.readBagEntry(obj, entry)
		}
	}

	// Prototype chain.
	for proto := base.proto; proto.Type() == TypeObject; {
		pb := e.arena.Get(proto.Ref()).Base()
		if pb.bag != nil {
			if entry, ok := pb.bag.Get(name, fold); ok {
				return e.readBagEntry(obj, entry)
			}
		}
		proto = pb.proto
	}

	if base.sealed {
		return Undefined, &errors.PropertyNotFoundError{Object: e.describeObject(obj), Property: name}
	}
	return Undefined, nil
}

// getStaticProperty resolves a name against a class object's static traits,
// walking superclasses. Touching any static forces initialization.
func (e *Engine) getStaticProperty(class Value, cd *ClassData, name string) (Value, error) {
	if err := e.EnsureInitialized(class.Ref()); err != nil {
		return Undefined, err
	}
	for cur := cd; ; {
		if t, ok := cur.ownStaticTrait(name); ok {
			switch t.Kind {
			case TraitDefSlot, TraitDefConst:
				return cur.statics[t.Slot], nil
			case TraitDefMethod:
				return e.NewBoundMethod(t.Method, class), nil
			case TraitDefGetter:
				if t.Method.IsUndefined() {
					return Undefined, &errors.TypeMismatchError{Want: "readable property", Got: "setter",
						Msg: "property " + name + " is write-only"}
				}
				return e.Call(t.Method, class, nil)
			}
		}
		if cur.Super == NilRef {
			break
		}
		cur = e.arena.Get(cur.Super).(*ClassData)
	}
	if name == "prototype" || name == "constructor" {
		return Undefined, nil
	}
	return Undefined, &errors.PropertyNotFoundError{Object: "class " + cd.Name, Property: name}
}

func (e *Engine) getPrimitiveProperty(obj Value, name string, fold bool) (Value, error) {
	if obj.Type() == TypeString && name == "length" {
		return IntegerValue(int32(len([]rune(obj.AsString())))), nil
	}
	proto, ok := e.primProtos[e.primProtoKey(obj.Type())]
	if !ok {
		return Undefined, nil
	}
	for proto.Type() == TypeObject {
		pb := e.arena.Get(proto.Ref()).Base()
		if pb.bag != nil {
			if entry, found := pb.bag.Get(name, fold); found {
				return e.readBagEntry(obj, entry)
			}
		}
		proto = pb.proto
	}
	return Undefined, nil
}

// primProtoKey collapses the numeric variants onto one prototype table key.
func (e *Engine) primProtoKey(t ValueType) ValueType {
	switch t {
	case TypeInteger, TypeUInteger:
		return TypeNumber
	default:
		return t
	}
}

func (e *Engine) readTrait(receiver Value, base *BaseObject, t *Trait) (Value, error) {
	switch t.Kind {
	case TraitDefSlot, TraitDefConst:
		return base.Slot(t.Slot), nil
	case TraitDefMethod:
		return e.NewBoundMethod(t.Method, receiver), nil
	case TraitDefGetter:
		if t.Method.IsUndefined() {
			return Undefined, &errors.TypeMismatchError{Want: "readable property", Got: "setter",
				Msg: "property " + t.Name + " is write-only"}
		}
		return e.Call(t.Method, receiver, nil)
	default:
		return Undefined, &errors.InvariantError{Msg: "unresolvable trait kind " + t.Kind.String()}
	}
}

func (e *Engine) readBagEntry(receiver Value, entry *bagEntry) (Value, error) {
	if !entry.hasAccessor {
		return entry.value, nil
	}
	if entry.getter.IsUndefined() || entry.getter.IsNull() {
		return Undefined, nil
	}
	return e.Call(entry.getter, receiver, nil)
}

// resolveTrait walks the class chain for an instance trait; the subclass's
// declaration shadows the superclass's.
func (e *Engine) resolveTrait(class Ref, name string) (*Trait, bool) {
	for cur := class; cur != NilRef; {
		cd := e.arena.Get(cur).(*ClassData)
		if t, ok := cd.ownTrait(name); ok {
			return t, true
		}
		cur = cd.Super
	}
	return nil, false
}

// SetProperty writes a property with exact-case name matching.
func (e *Engine) SetProperty(obj Value, name string, v Value) error {
	return e.setProperty(obj, name, v, false, false)
}

// SetPropertyFold writes a property with optional legacy case folding.
func (e *Engine) SetPropertyFold(obj Value, name string, v Value, fold bool) error {
	return e.setProperty(obj, name, v, fold, false)
}

// InitProperty is the constructor-time write: it may assign const slots once.
func (e *Engine) InitProperty(obj Value, name string, v Value) error {
	return e.setProperty(obj, name, v, false, true)
}

func (e *Engine) setProperty(obj Value, name string, v Value, fold bool, init bool) error {
	switch obj.Type() {
	case TypeUndefined, TypeNull:
		return &errors.TypeMismatchError{
			Want: "Object", Got: obj.Type().String(),
			Msg: "cannot set property " + strconv.Quote(name) + " of " + obj.Type().String(),
		}
	case TypeObject:
	default:
		// Writes to primitives are silently dropped; there is no boxed
		// receiver for them to land on.
		return nil
	}

	data := e.arena.Get(obj.Ref())

	switch d := data.(type) {
	case *ClassData:
		return e.setStaticProperty(obj, d, name, v, init)
	case *ArrayData:
		if idx, ok := arrayIndex(name); ok {
			e.arena.Mutate(obj.Ref(), func(ObjectData) { d.Set(idx, v) })
			return nil
		}
		if name == "length" {
			n, err := e.CoerceTo(v, CoerceInt)
			if err != nil {
				return err
			}
			e.arena.Mutate(obj.Ref(), func(ObjectData) { d.SetLength(int(n.AsInteger())) })
			return nil
		}
	}

	base := data.Base()

	if base.class != NilRef {
		if t, ok := e.resolveTrait(base.class, name); ok {
			return e.writeTrait(obj, base, t, v, init)
		}
	}

	// An accessor anywhere on the object or its prototype chain intercepts
	// the write before a new own property is created.
	if base.bag != nil {
		if entry, ok := base.bag.Get(name, fold); ok && entry.hasAccessor {
			return e.writeBagAccessor(obj, name, entry, v)
		}
	}
	for proto := base.proto; proto.Type() == TypeObject; {
		pb := e.arena.Get(proto.Ref()).Base()
		if pb.bag != nil {
			if entry, ok := pb.bag.Get(name, fold); ok && entry.hasAccessor {
				return e.writeBagAccessor(obj, name, entry, v)
			}
		}
		proto = pb.proto
	}

	if base.sealed {
		return &errors.PropertyNotFoundError{Object: e.describeObject(obj), Property: name}
	}
	e.arena.Mutate(obj.Ref(), func(data ObjectData) {
		data.Base().Bag().Set(name, v, fold)
	})
	return nil
}

func (e *Engine) setStaticProperty(class Value, cd *ClassData, name string, v Value, init bool) error {
	if err := e.EnsureInitialized(class.Ref()); err != nil {
		return err
	}
	for curRef := class.Ref(); ; {
		cur := e.arena.Get(curRef).(*ClassData)
		if t, ok := cur.ownStaticTrait(name); ok {
			switch t.Kind {
			case TraitDefConst:
				if !init {
					return &errors.TypeMismatchError{Want: "writable property", Got: "const",
						Msg: "illegal write to const " + name}
				}
				fallthrough
			case TraitDefSlot:
				coerced, err := e.coerceSlotWrite(v, t.Type)
				if err != nil {
					return err
				}
				slot := t.Slot
				e.arena.Mutate(curRef, func(data ObjectData) {
					data.(*ClassData).statics[slot] = coerced
				})
				return nil
			case TraitDefMethod:
				return &errors.TypeMismatchError{Want: "writable property", Got: "method",
					Msg: "illegal write to method " + name}
			case TraitDefGetter:
				if t.Setter.IsUndefined() {
					return &errors.TypeMismatchError{Want: "writable property", Got: "getter",
						Msg: "property " + name + " is read-only"}
				}
				_, err := e.Call(t.Setter, class, []Value{v})
				return err
			}
		}
		if cur.Super == NilRef {
			break
		}
		curRef = cur.Super
	}
	return &errors.PropertyNotFoundError{Object: "class " + cd.Name, Property: name}
}

func (e *Engine) writeTrait(obj Value, base *BaseObject, t *Trait, v Value, init bool) error {
	switch t.Kind {
	case TraitDefConst:
		if !init {
			return &errors.TypeMismatchError{Want: "writable property", Got: "const",
				Msg: "illegal write to const " + t.Name}
		}
		fallthrough
	case TraitDefSlot:
		coerced, err := e.coerceSlotWrite(v, t.Type)
		if err != nil {
			return err
		}
		e.arena.Mutate(obj.Ref(), func(data ObjectData) {
			data.Base().SetSlot(t.Slot, coerced)
		})
		return nil
	case TraitDefMethod:
		return &errors.TypeMismatchError{Want: "writable property", Got: "method",
			Msg: "illegal write to method " + t.Name}
	case TraitDefGetter:
		if t.Setter.IsUndefined() {
			return &errors.TypeMismatchError{Want: "writable property", Got: "getter",
				Msg: "property " + t.Name + " is read-only"}
		}
		_, err := e.Call(t.Setter, obj, []Value{v})
		return err
	default:
		return &errors.InvariantError{Msg: "unresolvable trait kind " + t.Kind.String()}
	}
}

// coerceSlotWrite applies a declared slot type to an incoming value.
func (e *Engine) coerceSlotWrite(v Value, t CoerceType) (Value, error) {
	if t == CoerceAny {
		return v, nil
	}
	return e.CoerceTo(v, t)
}

func (e *Engine) writeBagAccessor(obj Value, name string, entry *bagEntry, v Value) error {
	if entry.setter.IsUndefined() || entry.setter.IsNull() {
		return &errors.TypeMismatchError{Want: "writable property", Got: "getter",
			Msg: "property " + name + " is read-only"}
	}
	_, err := e.Call(entry.setter, obj, []Value{v})
	return err
}

// SetAccessor installs a dynamic getter/setter pair on an object.
func (e *Engine) SetAccessor(obj Value, name string, getter, setter Value) error {
	if obj.Type() != TypeObject {
		return &errors.TypeMismatchError{Want: "Object", Got: obj.Type().String()}
	}
	base := e.arena.Get(obj.Ref()).Base()
	if base.sealed {
		return &errors.PropertyNotFoundError{Object: e.describeObject(obj), Property: name}
	}
	e.arena.Mutate(obj.Ref(), func(data ObjectData) {
		data.Base().Bag().SetAccessor(name, getter, setter, false)
	})
	return nil
}

// CallProperty resolves a property and invokes it with the holder as the
// receiver. Trait methods skip the bound-method allocation.
func (e *Engine) CallProperty(obj Value, name string, args []Value) (Value, error) {
	return e.CallPropertyFold(obj, name, args, false)
}

func (e *Engine) CallPropertyFold(obj Value, name string, args []Value, fold bool) (Value, error) {
	if obj.Type() == TypeObject {
		data := e.arena.Get(obj.Ref())
		if base := data.Base(); base.class != NilRef {
			if t, ok := e.resolveTrait(base.class, name); ok && t.Kind == TraitDefMethod {
				return e.Call(t.Method, obj, args)
			}
		}
	}
	callee, err := e.GetPropertyFold(obj, name, fold)
	if err != nil {
		return Undefined, err
	}
	if !e.IsCallable(callee) {
		return Undefined, &errors.TypeMismatchError{
			Want: "Function", Got: e.TypeOf(callee),
			Msg: "property " + strconv.Quote(name) + " is not callable",
		}
	}
	return e.Call(callee, obj, args)
}

// DeleteProperty removes a dynamic property. Declared traits and sealed
// objects are not deletable; those report false rather than failing.
func (e *Engine) DeleteProperty(obj Value, name string, fold bool) (bool, error) {
	if obj.Type() != TypeObject {
		return false, nil
	}
	data := e.arena.Get(obj.Ref())
	base := data.Base()
	if base.class != NilRef {
		if _, ok := e.resolveTrait(base.class, name); ok {
			return false, nil
		}
	}
	if base.bag == nil {
		return false, nil
	}
	var removed bool
	e.arena.Mutate(obj.Ref(), func(data ObjectData) {
		removed = data.Base().Bag().Delete(name, fold)
	})
	return removed, nil
}

// HasProperty reports whether the name resolves on the object, a trait or
// the prototype chain.
func (e *Engine) HasProperty(obj Value, name string, fold bool) bool {
	if obj.Type() != TypeObject {
		if obj.IsNullish() {
			return false
		}
		v, err := e.getPrimitiveProperty(obj, name, fold)
		return err == nil && !v.IsUndefined()
	}
	data := e.arena.Get(obj.Ref())
	if d, ok := data.(*ArrayData); ok {
		if idx, found := arrayIndex(name); found {
			return idx < d.Length()
		}
		if name == "length" {
			return true
		}
	}
	base := data.Base()
	if base.class != NilRef {
		if _, ok := e.resolveTrait(base.class, name); ok {
			return true
		}
	}
	if base.bag != nil {
		if _, ok := base.bag.Get(name, fold); ok {
			return true
		}
	}
	for proto := base.proto; proto.Type() == TypeObject; {
		pb := e.arena.Get(proto.Ref()).Base()
		if pb.bag != nil {
			if _, ok := pb.bag.Get(name, fold); ok {
				return true
			}
		}
		proto = pb.proto
	}
	return false
}

// Enumerate returns the enumerable property names of an object: array
// indices in order, then dynamic bag names in insertion order. Declared
// traits do not enumerate.
func (e *Engine) Enumerate(obj Value) []string {
	if obj.Type() != TypeObject {
		return nil
	}
	data := e.arena.Get(obj.Ref())
	var names []string
	if d, ok := data.(*ArrayData); ok {
		for i := 0; i < d.Length(); i++ {
			names = append(names, strconv.Itoa(i))
		}
	}
	if bag := data.Base().Bag(); bag != nil {
		names = append(names, bag.Names()...)
	}
	return names
}

// describeObject names an object for error messages.
func (e *Engine) describeObject(obj Value) string {
	data := e.arena.Get(obj.Ref())
	if base := data.Base(); base.class != NilRef {
		if cd, ok := e.arena.Get(base.class).(*ClassData); ok {
			return cd.Name
		}
	}
	return data.Kind().String()
}

// arrayIndex parses a canonical non-negative integer property name.
func arrayIndex(name string) (int, bool) {
	if name == "" || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}
