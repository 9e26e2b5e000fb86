package vm

import (
	"lumen/pkg/errors"
)

// NativeFunc is a host-provided function callable from script. Errors
// returned from natives propagate as thrown script exceptions, so scripts
// can catch them; *errors.InvariantError and *errors.AbortError stay fatal.
type NativeFunc func(e *Engine, this Value, args []Value) (Value, error)

// NewNativeFunction wraps a Go callback as a callable object. Arity is
// advisory: calls never fail on argument count, missing arguments arrive as
// Undefined.
func (e *Engine) NewNativeFunction(name string, arity int, fn NativeFunc) Value {
	d := &FunctionData{Name: name, Native: fn, Arity: arity}
	d.proto = e.defaultProto(KindFunction)
	d.bag = NewPropBag()
	return ObjectValue(e.arena.Allocate(d))
}

// NativeMethodDef declares one native member of a native-backed class.
type NativeMethodDef struct {
	Name   string
	Arity  int
	Func   NativeFunc
	Getter NativeFunc // accessor pair; when set, Func/Arity are ignored
	Setter NativeFunc
	Static bool
}

// NativeClassDef registers a class whose methods are Go callbacks but which
// scripts subclass and instantiate like any other class.
type NativeClassDef struct {
	Name      string
	SuperName string
	Ctor      NativeFunc // nil = default constructor
	Methods   []NativeMethodDef
	Sealed    bool
}

// RegisterNativeClass defines a class backed by native methods. Instances
// carry no trait slots; all behavior lives on the methods.
func (e *Engine) RegisterNativeClass(def NativeClassDef) (Value, error) {
	cd := &ClassData{
		Name:      def.Name,
		SuperName: def.SuperName,
		Sealed:    def.Sealed,
		state:     classReady,
	}
	cd.proto = Null
	cd.sealed = true
	cd.instanceIndex = make(map[string]int)
	cd.staticIndex = make(map[string]int)

	if def.Ctor != nil {
		cd.Ctor = e.NewNativeFunction(def.Name, -1, def.Ctor)
	}

	for _, m := range def.Methods {
		t := Trait{Name: m.Name}
		switch {
		case m.Getter != nil || m.Setter != nil:
			t.Kind = TraitDefGetter
			if m.Getter != nil {
				t.Method = e.NewNativeFunction("get "+m.Name, 0, m.Getter)
			}
			if m.Setter != nil {
				t.Setter = e.NewNativeFunction("set "+m.Name, 1, m.Setter)
			}
		default:
			t.Kind = TraitDefMethod
			t.Method = e.NewNativeFunction(m.Name, m.Arity, m.Func)
		}
		if m.Static {
			cd.staticIndex[t.Name] = len(cd.StaticTraits)
			cd.StaticTraits = append(cd.StaticTraits, t)
		} else {
			cd.instanceIndex[t.Name] = len(cd.InstanceTraits)
			cd.InstanceTraits = append(cd.InstanceTraits, t)
		}
	}

	if def.SuperName != "" {
		super, ok := e.classes[def.SuperName]
		if !ok {
			return Undefined, &errors.PropertyNotFoundError{Object: "class registry", Property: def.SuperName}
		}
		cd.Super = super
		superData := e.arena.Get(super).(*ClassData)
		cd.slotCount = superData.slotCount
	}

	ref := e.arena.Allocate(cd)
	e.registerClass(def.Name, ref)
	return ObjectValue(ref), nil
}
