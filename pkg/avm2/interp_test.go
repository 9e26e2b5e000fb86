package avm2

import (
	"testing"

	"lumen/pkg/vm"
)

func newEngine(opts ...vm.Option) *vm.Engine {
	e := vm.NewEngine(opts...)
	e.RegisterExecutor(New())
	return e
}

func run(t *testing.T, e *vm.Engine, m *vm.Method, args ...vm.Value) vm.Value {
	t.Helper()
	v, err := e.Call(e.NewFunction(m, nil, ""), vm.Undefined, args)
	if err != nil {
		t.Fatalf("%s: %v", m.Name, err)
	}
	return v
}

func TestTypedParameters(t *testing.T) {
	e := newEngine()

	// An int parameter coerces its argument on entry.
	m := NewBuilder("typed").Param("n", vm.CoerceInt).
		GetLocal(1).Op(OpReturnValue).Build()
	if v := run(t, e, m, vm.NewString("5")); !v.StrictEquals(vm.IntegerValue(5)) {
		t.Errorf("typed param = %s, want int 5", v.Inspect())
	}

	// Defaults fill missing arguments.
	m = NewBuilder("defaulted").ParamDefault("n", vm.CoerceAny, vm.IntegerValue(7)).
		GetLocal(1).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(7)) {
		t.Errorf("default param = %s", v.Inspect())
	}

	// Rest collects the overflow.
	m = NewBuilder("rest").Param("first", vm.CoerceAny).Rest().
		GetLocal(2).GetProperty("length").Op(OpReturnValue).Build()
	v := run(t, e, m, vm.IntegerValue(1), vm.IntegerValue(2), vm.IntegerValue(3))
	if !v.StrictEquals(vm.IntegerValue(2)) {
		t.Errorf("rest length = %s, want 2", v.Inspect())
	}
}

func TestObjectLiteralSurvivesNameConversion(t *testing.T) {
	e := newEngine()

	// A key object's toString runs while the literal under construction is
	// reachable from nothing but the pin; a collection there must not
	// reclaim it.
	key := e.NewPlainObject(vm.NilRef, false)
	toString := e.NewNativeFunction("toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		e.Arena().Collect()
		return vm.NewString("k"), nil
	})
	if err := e.SetProperty(key, "toString", toString); err != nil {
		t.Fatal(err)
	}
	e.Globals().Set("key", key)

	m := NewBuilder("literal").
		GetLex("key").Int(7).NewObjectLit(1).
		GetProperty("k").
		Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(7)) {
		t.Errorf("literal member = %s, want 7", v.Inspect())
	}
}

func TestTypedLocals(t *testing.T) {
	e := newEngine()

	// set_local coerces through the register's declared type.
	m := NewBuilder("locals").Registers(3).LocalType(2, vm.CoerceNumber).
		String("2.5").SetLocal(2).
		GetLocal(2).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NumberValue(2.5)) {
		t.Errorf("typed local = %s, want 2.5", v.Inspect())
	}

	// Kill resets to Undefined.
	m = NewBuilder("kill").Registers(3).
		Short(1).SetLocal(2).Kill(2).
		GetLocal(2).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.IsUndefined() {
		t.Errorf("killed local = %s", v.Inspect())
	}
}

func TestArithmetic(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  vm.Value
	}{
		{"add_strings", func(b *Builder) *Builder { return b.Short(5).String("x").Op(OpAdd) }, vm.NewString("5x")},
		{"add_ints", func(b *Builder) *Builder { return b.Short(2).Short(3).Op(OpAdd) }, vm.IntegerValue(5)},
		{"addi_wraps", func(b *Builder) *Builder { return b.Int(2147483647).Short(1).Op(OpAddI) }, vm.IntegerValue(-2147483648)},
		{"subtract", func(b *Builder) *Builder { return b.Short(5).Short(3).Op(OpSubtract) }, vm.NumberValue(2)},
		{"negate", func(b *Builder) *Builder { return b.Short(5).Op(OpNegate) }, vm.NumberValue(-5)},
		{"increment_i", func(b *Builder) *Builder { return b.Number(2.9).Op(OpIncrementI) }, vm.IntegerValue(3)},
		{"bitnot", func(b *Builder) *Builder { return b.Short(0).Op(OpBitNot) }, vm.IntegerValue(-1)},
		{"ushr", func(b *Builder) *Builder { return b.Short(-1).Short(28).Op(OpShiftRightUnsigned) }, vm.UIntegerValue(15)},
	}
	for _, tt := range tests {
		m := tt.build(NewBuilder(tt.name)).Op(OpReturnValue).Build()
		if v := run(t, e, m); !v.StrictEquals(tt.want) {
			t.Errorf("%s = %s, want %s", tt.name, v.Inspect(), tt.want.Inspect())
		}
	}
}

func TestRelational(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  vm.Value
	}{
		{"lt", func(b *Builder) *Builder { return b.Short(1).Short(2).Op(OpLessThan) }, vm.True},
		{"le_equal", func(b *Builder) *Builder { return b.Short(2).Short(2).Op(OpLessEquals) }, vm.True},
		{"gt", func(b *Builder) *Builder { return b.Short(3).Short(2).Op(OpGreaterThan) }, vm.True},
		{"ge", func(b *Builder) *Builder { return b.Short(1).Short(2).Op(OpGreaterEquals) }, vm.False},
		{"nan_poisons", func(b *Builder) *Builder { return b.Op(OpPushNaN).Short(1).Op(OpLessEquals) }, vm.False},
	}
	for _, tt := range tests {
		m := tt.build(NewBuilder(tt.name)).Op(OpReturnValue).Build()
		if v := run(t, e, m); !v.StrictEquals(tt.want) {
			t.Errorf("%s = %s, want %s", tt.name, v.Inspect(), tt.want.Inspect())
		}
	}
}

func TestObjectAndArrayLiterals(t *testing.T) {
	e := newEngine()

	m := NewBuilder("obj").
		String("a").Short(1).
		String("b").Short(2).
		NewObjectLit(2).
		GetProperty("b").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(2)) {
		t.Errorf("object literal = %s", v.Inspect())
	}

	m = NewBuilder("arr").
		Short(10).Short(20).NewArrayLit(2).
		GetProperty("0").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(10)) {
		t.Errorf("array literal = %s", v.Inspect())
	}

	m = NewBuilder("del").
		String("a").Short(1).NewObjectLit(1).
		DeleteProperty("a").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.True) {
		t.Errorf("delete = %s", v.Inspect())
	}
}

func TestScopeAndLex(t *testing.T) {
	e := newEngine()
	e.Globals().Set("answer", vm.IntegerValue(42))

	m := NewBuilder("lex").GetLex("answer").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(42)) {
		t.Errorf("getlex = %s", v.Inspect())
	}

	// find_property falls back to the global holder without erroring.
	m = NewBuilder("find").FindProperty("no_such").GetProperty("no_such").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.IsUndefined() {
		t.Errorf("findproperty fallback = %s", v.Inspect())
	}

	// The strict variant errors; the dispatcher converts it into a
	// ReferenceError-shaped thrown object.
	m = NewBuilder("strict").FindPropStrict("no_such").Op(OpReturnValue).Build()
	_, err := e.Call(e.NewFunction(m, nil, ""), vm.Undefined, nil)
	exc, ok := vm.ThrownValue(err)
	if !ok {
		t.Fatalf("expected thrown script error, got %v", err)
	}
	name, _ := e.GetProperty(exc, "name")
	if !name.StrictEquals(vm.NewString("ReferenceError")) {
		t.Errorf("strict miss name = %s", name.Inspect())
	}

	// Pushed scopes resolve before globals.
	m = NewBuilder("scoped").
		String("answer").Short(1).NewObjectLit(1).Op(OpPushScope).
		GetLex("answer").Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("scoped lex = %s", v.Inspect())
	}
}

func TestCallProperty(t *testing.T) {
	e := newEngine()

	calls := 0
	obj := e.NewPlainObject(vm.NilRef, false)
	fn := e.NewNativeFunction("bump", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		calls++
		return args[0], nil
	})
	if err := e.SetProperty(obj, "bump", fn); err != nil {
		t.Fatal(err)
	}
	e.Globals().Set("o", obj)

	m := NewBuilder("callprop").
		GetLex("o").Short(9).CallProperty("bump", 1).
		Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(9)) {
		t.Errorf("callproperty = %s", v.Inspect())
	}

	// The void variant discards the result and leaves the stack balanced.
	m = NewBuilder("callvoid").
		GetLex("o").Short(1).CallPropVoid("bump", 1).
		Short(3).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(3)) {
		t.Errorf("callpropvoid = %s", v.Inspect())
	}
	if calls != 2 {
		t.Errorf("method ran %d times, want 2", calls)
	}
}

func TestClassDefinitionAndConstruction(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	ctor := NewBuilder("Point$ctor").SharedPool(pool).
		Param("x", vm.CoerceNumber).
		GetLocal(0).GetLocal(1).InitProperty("x").
		Op(OpReturnVoid).Build()
	doubled := NewBuilder("Point$doubled").SharedPool(pool).
		GetLocal(0).GetProperty("x").
		GetLocal(0).GetProperty("x").
		Op(OpAdd).Op(OpReturnValue).Build()

	script := NewBuilder("script").SharedPool(pool)
	def := &vm.ClassDef{
		Name:   "Point",
		Sealed: true,
		InstanceTraits: []vm.TraitDef{
			{Name: "x", Kind: vm.TraitDefSlot, Type: vm.CoerceNumber, Default: vm.IntegerValue(0), MethodIndex: -1},
			{Name: "doubled", Kind: vm.TraitDefGetter, MethodIndex: script.AddMethod(doubled)},
		},
		CtorIndex:       script.AddMethod(ctor),
		StaticInitIndex: -1,
	}
	script.Class(def).SetLocal(1).
		GetLocal(1).Short(3).Construct(1).SetLocal(2).
		GetLocal(2).GetProperty("doubled").
		Op(OpReturnValue)

	if v := run(t, e, script.Build()); !v.StrictEquals(vm.NumberValue(6)) {
		t.Errorf("getter through class = %s", v.Inspect())
	}

	// The class registered under its name and its instances answer istype.
	if _, ok := e.LookupClass("Point"); !ok {
		t.Error("new_class must register the class by name")
	}
	again := NewBuilder("again").SharedPool(pool).Registers(3)
	again.Class(&vm.ClassDef{Name: "Marker", CtorIndex: -1, StaticInitIndex: -1}).SetLocal(1).
		GetLocal(1).Construct(0).IsType("Marker").
		Op(OpReturnValue)
	if v := run(t, e, again.Build()); !v.StrictEquals(vm.True) {
		t.Errorf("istype = %s", v.Inspect())
	}
}

func TestConstructSuper(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	baseCtor := NewBuilder("Base$ctor").SharedPool(pool).
		Param("v", vm.CoerceAny).
		GetLocal(0).GetLocal(1).InitProperty("base").
		Op(OpReturnVoid).Build()
	derivedCtor := NewBuilder("Derived$ctor").SharedPool(pool).
		Param("v", vm.CoerceAny).
		GetLocal(0).GetLocal(1).ConstructSuper("Derived", 1).
		GetLocal(0).String("own").InitProperty("tag").
		Op(OpReturnVoid).Build()

	script := NewBuilder("script").SharedPool(pool).Registers(3)
	baseDef := &vm.ClassDef{
		Name: "Base",
		InstanceTraits: []vm.TraitDef{
			{Name: "base", Kind: vm.TraitDefSlot, Type: vm.CoerceAny, MethodIndex: -1, Default: vm.Undefined},
			{Name: "tag", Kind: vm.TraitDefSlot, Type: vm.CoerceAny, MethodIndex: -1, Default: vm.Undefined},
		},
		CtorIndex:       script.AddMethod(baseCtor),
		StaticInitIndex: -1,
	}
	derivedDef := &vm.ClassDef{
		Name:            "Derived",
		SuperName:       "Base",
		CtorIndex:       script.AddMethod(derivedCtor),
		StaticInitIndex: -1,
	}
	script.Class(baseDef).Op(OpPop)
	script.Class(derivedDef).SetLocal(1).
		GetLocal(1).Short(9).Construct(1).SetLocal(2).
		GetLocal(2).GetProperty("base").
		GetLocal(2).GetProperty("tag").
		NewArrayLit(2).
		Op(OpReturnValue)

	v := run(t, e, script.Build())
	arr := e.Arena().Get(v.Ref()).(*vm.ArrayData)
	if !arr.Get(0).StrictEquals(vm.IntegerValue(9)) {
		t.Errorf("super ctor slot = %s, want 9", arr.Get(0).Inspect())
	}
	if !arr.Get(1).StrictEquals(vm.NewString("own")) {
		t.Errorf("derived ctor slot = %s", arr.Get(1).Inspect())
	}
}

func TestSlotAccess(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	script := NewBuilder("script").SharedPool(pool).Registers(3)
	def := &vm.ClassDef{
		Name:   "Box",
		Sealed: true,
		InstanceTraits: []vm.TraitDef{
			{Name: "v", Kind: vm.TraitDefSlot, Type: vm.CoerceAny, MethodIndex: -1, Default: vm.Undefined},
		},
		CtorIndex: -1, StaticInitIndex: -1,
	}
	script.Class(def).SetLocal(1).
		GetLocal(1).Construct(0).SetLocal(2).
		GetLocal(2).Short(5).SetSlot(0).
		GetLocal(2).GetSlot(0).
		Op(OpReturnValue)
	if v := run(t, e, script.Build()); !v.StrictEquals(vm.IntegerValue(5)) {
		t.Errorf("slot round trip = %s", v.Inspect())
	}
}

func TestConstTraitRejectsWrite(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	script := NewBuilder("script").SharedPool(pool).Registers(3)
	def := &vm.ClassDef{
		Name:   "Fixed",
		Sealed: true,
		InstanceTraits: []vm.TraitDef{
			{Name: "k", Kind: vm.TraitDefConst, Type: vm.CoerceAny, Default: vm.IntegerValue(1), MethodIndex: -1},
		},
		CtorIndex: -1, StaticInitIndex: -1,
	}
	handler := script.NewLabel()
	script.Class(def).SetLocal(1).
		GetLocal(1).Construct(0).SetLocal(2)
	tryStart := script.Pos()
	script.GetLocal(2).Short(9).SetProperty("k")
	tryEnd := script.Pos()
	script.Catch(tryStart, tryEnd, handler, "")
	script.Undefined().Op(OpReturnValue)
	script.Bind(handler)
	script.GetProperty("name").Op(OpReturnValue)

	if v := run(t, e, script.Build()); !v.StrictEquals(vm.NewString("TypeError")) {
		t.Errorf("const write error = %s", v.Inspect())
	}
}

func TestTypedCatchByClass(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	script := NewBuilder("script").SharedPool(pool).Registers(3)
	def := &vm.ClassDef{Name: "AppError", CtorIndex: -1, StaticInitIndex: -1}
	wrongH := script.NewLabel()
	rightH := script.NewLabel()
	script.Class(def).SetLocal(1)
	tryStart := script.Pos()
	script.GetLocal(1).Construct(0).Op(OpThrow)
	tryEnd := script.Pos()
	script.Catch(tryStart, tryEnd, wrongH, "String")
	script.Catch(tryStart, tryEnd, rightH, "AppError")
	script.Bind(wrongH)
	script.String("wrong").Op(OpReturnValue)
	script.Bind(rightH)
	script.GetLocal(1).Op(OpInstanceOf).Op(OpReturnValue)

	if v := run(t, e, script.Build()); !v.StrictEquals(vm.True) {
		t.Errorf("class-typed catch = %s", v.Inspect())
	}
}

func TestFinallyRunsOnceOnUnwinding(t *testing.T) {
	e := newEngine()
	e.Globals().Set("n", vm.IntegerValue(0))

	b := NewBuilder("finally")
	fin := b.NewLabel()
	tryStart := b.Pos()
	b.Short(42).Op(OpThrow)
	tryEnd := b.Pos()
	b.Finally(tryStart, tryEnd, fin)
	b.Bind(fin)
	b.FindProperty("n").GetLex("n").Short(1).Op(OpAdd).SetProperty("n")
	b.Op(OpEndFinally)

	_, err := e.Call(e.NewFunction(b.Build(), nil, ""), vm.Undefined, nil)
	exc, ok := vm.ThrownValue(err)
	if !ok || !exc.StrictEquals(vm.IntegerValue(42)) {
		t.Fatalf("propagated value = %v", err)
	}
	if n, _ := e.Globals().Get("n"); !n.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("finally ran %s times, want 1", n.Inspect())
	}
}

func TestCoerceOpcode(t *testing.T) {
	e := newEngine()

	m := NewBuilder("coerce").String("42").Coerce(vm.CoerceInt).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(42)) {
		t.Errorf("coerce int = %s", v.Inspect())
	}

	m = NewBuilder("coerce_bool").Short(0).Coerce(vm.CoerceBoolean).Op(OpReturnValue).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.False) {
		t.Errorf("coerce boolean = %s", v.Inspect())
	}
}

func TestClosures(t *testing.T) {
	e := newEngine()
	pool := &vm.ConstPool{}

	inner := NewBuilder("inner").SharedPool(pool).
		GetLex("captured").Op(OpReturnValue).Build()
	outer := NewBuilder("outer").SharedPool(pool).Registers(3)
	outer.String("captured").Short(99).NewObjectLit(1).Op(OpPushScope)
	outer.Function(inner).SetLocal(1)
	outer.GetLocal(1).Undefined().Call(0)
	outer.Op(OpReturnValue)

	if v := run(t, e, outer.Build()); !v.StrictEquals(vm.IntegerValue(99)) {
		t.Errorf("closure = %s", v.Inspect())
	}
}
