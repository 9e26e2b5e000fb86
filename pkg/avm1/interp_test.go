package avm1

import (
	stderrors "errors"
	"testing"

	"lumen/pkg/errors"
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

func TestLegacyArithmeticCoercesStrings(t *testing.T) {
	e := newEngine()

	// First-generation add is numeric even for strings.
	m := NewBuilder("legacy_add").String("1").String("2").Op(OpAdd).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NumberValue(3)) {
		t.Errorf("legacy \"1\"+\"2\" = %s, want 3", v.Inspect())
	}

	// The type-aware successor concatenates.
	m = NewBuilder("add2").String("1").String("2").Op(OpAdd2).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NewString("12")) {
		t.Errorf("add2 \"1\"+\"2\" = %s, want \"12\"", v.Inspect())
	}

	m = NewBuilder("legacy_eq").String("1").Int(1).Op(OpEquals).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.True) {
		t.Errorf("legacy equals = %s", v.Inspect())
	}
}

func TestComparisons(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  vm.Value
	}{
		{"less2_true", func(b *Builder) *Builder { return b.Int(1).Int(2).Op(OpLess2) }, vm.True},
		{"less2_strings", func(b *Builder) *Builder { return b.String("a").String("b").Op(OpLess2) }, vm.True},
		{"less2_undefined", func(b *Builder) *Builder { return b.Undefined().Int(1).Op(OpLess2) }, vm.False},
		{"greater2", func(b *Builder) *Builder { return b.Int(2).Int(1).Op(OpGreater2) }, vm.True},
		{"strict_eq_types", func(b *Builder) *Builder { return b.Int(0).Bool(false).Op(OpStrictEquals) }, vm.False},
		{"equals2_null_undef", func(b *Builder) *Builder { return b.Null().Undefined().Op(OpEquals2) }, vm.True},
	}
	for _, tt := range tests {
		m := tt.build(NewBuilder(tt.name)).Op(OpReturn).Build()
		if v := run(t, e, m); !v.StrictEquals(tt.want) {
			t.Errorf("%s = %s, want %s", tt.name, v.Inspect(), tt.want.Inspect())
		}
	}
}

func TestVariables(t *testing.T) {
	e := newEngine()

	// A write with no defining scope lands on the global object.
	m := NewBuilder("vars").Int(5).SetVar("score").GetVar("score").Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(5)) {
		t.Errorf("round trip = %s", v.Inspect())
	}
	if v, ok := e.Globals().Get("score"); !ok || !v.StrictEquals(vm.IntegerValue(5)) {
		t.Error("undeclared write must create a global")
	}

	// Unresolvable reads are Undefined, never errors.
	m = NewBuilder("missing").GetVar("no_such").Op(OpReturn).Build()
	if v := run(t, e, m); !v.IsUndefined() {
		t.Errorf("missing variable = %s", v.Inspect())
	}

	// DefineLocal pins the name to the activation, invisible outside.
	m = NewBuilder("local").String("hidden").Int(1).Op(OpDefineLocal).GetVar("hidden").Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("local read = %s", v.Inspect())
	}
	if _, ok := e.Globals().Get("hidden"); ok {
		t.Error("define_local leaked into globals")
	}
}

func TestCaseSensitivityByVersion(t *testing.T) {
	e := newEngine()

	// Below version 7, names resolve case-insensitively.
	m := NewBuilder("v6").Version(6).
		Int(10).SetVar("Score").
		GetVar("SCORE").Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(10)) {
		t.Errorf("v6 folded read = %s", v.Inspect())
	}

	// Version 7 is exact.
	e2 := newEngine()
	m = NewBuilder("v7").Version(7).
		Int(10).SetVar("Score").
		GetVar("SCORE").Op(OpReturn).Build()
	if v := run(t, e2, m); !v.IsUndefined() {
		t.Errorf("v7 read of wrong case = %s", v.Inspect())
	}
}

func TestMembers(t *testing.T) {
	e := newEngine()

	m := NewBuilder("members").
		InitObject(0).SetVar("o").
		GetVar("o").Int(42).SetMember("x").
		GetVar("o").GetMember("x").
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(42)) {
		t.Errorf("member round trip = %s", v.Inspect())
	}

	m = NewBuilder("delete").
		GetVar("o").String("x").Op(OpDeleteMember).
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.True) {
		t.Errorf("delete = %s", v.Inspect())
	}
}

func TestObjectAndArrayLiterals(t *testing.T) {
	e := newEngine()

	m := NewBuilder("obj").
		String("a").Int(1).
		String("b").Int(2).
		InitObject(2).
		GetMember("a").
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("literal member = %s", v.Inspect())
	}

	m = NewBuilder("arr").
		Int(10).Int(20).Int(30).InitArray(3).
		GetMember("length").
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(3)) {
		t.Errorf("array length = %s", v.Inspect())
	}

	m = NewBuilder("arr_index").
		Int(10).Int(20).Int(30).InitArray(3).
		GetMember("1").
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(20)) {
		t.Errorf("array element = %s", v.Inspect())
	}

	m = NewBuilder("enum").
		String("a").Int(1).String("b").Int(2).InitObject(2).
		Op(OpEnumerate).
		GetMember("length").
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(2)) {
		t.Errorf("enumerated names = %s", v.Inspect())
	}
}

func TestRegisters(t *testing.T) {
	e := newEngine()

	// store_register peeks; the value stays for the pop.
	m := NewBuilder("regs").
		Int(5).StoreRegister(1).Op(OpPop).
		PushRegister(1).PushRegister(1).Op(OpAdd2).
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(10)) {
		t.Errorf("register round trip = %s", v.Inspect())
	}
}

func TestBranches(t *testing.T) {
	e := newEngine()

	b := NewBuilder("branch")
	yes := b.NewLabel()
	b.Int(1).Int(2).Op(OpLess2).If(yes)
	b.String("not taken").Op(OpReturn)
	b.Bind(yes)
	b.String("taken").Op(OpReturn)
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("taken")) {
		t.Errorf("branch = %s", v.Inspect())
	}

	// Countdown loop: proves backward jumps.
	b = NewBuilder("loop")
	top := b.NewLabel()
	done := b.NewLabel()
	b.Int(5).SetVar("i").Int(0).SetVar("sum")
	b.Bind(top)
	b.GetVar("i").Int(0).Op(OpEquals2).If(done)
	b.GetVar("sum").GetVar("i").Op(OpAdd2).SetVar("sum")
	b.GetVar("i").Op(OpDecrement).SetVar("i")
	b.Jump(top)
	b.Bind(done)
	b.GetVar("sum").Op(OpReturn)
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NumberValue(15)) {
		t.Errorf("loop sum = %s", v.Inspect())
	}
}

func TestWithScope(t *testing.T) {
	e := newEngine()
	obj := e.NewPlainObject(vm.NilRef, false)
	if err := e.SetProperty(obj, "x", vm.IntegerValue(10)); err != nil {
		t.Fatal(err)
	}
	e.Globals().Set("o", obj)

	m := NewBuilder("with").
		GetVar("o").Op(OpPushScope).
		GetVar("x").
		Op(OpPopScope).
		Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(10)) {
		t.Errorf("with read = %s", v.Inspect())
	}

	// A write inside with lands on the scoped object, not globals.
	m = NewBuilder("with_write").
		GetVar("o").Op(OpPushScope).
		Int(11).SetVar("x").
		Op(OpPopScope).Build()
	run(t, e, m)
	v, _ := e.GetProperty(obj, "x")
	if !v.StrictEquals(vm.IntegerValue(11)) {
		t.Errorf("with write = %s", v.Inspect())
	}
	if _, ok := e.Globals().Get("x"); ok {
		t.Error("with write leaked into globals")
	}
}

func TestFunctionsAndClosures(t *testing.T) {
	e := newEngine()

	inner := NewBuilder("inner").GetVar("x").Op(OpReturn).Build()
	b := NewBuilder("outer")
	b.String("x").Int(99).Op(OpDefineLocal)
	b.Function(inner)
	b.CallFunction(0)
	b.Op(OpReturn)
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.IntegerValue(99)) {
		t.Errorf("closure read = %s", v.Inspect())
	}

	// Parameters bind by name on the activation.
	double := NewBuilder("double").GetVar("n").GetVar("n").Op(OpAdd2).Op(OpReturn).Build("n")
	e.Globals().Set("double", e.NewFunction(double, nil, "double"))
	m := NewBuilder("call").Int(21).GetVar("double").CallFunction(1).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(42)) {
		t.Errorf("call = %s", v.Inspect())
	}

	// The implicit arguments array sees every actual argument.
	argc := NewBuilder("argc").GetVar("arguments").GetMember("length").Op(OpReturn).Build()
	fn := e.NewFunction(argc, nil, "argc")
	v, err := e.Call(fn, vm.Undefined, []vm.Value{vm.IntegerValue(1), vm.IntegerValue(2), vm.IntegerValue(3)})
	if err != nil || !v.StrictEquals(vm.IntegerValue(3)) {
		t.Errorf("arguments.length = %s, %v", v.Inspect(), err)
	}
}

func TestCallMethod(t *testing.T) {
	e := newEngine()

	obj := e.NewPlainObject(vm.NilRef, false)
	hit := e.NewNativeFunction("hit", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.SameObject(obj) {
			t.Error("method call lost its receiver")
		}
		return vm.NewString("hit"), nil
	})
	if err := e.SetProperty(obj, "go", hit); err != nil {
		t.Fatal(err)
	}
	e.Globals().Set("o", obj)

	m := NewBuilder("call_method").GetVar("o").String("go").CallMethod(0).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NewString("hit")) {
		t.Errorf("call_method = %s", v.Inspect())
	}

	// Empty method name calls the object itself.
	fn := e.NewNativeFunction("f", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.IntegerValue(7), nil
	})
	e.Globals().Set("f", fn)
	m = NewBuilder("call_self").GetVar("f").String("").CallMethod(0).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.IntegerValue(7)) {
		t.Errorf("empty-name call = %s", v.Inspect())
	}
}

func TestCatch(t *testing.T) {
	e := newEngine()

	b := NewBuilder("catch")
	handler := b.NewLabel()
	tryStart := b.Pos()
	b.String("boom").Op(OpThrow)
	tryEnd := b.Pos()
	b.Catch(tryStart, tryEnd, handler, "")
	b.Undefined().Op(OpReturn) // skipped: the throw lands in the handler
	b.Bind(handler)
	b.Op(OpReturn) // thrown value is on the stack
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("boom")) {
		t.Errorf("caught value = %s", v.Inspect())
	}
}

func TestTypedCatchOrder(t *testing.T) {
	e := newEngine()

	// Two typed handlers over one range: the first matching type wins.
	b := NewBuilder("typed")
	numberH := b.NewLabel()
	stringH := b.NewLabel()
	tryStart := b.Pos()
	b.String("boom").Op(OpThrow)
	tryEnd := b.Pos()
	b.Catch(tryStart, tryEnd, numberH, "Number")
	b.Catch(tryStart, tryEnd, stringH, "String")
	b.Bind(numberH)
	b.String("number").Op(OpReturn)
	b.Bind(stringH)
	b.Op(OpPop).String("string").Op(OpReturn)
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("string")) {
		t.Errorf("typed dispatch = %s", v.Inspect())
	}
}

func TestFinallyRunsOnceOnUnwinding(t *testing.T) {
	e := newEngine()
	e.Globals().Set("n", vm.IntegerValue(0))

	b := NewBuilder("finally")
	fin := b.NewLabel()
	tryStart := b.Pos()
	b.Int(42).Op(OpThrow)
	tryEnd := b.Pos()
	b.Finally(tryStart, tryEnd, fin)
	b.Bind(fin)
	b.GetVar("n").Int(1).Op(OpAdd2).SetVar("n")
	b.Op(OpEndFinally)

	_, err := e.Call(e.NewFunction(b.Build(), nil, ""), vm.Undefined, nil)
	if err == nil {
		t.Fatal("the error must keep unwinding after the finally block")
	}
	exc, ok := vm.ThrownValue(err)
	if !ok || !exc.StrictEquals(vm.IntegerValue(42)) {
		t.Errorf("propagated value = %s (%v)", exc.Inspect(), err)
	}
	if n, _ := e.Globals().Get("n"); !n.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("finally ran %s times, want 1", n.Inspect())
	}
}

func TestFinallyThenOuterCatch(t *testing.T) {
	e := newEngine()
	e.Globals().Set("n", vm.IntegerValue(0))

	// Inner finally runs first, then the outer catch receives the original
	// value.
	b := NewBuilder("nested")
	fin := b.NewLabel()
	outer := b.NewLabel()
	tryStart := b.Pos()
	b.String("deep").Op(OpThrow)
	tryEnd := b.Pos()
	b.Finally(tryStart, tryEnd, fin)
	b.Catch(tryStart, tryEnd, outer, "")
	b.Bind(fin)
	b.GetVar("n").Int(1).Op(OpAdd2).SetVar("n")
	b.Op(OpEndFinally)
	b.Bind(outer)
	b.Op(OpReturn)

	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("deep")) {
		t.Errorf("outer catch = %s", v.Inspect())
	}
	if n, _ := e.Globals().Get("n"); !n.StrictEquals(vm.IntegerValue(1)) {
		t.Errorf("finally ran %s times, want 1", n.Inspect())
	}
}

func TestFinallyRunsEachUnwindingPass(t *testing.T) {
	e := newEngine()
	e.Globals().Set("n", vm.IntegerValue(0))
	e.Globals().Set("i", vm.IntegerValue(0))

	// Two passes through one try range: the finally must run on both, not
	// just the first.
	b := NewBuilder("loop_finally")
	top := b.NewLabel()
	fin := b.NewLabel()
	catch := b.NewLabel()
	b.Bind(top)
	tryStart := b.Pos()
	b.String("boom").Op(OpThrow)
	tryEnd := b.Pos()
	b.Finally(tryStart, tryEnd, fin)
	b.Catch(tryStart, tryEnd, catch, "")
	b.Bind(fin)
	b.GetVar("n").Int(1).Op(OpAdd2).SetVar("n")
	b.Op(OpEndFinally)
	b.Bind(catch)
	b.Op(OpPop)
	b.GetVar("i").Int(1).Op(OpAdd2).SetVar("i")
	b.GetVar("i").Int(2).Op(OpLess2).If(top)
	b.GetVar("n").Op(OpReturn)

	if v := run(t, e, b.Build()); !v.StrictEquals(vm.IntegerValue(2)) {
		t.Errorf("finally ran %s times across two passes, want 2", v.Inspect())
	}
}

func TestAbortUnwindsThroughFinally(t *testing.T) {
	e := newEngine()
	e.Globals().Set("cleaned", vm.False)
	e.Globals().Set("stop", e.NewNativeFunction("stop", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		e.Abort("host shutdown")
		return vm.Undefined, nil
	}))

	// The abort must still report to the host, but only after the finally
	// body has run to completion.
	b := NewBuilder("abort_finally")
	fin := b.NewLabel()
	tryStart := b.Pos()
	b.GetVar("stop").CallFunction(0).Op(OpPop)
	b.Op(OpNop)
	tryEnd := b.Pos()
	b.Finally(tryStart, tryEnd, fin)
	b.Undefined().Op(OpReturn)
	b.Bind(fin)
	b.Bool(true).SetVar("cleaned")
	b.Op(OpEndFinally)

	_, err := e.Call(e.NewFunction(b.Build(), nil, ""), vm.Undefined, nil)
	var ab *errors.AbortError
	if !stderrors.As(err, &ab) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if v, _ := e.Globals().Get("cleaned"); !v.StrictEquals(vm.True) {
		t.Error("finally body did not complete during the abort unwind")
	}
}

func TestObjectLiteralSurvivesNameConversion(t *testing.T) {
	e := newEngine()
	e.Arena().SetThreshold(1)

	// The literal under construction is reachable from nothing until the
	// final push; collections during the key's toString must not reclaim it.
	toString := NewBuilder("toString").String("k").Op(OpReturn).Build()

	b := NewBuilder("literal")
	b.InitObject(0).SetVar("key")
	b.GetVar("key").Function(toString).SetMember("toString")
	b.GetVar("key").Int(7).InitObject(1)
	b.GetMember("k")
	b.Op(OpReturn)

	if v := run(t, e, b.Build()); !v.StrictEquals(vm.IntegerValue(7)) {
		t.Errorf("literal member = %s, want 7", v.Inspect())
	}
}

func TestEngineErrorBecomesCatchable(t *testing.T) {
	e := newEngine()

	// Reading a member off null is a TypeMismatch; the dispatcher converts it
	// into a script error object once.
	b := NewBuilder("conv")
	handler := b.NewLabel()
	tryStart := b.Pos()
	b.Null().GetMember("x").Op(OpPop)
	tryEnd := b.Pos()
	b.Catch(tryStart, tryEnd, handler, "")
	b.Undefined().Op(OpReturn)
	b.Bind(handler)
	b.GetMember("name").Op(OpReturn)
	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("TypeError")) {
		t.Errorf("converted error name = %s", v.Inspect())
	}
}

func TestStackOverflowIsCatchable(t *testing.T) {
	e := newEngine(vm.WithMaxDepth(64))

	rec := NewBuilder("rec").GetVar("rec").CallFunction(0).Op(OpReturn).Build()
	e.Globals().Set("rec", e.NewFunction(rec, nil, "rec"))

	b := NewBuilder("outer")
	handler := b.NewLabel()
	tryStart := b.Pos()
	b.GetVar("rec").CallFunction(0).Op(OpPop)
	tryEnd := b.Pos()
	b.Catch(tryStart, tryEnd, handler, "")
	b.Undefined().Op(OpReturn)
	b.Bind(handler)
	b.GetMember("name").Op(OpReturn)

	if v := run(t, e, b.Build()); !v.StrictEquals(vm.NewString("Error")) {
		t.Errorf("overflow catch = %s", v.Inspect())
	}
	if e.Depth() != 0 {
		t.Errorf("stack not unwound, depth = %d", e.Depth())
	}
}

func TestInstructionBudgetIsNotCatchable(t *testing.T) {
	e := newEngine(vm.WithInstructionBudget(500))

	// try { while(true){} } catch {} — the abort must pass the catch-all.
	b := NewBuilder("spin")
	handler := b.NewLabel()
	top := b.NewLabel()
	tryStart := b.Pos()
	b.Bind(top)
	b.Jump(top)
	tryEnd := b.Pos()
	b.Catch(tryStart, tryEnd, handler, "")
	b.Bind(handler)
	b.String("caught").Op(OpReturn)

	_, err := e.Call(e.NewFunction(b.Build(), nil, ""), vm.Undefined, nil)
	var ab *errors.AbortError
	if !stderrors.As(err, &ab) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}

func TestTraceHook(t *testing.T) {
	e := newEngine()
	var messages []string
	e.Globals().Set("trace", e.NewNativeFunction("trace", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		messages = append(messages, args[0].AsString())
		return vm.Undefined, nil
	}))

	m := NewBuilder("trace").Int(5).Int(4).Op(OpMultiply).Op(OpTrace).Build()
	run(t, e, m)
	if len(messages) != 1 || messages[0] != "20" {
		t.Errorf("trace output = %v", messages)
	}
}

func TestTypeOfAndToString(t *testing.T) {
	e := newEngine()

	m := NewBuilder("typeof").String("s").Op(OpTypeOf).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NewString("string")) {
		t.Errorf("typeof = %s", v.Inspect())
	}

	m = NewBuilder("tostring").Number(2.5).Op(OpToString).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NewString("2.5")) {
		t.Errorf("to_string = %s", v.Inspect())
	}

	m = NewBuilder("toint").Number(2.9).Op(OpToInteger).Op(OpReturn).Build()
	if v := run(t, e, m); !v.StrictEquals(vm.NumberValue(2)) {
		t.Errorf("to_integer = %s", v.Inspect())
	}
}

func TestBitwise(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name string
		op   byte
		a, b int32
		want vm.Value
	}{
		{"and", OpBitAnd, 6, 3, vm.IntegerValue(2)},
		{"or", OpBitOr, 6, 3, vm.IntegerValue(7)},
		{"xor", OpBitXor, 6, 3, vm.IntegerValue(5)},
		{"shl", OpShiftLeft, 1, 4, vm.IntegerValue(16)},
		{"shr", OpShiftRight, -8, 1, vm.IntegerValue(-4)},
		{"ushr", OpShiftRightUnsigned, -1, 28, vm.UIntegerValue(15)},
	}
	for _, tt := range tests {
		m := NewBuilder(tt.name).Int(tt.a).Int(tt.b).Op(tt.op).Op(OpReturn).Build()
		if v := run(t, e, m); !v.StrictEquals(tt.want) {
			t.Errorf("%s = %s, want %s", tt.name, v.Inspect(), tt.want.Inspect())
		}
	}
}

func TestNewObjectFromFunction(t *testing.T) {
	e := newEngine()

	body := NewBuilder("Point")
	// this.x = arg
	body.PushRegister(0).GetVar("x").SetMember("x")
	m := body.Build("x")
	e.Globals().Set("Point", e.NewFunction(m, nil, "Point"))

	prog := NewBuilder("make").
		Int(3).GetVar("Point").NewObject(1).
		GetMember("x").
		Op(OpReturn).Build()
	if v := run(t, e, prog); !v.StrictEquals(vm.IntegerValue(3)) {
		t.Errorf("new f() = %s", v.Inspect())
	}
}
