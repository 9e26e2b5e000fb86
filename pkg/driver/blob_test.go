package driver

import (
	"testing"

	"lumen/pkg/avm1"
	"lumen/pkg/vm"
)

func buildGuarded(t *testing.T) *vm.Method {
	t.Helper()
	b := avm1.NewBuilder("guarded").Version(6)
	handler := b.NewLabel()
	start := b.Pos()
	b.String("boom").Op(avm1.OpThrow)
	end := b.Pos()
	b.Catch(start, end, handler, "")
	b.Bind(handler)
	b.Op(avm1.OpReturn) // the caught exception is on the stack
	return b.Build("who")
}

func TestMethodBlobRoundTrip(t *testing.T) {
	m := buildGuarded(t)

	data, err := SaveMethodBlob(m)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMethodBlob(data)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Name != m.Name || loaded.Dialect != m.Dialect || loaded.NumRegs != m.NumRegs {
		t.Errorf("header mismatch: %q/%d/%d", loaded.Name, loaded.Dialect, loaded.NumRegs)
	}
	if loaded.ScriptVersion != 6 {
		t.Errorf("script version = %d", loaded.ScriptVersion)
	}
	if len(loaded.Params) != 1 || loaded.Params[0].Name != "who" {
		t.Errorf("params = %+v", loaded.Params)
	}
	if len(loaded.Handlers) != 1 || loaded.Handlers[0] != m.Handlers[0] {
		t.Errorf("handlers = %+v, want %+v", loaded.Handlers, m.Handlers)
	}
	if len(loaded.Code) != len(m.Code) {
		t.Errorf("code length = %d, want %d", len(loaded.Code), len(m.Code))
	}

	// The decoded method is executable as-is.
	p := newPlayer(t, Options{})
	v, err := p.Invoke(loaded, vm.Undefined, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !v.StrictEquals(vm.NewString("boom")) {
		t.Errorf("loaded method returned %s", v.Inspect())
	}
}

func TestBlobNestedMethods(t *testing.T) {
	inner := avm1.NewBuilder("inner").Int(9).Op(avm1.OpReturn).Build()
	b := avm1.NewBuilder("outer")
	b.Function(inner).SetVar("f")
	b.GetVar("f").CallFunction(0)
	b.Op(avm1.OpReturn)
	m := b.Build()

	data, err := SaveMethodBlob(m)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMethodBlob(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Pool.Methods) != 1 || loaded.Pool.Methods[0].Name != "inner" {
		t.Fatalf("nested pool methods = %+v", loaded.Pool.Methods)
	}

	p := newPlayer(t, Options{})
	v, err := p.Invoke(loaded, vm.Undefined, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !v.StrictEquals(vm.IntegerValue(9)) {
		t.Errorf("nested call through loaded blob = %s", v.Inspect())
	}
}

func TestLoadMethodBlobRejectsGarbage(t *testing.T) {
	if _, err := LoadMethodBlob([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage input must fail to decode")
	}

	// Structurally valid CBOR with an out-of-range handler target.
	b := avm1.NewBuilder("bad").Int(1).Op(avm1.OpReturn)
	m := b.Build()
	m.Handlers = []vm.ExceptionHandler{{TryStart: 0, TryEnd: 2, Target: 99}}
	data, err := SaveMethodBlob(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMethodBlob(data); err == nil {
		t.Error("handler target past the code must be rejected")
	}

	m.Handlers = nil
	data, err = SaveMethodBlob(m)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMethodBlob(data)
	if err != nil {
		t.Fatal(err)
	}
	loadedBad := *loaded
	loadedBad.Dialect = 7
	if _, err := LoadMethodBlob(mustSave(t, &loadedBad)); err == nil {
		t.Error("unknown dialect must be rejected")
	}
}

func mustSave(t *testing.T, m *vm.Method) []byte {
	t.Helper()
	data, err := SaveMethodBlob(m)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
