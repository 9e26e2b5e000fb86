package vm

import (
	"math"
	"testing"
)

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"}, // -0 collapses
		{1, "1"},
		{-1, "-1"},
		{0.5, "0.5"},
		{123456789, "123456789"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1e-6, "0.000001"},
		{1e-7, "1e-7"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := numberToString(tt.in); got != tt.want {
			t.Errorf("numberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStringToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  42  ", 42},
		{"3.25", 3.25},
		{"-7", -7},
		{"0x10", 16},
		{"-0xff", -255},
		{"1e3", 1000},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		if got := parseStringToNumber(tt.in); got != tt.want {
			t.Errorf("parseStringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// Infinity is case-sensitive; lowercase falls through to NaN, not
	// ParseFloat's permissive handling.
	for _, s := range []string{"infinity", "INFINITY", "inf", "nan", "bogus", "12abc"} {
		if got := parseStringToNumber(s); !math.IsNaN(got) {
			t.Errorf("parseStringToNumber(%q) = %v, want NaN", s, got)
		}
	}
}

func TestToBoolean(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Undefined, false},
		{Null, false},
		{False, false},
		{True, true},
		{IntegerValue(0), false},
		{IntegerValue(-1), true},
		{NumberValue(0), false},
		{NumberValue(math.Copysign(0, -1)), false},
		{NaN, false},
		{NumberValue(0.001), true},
		{NewString(""), false},
		{NewString("false"), true},
	}
	for _, tt := range tests {
		if got := tt.v.ToBoolean(); got != tt.want {
			t.Errorf("ToBoolean(%s) = %v, want %v", tt.v.Inspect(), got, tt.want)
		}
	}

	e := NewEngine()
	obj := e.NewPlainObject(NilRef, false)
	if !obj.ToBoolean() {
		t.Error("object reference must be truthy")
	}
}

func TestToInt32Wraparound(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{42.9, 42},
		{-42.9, -42},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{4294967296, 0},
		{4294967297, 1},
		{2147483648, -2147483648},
		{-1, -1},
	}
	for _, tt := range tests {
		if got := float64ToInt32(tt.in); got != tt.want {
			t.Errorf("float64ToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := float64ToUint32(-1); got != 4294967295 {
		t.Errorf("float64ToUint32(-1) = %d, want 4294967295", got)
	}
}

func TestEngineAdd(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		a, b Value
		want Value
	}{
		{IntegerValue(2), IntegerValue(3), IntegerValue(5)},
		{NewString("foo"), NewString("bar"), NewString("foobar")},
		{IntegerValue(5), NewString("x"), NewString("5x")},
		{NewString("1"), IntegerValue(2), NewString("12")},
		{NumberValue(0.5), IntegerValue(1), NumberValue(1.5)},
		{Undefined, IntegerValue(1), NaN},
		{Null, IntegerValue(1), IntegerValue(1)},
	}
	for _, tt := range tests {
		got, err := e.Add(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Add(%s, %s): %v", tt.a.Inspect(), tt.b.Inspect(), err)
		}
		if tt.want.Type() == TypeNumber && math.IsNaN(tt.want.AsNumber()) {
			if got.Type() != TypeNumber || !math.IsNaN(got.AsNumber()) {
				t.Errorf("Add(%s, %s) = %s, want NaN", tt.a.Inspect(), tt.b.Inspect(), got.Inspect())
			}
			continue
		}
		if !got.StrictEquals(tt.want) {
			t.Errorf("Add(%s, %s) = %s, want %s", tt.a.Inspect(), tt.b.Inspect(), got.Inspect(), tt.want.Inspect())
		}
	}

	// Integer addition overflowing 32 bits widens to Number instead of
	// wrapping.
	got, err := e.Add(IntegerValue(math.MaxInt32), IntegerValue(1))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type() != TypeNumber || got.AsNumber() != float64(math.MaxInt32)+1 {
		t.Errorf("overflowing int add = %s, want widened number", got.Inspect())
	}
}

func TestEngineEquals(t *testing.T) {
	e := NewEngine()
	obj := e.NewPlainObject(NilRef, false)

	tests := []struct {
		a, b Value
		want bool
	}{
		{Null, Undefined, true},
		{Undefined, Null, true},
		{Null, IntegerValue(0), false},
		{NewString("5"), IntegerValue(5), true},
		{IntegerValue(5), NewString("5"), true},
		{True, IntegerValue(1), true},
		{False, NewString("0"), true},
		{NaN, NaN, false},
		{IntegerValue(1), UIntegerValue(1), true},
		{NumberValue(1), IntegerValue(1), true},
		{obj, obj, true},
		{NewString("something"), obj, false},
	}
	for _, tt := range tests {
		got, err := e.Equals(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Equals(%s, %s): %v", tt.a.Inspect(), tt.b.Inspect(), err)
		}
		if got != tt.want {
			t.Errorf("Equals(%s, %s) = %v, want %v", tt.a.Inspect(), tt.b.Inspect(), got, tt.want)
		}
	}
}

func TestEqualsObjectToPrimitive(t *testing.T) {
	e := NewEngine()
	obj := e.NewPlainObject(NilRef, false)
	valueOf := e.NewNativeFunction("valueOf", 0, func(e *Engine, this Value, args []Value) (Value, error) {
		return IntegerValue(7), nil
	})
	if err := e.SetProperty(obj, "valueOf", valueOf); err != nil {
		t.Fatal(err)
	}

	got, err := e.Equals(obj, IntegerValue(7))
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("object with valueOf()=7 should loosely equal 7")
	}
}

func TestCoercionOperandsSurviveCollection(t *testing.T) {
	e := NewEngine()
	e.Arena().SetThreshold(1)

	// Each valueOf forces a full collection, so the operand not currently
	// being converted must stay rooted for the duration of the operation.
	operand := func(n int32) Value {
		obj := e.NewPlainObject(NilRef, false)
		valueOf := e.NewNativeFunction("valueOf", 0, func(e *Engine, this Value, args []Value) (Value, error) {
			e.Arena().Collect()
			return IntegerValue(n), nil
		})
		if err := e.SetProperty(obj, "valueOf", valueOf); err != nil {
			t.Fatal(err)
		}
		return obj
	}

	got, err := e.Add(operand(1), operand(2))
	if err != nil {
		t.Fatal(err)
	}
	if !got.StrictEquals(IntegerValue(3)) {
		t.Errorf("Add = %s, want 3", got.Inspect())
	}

	less, undef, err := e.Compare(operand(1), operand(2))
	if err != nil || !less || undef {
		t.Errorf("Compare: less=%v undef=%v err=%v", less, undef, err)
	}

	eq, err := e.Equals(operand(5), IntegerValue(5))
	if err != nil || !eq {
		t.Errorf("Equals = %v, %v", eq, err)
	}
}

func TestCompare(t *testing.T) {
	e := NewEngine()

	less, undef, err := e.Compare(IntegerValue(1), IntegerValue(2))
	if err != nil || !less || undef {
		t.Errorf("1 < 2: less=%v undef=%v err=%v", less, undef, err)
	}
	less, undef, err = e.Compare(NewString("a"), NewString("b"))
	if err != nil || !less || undef {
		t.Errorf("\"a\" < \"b\": less=%v undef=%v err=%v", less, undef, err)
	}
	// String-vs-number goes numeric.
	less, undef, err = e.Compare(NewString("10"), IntegerValue(9))
	if err != nil || less || undef {
		t.Errorf("\"10\" < 9: less=%v undef=%v err=%v", less, undef, err)
	}
	_, undef, err = e.Compare(NaN, IntegerValue(1))
	if err != nil || !undef {
		t.Errorf("NaN comparison must be undefined, got undef=%v err=%v", undef, err)
	}
}

func TestCoerceTo(t *testing.T) {
	e := NewEngine()

	v, err := e.CoerceTo(NewString("42"), CoerceInt)
	if err != nil || !v.StrictEquals(IntegerValue(42)) {
		t.Errorf("CoerceTo(\"42\", int) = %s, %v", v.Inspect(), err)
	}

	v, err = e.CoerceTo(IntegerValue(-1), CoerceUInt)
	if err != nil || !v.StrictEquals(UIntegerValue(4294967295)) {
		t.Errorf("CoerceTo(-1, uint) = %s, %v", v.Inspect(), err)
	}

	// Declared-type String coercion maps nullish to Null, not "null".
	v, err = e.CoerceTo(Undefined, CoerceString)
	if err != nil || !v.IsNull() {
		t.Errorf("CoerceTo(undefined, String) = %s, %v", v.Inspect(), err)
	}

	_, err = e.CoerceTo(IntegerValue(5), CoerceObject)
	if err == nil {
		t.Error("CoerceTo(5, Object) must fail")
	}

	v, err = e.CoerceTo(Null, CoerceObject)
	if err != nil || !v.IsNull() {
		t.Errorf("CoerceTo(null, Object) = %s, %v", v.Inspect(), err)
	}
}

func TestStrictEquals(t *testing.T) {
	if !IntegerValue(1).StrictEquals(NumberValue(1)) {
		t.Error("numeric variants compare as one type")
	}
	if !UIntegerValue(4294967295).StrictEquals(NumberValue(4294967295)) {
		t.Error("uint compares against number")
	}
	if NaN.StrictEquals(NaN) {
		t.Error("NaN !== NaN")
	}
	if !NumberValue(0).StrictEquals(NumberValue(math.Copysign(0, -1))) {
		t.Error("+0 === -0")
	}
	if IntegerValue(0).StrictEquals(False) {
		t.Error("0 !== false under strict comparison")
	}
}
