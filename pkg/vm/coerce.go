package vm

import (
	"math"
	"strconv"
	"strings"

	"lumen/pkg/errors"
)

// The coercion tables in this file reproduce the historical runtime's
// documented behavior, quirks included. Where that documentation is ambiguous
// (-0 formatting, NaN propagation), the observed behavior is preserved rather
// than corrected; the tests flag those rows explicitly.

// cleanExponentialFormat removes leading zeros from the exponent to match the
// runtime's format, e.g. "1e-07" -> "1e-7".
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				expStart := i + 2
				j := expStart
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

// numberToString implements the fixed shortest round-trip formatting
// algorithm: fixed notation within [1e-6, 1e21), exponential outside, with
// "-0" collapsing to "0".
func numberToString(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == 0 {
		// Collapses -0 as well; the sign is observable only through division.
		return "0"
	}
	absF := f
	if absF < 0 {
		absF = -absF
	}
	if absF < 1e-6 || absF >= 1e21 {
		exp := strconv.FormatFloat(f, 'e', -1, 64)
		return cleanExponentialFormat(exp)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseStringToNumber converts a string to a number following the runtime's
// rules: optional whitespace, hex with 0x prefix, decimal with scientific
// notation, case-sensitive Infinity. Everything else is NaN.
func parseStringToNumber(s string) float64 {
	str := strings.TrimSpace(s)
	if str == "" {
		return 0
	}

	neg := false
	body := str
	if strings.HasPrefix(body, "+") {
		body = body[1:]
	} else if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}

	if len(body) >= 2 && (strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X")) {
		if i, err := strconv.ParseUint(body[2:], 16, 64); err == nil {
			f := float64(i)
			if neg {
				f = -f
			}
			return f
		}
		return math.NaN()
	}

	if str == "Infinity" || str == "+Infinity" {
		return math.Inf(1)
	}
	if str == "-Infinity" {
		return math.Inf(-1)
	}
	// Infinity is case-sensitive; Go's ParseFloat is not.
	if low := strings.ToLower(body); low == "infinity" || low == "inf" || low == "nan" {
		return math.NaN()
	}

	if f, err := strconv.ParseFloat(str, 64); err == nil {
		return f
	}
	return math.NaN()
}

// --- Pure coercions (never re-enter the interpreter) ---

// ToBoolean implements the historical table: Undefined, Null, ±0, NaN and the
// empty string are false; every object reference is true.
func (v Value) ToBoolean() bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.payload == 1
	case TypeInteger:
		return int32(uint32(v.payload)) != 0
	case TypeUInteger:
		return uint32(v.payload) != 0
	case TypeNumber:
		f := math.Float64frombits(v.payload)
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return v.str.value != ""
	case TypeObject:
		return true
	default:
		return false
	}
}

// ToNumber coerces primitives. Object references yield NaN here; callers that
// must honor user valueOf/toString go through Engine.ToNumberValue, which may
// re-enter the interpreter.
func (v Value) ToNumber() float64 {
	switch v.typ {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean:
		if v.payload == 1 {
			return 1
		}
		return 0
	case TypeInteger, TypeUInteger, TypeNumber:
		return v.numericValue()
	case TypeString:
		return parseStringToNumber(v.str.value)
	default:
		return math.NaN()
	}
}

// ToString coerces primitives. Object references fall back to the generic
// rendering; Engine.ToStringValue consults the object's own toString.
func (v Value) ToString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.payload == 1 {
			return "true"
		}
		return "false"
	case TypeInteger:
		return strconv.FormatInt(int64(int32(uint32(v.payload))), 10)
	case TypeUInteger:
		return strconv.FormatUint(uint64(uint32(v.payload)), 10)
	case TypeNumber:
		return numberToString(math.Float64frombits(v.payload))
	case TypeString:
		return v.str.value
	case TypeObject:
		return "[object Object]"
	default:
		return "undefined"
	}
}

// float64ToInt32 truncates toward zero with two's-complement wraparound.
func float64ToInt32(f float64) int32 {
	return int32(float64ToUint32(f))
}

// float64ToUint32 truncates toward zero modulo 2^32.
func float64ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	f = math.Trunc(f)
	const two32 = 4294967296.0
	f = math.Mod(f, two32)
	if f < 0 {
		f += two32
	}
	return uint32(f)
}

// ToInt32 applies the Integer←Number rule to any primitive.
func (v Value) ToInt32() int32 {
	switch v.typ {
	case TypeInteger:
		return int32(uint32(v.payload))
	case TypeUInteger:
		return int32(uint32(v.payload))
	default:
		return float64ToInt32(v.ToNumber())
	}
}

// ToUint32 applies the UnsignedInteger←Number rule to any primitive.
func (v Value) ToUint32() uint32 {
	switch v.typ {
	case TypeInteger:
		return uint32(v.payload)
	case TypeUInteger:
		return uint32(v.payload)
	default:
		return float64ToUint32(v.ToNumber())
	}
}

// --- Engine coercions (may invoke user code) ---

// Hint selects the preferred primitive for ToPrimitive.
type Hint uint8

const (
	HintDefault Hint = iota
	HintNumber
	HintString
)

// ToPrimitive converts a value to a primitive. For objects this tries the
// user-visible valueOf / toString methods in hint order, so it can re-enter
// the interpreter; call sites must be prepared for arbitrary side effects.
func (e *Engine) ToPrimitive(v Value, hint Hint) (Value, error) {
	if v.typ != TypeObject {
		return v, nil
	}

	methods := [2]string{"valueOf", "toString"}
	if hint == HintString {
		methods = [2]string{"toString", "valueOf"}
	}

	for _, name := range methods {
		fn, err := e.GetProperty(v, name)
		if err != nil {
			if _, ok := err.(*errors.PropertyNotFoundError); ok {
				continue
			}
			return Undefined, err
		}
		if !e.IsCallable(fn) {
			continue
		}
		result, err := e.Call(fn, v, nil)
		if err != nil {
			return Undefined, err
		}
		if result.typ != TypeObject {
			return result, nil
		}
	}

	// No usable conversion method: default rendering keeps coercion total.
	return NewString(v.ToString()), nil
}

// ToNumberValue is the full Number coercion, including user valueOf.
func (e *Engine) ToNumberValue(v Value) (float64, error) {
	if v.typ != TypeObject {
		return v.ToNumber(), nil
	}
	prim, err := e.ToPrimitive(v, HintNumber)
	if err != nil {
		return 0, err
	}
	return prim.ToNumber(), nil
}

// ToStringValue is the full String coercion, including user toString.
func (e *Engine) ToStringValue(v Value) (string, error) {
	if v.typ != TypeObject {
		return v.ToString(), nil
	}
	prim, err := e.ToPrimitive(v, HintString)
	if err != nil {
		return "", err
	}
	return prim.ToString(), nil
}

// pinOperands roots object operands that live only in Go locals while a
// re-entrant conversion runs; without the pins, a collection inside a user
// valueOf would reclaim the operand not currently being converted. Returns
// the pin count for Arena.Unpin.
func (e *Engine) pinOperands(a, b Value) int {
	n := 0
	if a.typ == TypeObject {
		e.arena.Pin(a.Ref())
		n++
	}
	if b.typ == TypeObject {
		e.arena.Pin(b.Ref())
		n++
	}
	return n
}

// Add implements the mixed-type `+` rule: both operands go to primitives
// with the default hint; if either side is then a string, the result is
// string concatenation, otherwise numeric addition. Integer inputs stay
// integers when the sum does not overflow 32 bits.
func (e *Engine) Add(a, b Value) (Value, error) {
	pinned := e.pinOperands(a, b)
	defer e.arena.Unpin(pinned)

	pa, err := e.ToPrimitive(a, HintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := e.ToPrimitive(b, HintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.typ == TypeString || pb.typ == TypeString {
		return NewString(pa.ToString() + pb.ToString()), nil
	}
	if pa.typ == TypeInteger && pb.typ == TypeInteger {
		sum := int64(pa.AsInteger()) + int64(pb.AsInteger())
		if sum >= math.MinInt32 && sum <= math.MaxInt32 {
			return IntegerValue(int32(sum)), nil
		}
	}
	return NumberValue(pa.ToNumber() + pb.ToNumber()), nil
}

// Equals implements the historical loose equality, quirks intact:
// null == undefined, string-vs-number compares numerically, booleans coerce
// to numbers first, objects compare by reference against objects and through
// ToPrimitive against primitives.
func (e *Engine) Equals(a, b Value) (bool, error) {
	pinned := e.pinOperands(a, b)
	defer e.arena.Unpin(pinned)

	for {
		if a.typ == b.typ || (a.IsNumeric() && b.IsNumeric()) {
			return a.StrictEquals(b), nil
		}
		switch {
		case a.IsNullish() && b.IsNullish():
			return true, nil
		case a.IsNumeric() && b.typ == TypeString:
			return a.numericValue() == b.ToNumber(), nil
		case a.typ == TypeString && b.IsNumeric():
			return a.ToNumber() == b.numericValue(), nil
		case a.typ == TypeBoolean:
			a = NumberValue(a.ToNumber())
		case b.typ == TypeBoolean:
			b = NumberValue(b.ToNumber())
		case a.typ == TypeObject && (b.IsNumeric() || b.typ == TypeString):
			prim, err := e.ToPrimitive(a, HintDefault)
			if err != nil {
				return false, err
			}
			if prim.typ == TypeObject {
				return false, nil
			}
			a = prim
		case b.typ == TypeObject && (a.IsNumeric() || a.typ == TypeString):
			prim, err := e.ToPrimitive(b, HintDefault)
			if err != nil {
				return false, err
			}
			if prim.typ == TypeObject {
				return false, nil
			}
			b = prim
		default:
			return false, nil
		}
	}
}

// Compare implements the abstract relational comparison used by the less/
// greater opcodes. Returns (less, undefinedResult): undefinedResult is true
// whenever NaN is involved, and both dialects translate it to false.
func (e *Engine) Compare(a, b Value) (less bool, undefinedResult bool, err error) {
	pinned := e.pinOperands(a, b)
	defer e.arena.Unpin(pinned)

	pa, err := e.ToPrimitive(a, HintNumber)
	if err != nil {
		return false, false, err
	}
	pb, err := e.ToPrimitive(b, HintNumber)
	if err != nil {
		return false, false, err
	}
	if pa.typ == TypeString && pb.typ == TypeString {
		return pa.AsString() < pb.AsString(), false, nil
	}
	fa := pa.ToNumber()
	fb := pb.ToNumber()
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false, true, nil
	}
	return fa < fb, false, nil
}

// --- Declared-type coercion (typed slots, registers and parameters) ---

// CoerceType is the closed set of primitive type annotations the trait
// dialect can attach to slots, locals and parameters.
type CoerceType uint8

const (
	CoerceAny CoerceType = iota
	CoerceBoolean
	CoerceInt
	CoerceUInt
	CoerceNumber
	CoerceString
	CoerceObject // any object reference or null
)

func (t CoerceType) String() string {
	switch t {
	case CoerceAny:
		return "*"
	case CoerceBoolean:
		return "Boolean"
	case CoerceInt:
		return "int"
	case CoerceUInt:
		return "uint"
	case CoerceNumber:
		return "Number"
	case CoerceString:
		return "String"
	case CoerceObject:
		return "Object"
	default:
		return "?"
	}
}

// CoerceTo applies a declared-type coercion. String coercion of null and
// undefined yields Null (the declared-type rule), unlike ToStringValue which
// always produces a string.
func (e *Engine) CoerceTo(v Value, t CoerceType) (Value, error) {
	switch t {
	case CoerceAny:
		return v, nil
	case CoerceBoolean:
		return BooleanValue(v.ToBoolean()), nil
	case CoerceInt:
		f, err := e.ToNumberValue(v)
		if err != nil {
			return Undefined, err
		}
		return IntegerValue(float64ToInt32(f)), nil
	case CoerceUInt:
		f, err := e.ToNumberValue(v)
		if err != nil {
			return Undefined, err
		}
		return UIntegerValue(float64ToUint32(f)), nil
	case CoerceNumber:
		f, err := e.ToNumberValue(v)
		if err != nil {
			return Undefined, err
		}
		return NumberValue(f), nil
	case CoerceString:
		if v.IsNullish() {
			return Null, nil
		}
		s, err := e.ToStringValue(v)
		if err != nil {
			return Undefined, err
		}
		return NewString(s), nil
	case CoerceObject:
		if v.IsNullish() {
			return Null, nil
		}
		if v.typ != TypeObject {
			return Undefined, &errors.TypeMismatchError{Want: "Object", Got: v.typ.String()}
		}
		return v, nil
	default:
		return Undefined, &errors.InvariantError{Msg: "unknown coerce type"}
	}
}
