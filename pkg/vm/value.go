package vm

import (
	"fmt"
	"math"
)

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeInteger  // 32-bit signed
	TypeUInteger // 32-bit unsigned
	TypeNumber   // double-precision float, including NaN/Infinity
	TypeString   // immutable, interned by content
	TypeObject   // managed reference into the arena
)

// String returns a human-readable string representation of the ValueType.
func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "int"
	case TypeUInteger:
		return "uint"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// StringObject is the interned backing store for string values. Two string
// Values with equal content always share the same *StringObject, so identity
// equality implies content equality and vice versa.
type StringObject struct {
	value string
}

// Value is the tagged representation of every script-visible value. Copyable
// by value; object references are managed-pointer aliases into the arena.
type Value struct {
	typ     ValueType
	payload uint64
	str     *StringObject
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = Value{typ: TypeNumber, payload: math.Float64bits(math.NaN())}
)

func NumberValue(value float64) Value {
	return Value{typ: TypeNumber, payload: math.Float64bits(value)}
}

func IntegerValue(value int32) Value {
	return Value{typ: TypeInteger, payload: uint64(uint32(value))}
}

func UIntegerValue(value uint32) Value {
	return Value{typ: TypeUInteger, payload: uint64(value)}
}

func BooleanValue(value bool) Value {
	if value {
		return True
	}
	return False
}

// ObjectValue wraps an arena reference. The zero Ref is not a valid object.
func ObjectValue(ref Ref) Value {
	return Value{typ: TypeObject, payload: uint64(ref.index)<<32 | uint64(ref.gen)}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsObject() bool    { return v.typ == TypeObject }

// IsNullish reports undefined or null.
func (v Value) IsNullish() bool { return v.typ == TypeUndefined || v.typ == TypeNull }

// IsNumeric reports whether the value is one of the three numeric variants.
func (v Value) IsNumeric() bool {
	return v.typ == TypeInteger || v.typ == TypeUInteger || v.typ == TypeNumber
}

func (v Value) AsBoolean() bool {
	if v.typ != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.payload == 1
}

func (v Value) AsInteger() int32 {
	if v.typ != TypeInteger {
		panic("value is not an integer")
	}
	return int32(uint32(v.payload))
}

func (v Value) AsUInteger() uint32 {
	if v.typ != TypeUInteger {
		panic("value is not an unsigned integer")
	}
	return uint32(v.payload)
}

func (v Value) AsNumber() float64 {
	if v.typ != TypeNumber {
		panic("value is not a number")
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return v.str.value
}

// Ref unpacks the arena reference from an object value.
func (v Value) Ref() Ref {
	if v.typ != TypeObject {
		panic("value is not an object reference")
	}
	return Ref{index: uint32(v.payload >> 32), gen: uint32(v.payload)}
}

// StrictEquals compares two values without coercion, except that the three
// numeric variants compare as one numeric type. NaN !== NaN; +0 === -0.
func (v Value) StrictEquals(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		vf := v.numericValue()
		of := other.numericValue()
		if math.IsNaN(vf) || math.IsNaN(of) {
			return false
		}
		return vf == of
	}

	if v.typ != other.typ {
		return false
	}

	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return v.payload == other.payload
	case TypeString:
		// Interning makes pointer identity equivalent to content equality.
		return v.str == other.str
	case TypeObject:
		return v.payload == other.payload
	default:
		return false
	}
}

// SameObject reports whether both values alias the same managed object.
func (v Value) SameObject(other Value) bool {
	return v.typ == TypeObject && other.typ == TypeObject && v.payload == other.payload
}

// numericValue returns the float64 view of any numeric variant without
// allocating. Callers must check IsNumeric first.
func (v Value) numericValue() float64 {
	switch v.typ {
	case TypeInteger:
		return float64(int32(uint32(v.payload)))
	case TypeUInteger:
		return float64(uint32(v.payload))
	case TypeNumber:
		return math.Float64frombits(v.payload)
	default:
		panic("value is not numeric")
	}
}

// Inspect returns a developer-facing rendering used by the disassemblers and
// error messages. Object references render as an opaque handle; the engine's
// ToStringValue is the script-visible coercion.
func (v Value) Inspect() string {
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
		return fmt.Sprintf("%d", int32(uint32(v.payload)))
	case TypeUInteger:
		return fmt.Sprintf("%d", uint32(v.payload))
	case TypeNumber:
		return numberToString(math.Float64frombits(v.payload))
	case TypeString:
		return fmt.Sprintf("%q", v.str.value)
	case TypeObject:
		r := v.Ref()
		return fmt.Sprintf("<object #%d@%d>", r.index, r.gen)
	default:
		return fmt.Sprintf("<unknown type %d>", v.typ)
	}
}
