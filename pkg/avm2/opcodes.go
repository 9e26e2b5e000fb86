package avm2

// Opcodes of the trait dialect. Locals live in a typed register file with
// the receiver in register 0; property operations carry their name as a
// string-pool operand instead of popping it. Operands are little-endian u16
// unless noted; jumps are s16 relative to the end of the instruction.
const (
	OpNop byte = iota

	OpPushUndefined
	OpPushNull
	OpPushTrue
	OpPushFalse
	OpPushNaN
	OpPushShort  // s16 immediate integer
	OpPushInt    // u16 int pool index
	OpPushUInt   // u16 uint pool index
	OpPushDouble // u16 double pool index
	OpPushString // u16 string pool index

	OpGetLocal // u8 register
	OpSetLocal // u8 register; coerces through the register's declared type
	OpKill     // u8 register; resets to Undefined

	OpPop
	OpDup
	OpSwap

	// Arithmetic. add is the type-aware mixed rule; add_i stays in the
	// 32-bit integer domain with wraparound.
	OpAdd
	OpAddI
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpNegate
	OpIncrement
	OpDecrement
	OpIncrementI
	OpDecrementI

	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShiftLeft
	OpShiftRight
	OpShiftRightUnsigned

	OpEquals
	OpStrictEquals
	OpLessThan
	OpLessEquals
	OpGreaterThan
	OpGreaterEquals
	OpNot

	OpJump    // s16
	OpIfTrue  // s16
	OpIfFalse // s16

	OpReturnValue
	OpReturnVoid
	OpThrow
	OpEndFinally

	OpCoerce // u8 CoerceType
	OpTypeOf
	OpInstanceOf // pops class, value
	OpIsType     // u16 class name string index; pops value

	// Property traffic. The name operand indexes the string pool.
	OpGetProperty    // u16 name; pops object
	OpSetProperty    // u16 name; pops value, object
	OpInitProperty   // u16 name; pops value, object (may write consts once)
	OpDeleteProperty // u16 name; pops object, pushes success
	OpGetSlot        // u16 slot; pops object
	OpSetSlot        // u16 slot; pops value, object

	// Calls. Arguments are pushed leftmost-deepest above the receiver.
	OpCallProperty   // u16 name, u16 argc; pops argc args, object
	OpCallPropVoid   // u16 name, u16 argc; result discarded
	OpCall           // u16 argc; pops argc args, receiver, callee
	OpConstruct      // u16 argc; pops argc args, constructor
	OpConstructProp  // u16 name, u16 argc; pops argc args, object
	OpConstructSuper // u16 class name, u16 argc; pops argc args, receiver

	OpNewObject   // u16 pair count; pops name,value pairs
	OpNewArray    // u16 element count
	OpNewFunction // u16 method pool index
	OpNewClass    // u16 class pool index; defines and pushes the class

	// Scope stack
	OpPushScope
	OpPopScope
	OpGetScopeObject // u8 index from the bottom of the frame's chain
	OpFindProperty   // u16 name; pushes the scope object defining it, or the global
	OpFindPropStrict // u16 name; unresolvable names are an error
	OpGetLex         // u16 name; findpropstrict + getproperty

	OpTrace
)

var opNames = [...]string{
	OpNop:                "nop",
	OpPushUndefined:      "push_undefined",
	OpPushNull:           "push_null",
	OpPushTrue:           "push_true",
	OpPushFalse:          "push_false",
	OpPushNaN:            "push_nan",
	OpPushShort:          "push_short",
	OpPushInt:            "push_int",
	OpPushUInt:           "push_uint",
	OpPushDouble:         "push_double",
	OpPushString:         "push_string",
	OpGetLocal:           "get_local",
	OpSetLocal:           "set_local",
	OpKill:               "kill",
	OpPop:                "pop",
	OpDup:                "dup",
	OpSwap:               "swap",
	OpAdd:                "add",
	OpAddI:               "add_i",
	OpSubtract:           "subtract",
	OpMultiply:           "multiply",
	OpDivide:             "divide",
	OpModulo:             "modulo",
	OpNegate:             "negate",
	OpIncrement:          "increment",
	OpDecrement:          "decrement",
	OpIncrementI:         "increment_i",
	OpDecrementI:         "decrement_i",
	OpBitAnd:             "bit_and",
	OpBitOr:              "bit_or",
	OpBitXor:             "bit_xor",
	OpBitNot:             "bit_not",
	OpShiftLeft:          "shift_left",
	OpShiftRight:         "shift_right",
	OpShiftRightUnsigned: "shift_right_unsigned",
	OpEquals:             "equals",
	OpStrictEquals:       "strict_equals",
	OpLessThan:           "less_than",
	OpLessEquals:         "less_equals",
	OpGreaterThan:        "greater_than",
	OpGreaterEquals:      "greater_equals",
	OpNot:                "not",
	OpJump:               "jump",
	OpIfTrue:             "if_true",
	OpIfFalse:            "if_false",
	OpReturnValue:        "return_value",
	OpReturnVoid:         "return_void",
	OpThrow:              "throw",
	OpEndFinally:         "end_finally",
	OpCoerce:             "coerce",
	OpTypeOf:             "type_of",
	OpInstanceOf:         "instance_of",
	OpIsType:             "is_type",
	OpGetProperty:        "get_property",
	OpSetProperty:        "set_property",
	OpInitProperty:       "init_property",
	OpDeleteProperty:     "delete_property",
	OpGetSlot:            "get_slot",
	OpSetSlot:            "set_slot",
	OpCallProperty:       "call_property",
	OpCallPropVoid:       "call_prop_void",
	OpCall:               "call",
	OpConstruct:          "construct",
	OpConstructProp:      "construct_prop",
	OpConstructSuper:     "construct_super",
	OpNewObject:          "new_object",
	OpNewArray:           "new_array",
	OpNewFunction:        "new_function",
	OpNewClass:           "new_class",
	OpPushScope:          "push_scope",
	OpPopScope:           "pop_scope",
	OpGetScopeObject:     "get_scope_object",
	OpFindProperty:       "find_property",
	OpFindPropStrict:     "find_prop_strict",
	OpGetLex:             "get_lex",
	OpTrace:              "trace",
}

// OpName returns the mnemonic for an opcode.
func OpName(op byte) string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "unknown"
}

func operandWidth(op byte) int {
	switch op {
	case OpCallProperty, OpCallPropVoid, OpConstructProp, OpConstructSuper:
		return 4
	case OpPushShort, OpPushInt, OpPushUInt, OpPushDouble, OpPushString,
		OpJump, OpIfTrue, OpIfFalse, OpIsType,
		OpGetProperty, OpSetProperty, OpInitProperty, OpDeleteProperty,
		OpGetSlot, OpSetSlot, OpCall, OpConstruct,
		OpNewObject, OpNewArray, OpNewFunction, OpNewClass,
		OpFindProperty, OpFindPropStrict, OpGetLex:
		return 2
	case OpGetLocal, OpSetLocal, OpKill, OpCoerce, OpGetScopeObject:
		return 1
	default:
		return 0
	}
}
