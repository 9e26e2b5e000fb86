package avm1

// Opcodes of the stack dialect. Every operation reads and writes the operand
// stack; the only register traffic is the explicit store/push pair. Operands
// are little-endian: u16 pool indices and argument counts, s16 relative jump
// offsets measured from the end of the instruction.
const (
	OpNop byte = iota

	// Pushes
	OpPushUndefined
	OpPushNull
	OpPushTrue
	OpPushFalse
	OpPushInt    // u16 int pool index
	OpPushDouble // u16 double pool index
	OpPushString // u16 string pool index
	OpPushRegister
	OpStoreRegister // u8 register; value stays on the stack

	// Stack shuffling
	OpPop
	OpDup
	OpSwap

	// First-generation arithmetic: both operands coerce to Number
	// unconditionally, so "1" + "2" is 3 here.
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpEquals // numeric equality
	OpLess   // numeric less-than

	// Second-generation, type-aware operations.
	OpAdd2
	OpEquals2
	OpStrictEquals
	OpLess2
	OpGreater2

	OpIncrement
	OpDecrement
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpShiftRightUnsigned

	OpNot
	OpToNumber
	OpToString
	OpToInteger
	OpTypeOf
	OpInstanceOf

	// Control flow
	OpJump // s16 offset
	OpIf   // s16 offset, taken when the popped condition is truthy

	// Variables resolve against the scope chain, innermost first, falling
	// through to the global object.
	OpGetVariable
	OpSetVariable
	OpDefineLocal

	// Members
	OpGetMember    // pops name, object
	OpSetMember    // pops value, name, object
	OpDeleteMember // pops name, object; pushes success
	OpInitObject   // u16 pair count; pops name,value pairs
	OpInitArray    // u16 element count
	OpEnumerate    // pops object; pushes array of enumerable names

	// Calls. Arguments are pushed first, leftmost deepest.
	OpCallFunction // u16 argc; pops callee, then argc arguments
	OpCallMethod   // u16 argc; pops name, object, then argc arguments
	OpNewObject    // u16 argc; pops constructor, then argc arguments
	OpReturn

	OpDefineFunction // u16 method pool index; pushes a closure over the current scope

	// With-scopes
	OpPushScope // pops an object onto the scope chain
	OpPopScope

	// Exceptions
	OpThrow
	OpEndFinally

	OpTrace // pops a value and reports it through the global trace hook
)

var opNames = [...]string{
	OpNop:                "nop",
	OpPushUndefined:      "push_undefined",
	OpPushNull:           "push_null",
	OpPushTrue:           "push_true",
	OpPushFalse:          "push_false",
	OpPushInt:            "push_int",
	OpPushDouble:         "push_double",
	OpPushString:         "push_string",
	OpPushRegister:       "push_register",
	OpStoreRegister:      "store_register",
	OpPop:                "pop",
	OpDup:                "dup",
	OpSwap:               "swap",
	OpAdd:                "add",
	OpSubtract:           "subtract",
	OpMultiply:           "multiply",
	OpDivide:             "divide",
	OpModulo:             "modulo",
	OpEquals:             "equals",
	OpLess:               "less",
	OpAdd2:               "add2",
	OpEquals2:            "equals2",
	OpStrictEquals:       "strict_equals",
	OpLess2:              "less2",
	OpGreater2:           "greater2",
	OpIncrement:          "increment",
	OpDecrement:          "decrement",
	OpBitAnd:             "bit_and",
	OpBitOr:              "bit_or",
	OpBitXor:             "bit_xor",
	OpShiftLeft:          "shift_left",
	OpShiftRight:         "shift_right",
	OpShiftRightUnsigned: "shift_right_unsigned",
	OpNot:                "not",
	OpToNumber:           "to_number",
	OpToString:           "to_string",
	OpToInteger:          "to_integer",
	OpTypeOf:             "type_of",
	OpInstanceOf:         "instance_of",
	OpJump:               "jump",
	OpIf:                 "if",
	OpGetVariable:        "get_variable",
	OpSetVariable:        "set_variable",
	OpDefineLocal:        "define_local",
	OpGetMember:          "get_member",
	OpSetMember:          "set_member",
	OpDeleteMember:       "delete_member",
	OpInitObject:         "init_object",
	OpInitArray:          "init_array",
	OpEnumerate:          "enumerate",
	OpCallFunction:       "call_function",
	OpCallMethod:         "call_method",
	OpNewObject:          "new_object",
	OpReturn:             "return",
	OpDefineFunction:     "define_function",
	OpPushScope:          "push_scope",
	OpPopScope:           "pop_scope",
	OpThrow:              "throw",
	OpEndFinally:         "end_finally",
	OpTrace:              "trace",
}

// OpName returns the mnemonic for an opcode.
func OpName(op byte) string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "unknown"
}

// operandWidth returns the byte count of an opcode's immediate operands.
func operandWidth(op byte) int {
	switch op {
	case OpPushInt, OpPushDouble, OpPushString, OpJump, OpIf,
		OpInitObject, OpInitArray, OpCallFunction, OpCallMethod,
		OpNewObject, OpDefineFunction:
		return 2
	case OpPushRegister, OpStoreRegister:
		return 1
	default:
		return 0
	}
}
