package avm2

import (
	"fmt"
	"strings"

	"lumen/pkg/vm"
)

// Disassemble renders a trait-dialect method for debugging.
func Disassemble(m *vm.Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s (trait dialect, %d regs)\n", m.Name, m.NumRegs)

	code := m.Code
	for ip := 0; ip < len(code); {
		op := code[ip]
		fmt.Fprintf(&sb, "%6d  %-22s", ip, OpName(op))
		width := operandWidth(op)
		switch width {
		case 4:
			nameIdx := vm.ReadU16(code, ip+1)
			argc := vm.ReadU16(code, ip+3)
			name := "?"
			if int(nameIdx) < len(m.Pool.Strings) {
				name = m.Pool.Strings[nameIdx]
			}
			fmt.Fprintf(&sb, " %q argc=%d", name, argc)
		case 2:
			sb.WriteString(wideOperand(m.Pool, op, code, ip))
		case 1:
			sb.WriteString(narrowOperand(op, code[ip+1]))
		}
		sb.WriteByte('\n')
		ip += 1 + width
	}

	for i, h := range m.Handlers {
		kind := "catch"
		if h.IsFinally {
			kind = "finally"
		} else if h.TypeName != "" {
			kind = "catch " + h.TypeName
		}
		fmt.Fprintf(&sb, "handler %d: [%d,%d) -> %d (%s)\n", i, h.TryStart, h.TryEnd, h.Target, kind)
	}
	return sb.String()
}

func wideOperand(pool *vm.ConstPool, op byte, code []byte, ip int) string {
	switch op {
	case OpJump, OpIfTrue, OpIfFalse:
		off := vm.ReadS16(code, ip+1)
		return fmt.Sprintf(" -> %d", ip+3+int(off))
	case OpPushShort:
		return fmt.Sprintf(" %d", vm.ReadS16(code, ip+1))
	}

	idx := int(vm.ReadU16(code, ip+1))
	switch op {
	case OpPushInt:
		if idx < len(pool.Ints) {
			return fmt.Sprintf(" %d", pool.Ints[idx])
		}
	case OpPushUInt:
		if idx < len(pool.UInts) {
			return fmt.Sprintf(" %d", pool.UInts[idx])
		}
	case OpPushDouble:
		if idx < len(pool.Doubles) {
			return fmt.Sprintf(" %v", pool.Doubles[idx])
		}
	case OpPushString, OpGetProperty, OpSetProperty, OpInitProperty, OpDeleteProperty,
		OpFindProperty, OpFindPropStrict, OpGetLex, OpIsType:
		if idx < len(pool.Strings) {
			return fmt.Sprintf(" %q", pool.Strings[idx])
		}
	case OpNewFunction:
		if idx < len(pool.Methods) {
			return fmt.Sprintf(" <%s>", pool.Methods[idx].Name)
		}
	case OpNewClass:
		if idx < len(pool.Classes) {
			return fmt.Sprintf(" <class %s>", pool.Classes[idx].Name)
		}
	case OpCall, OpConstruct, OpNewObject, OpNewArray:
		return fmt.Sprintf(" argc=%d", idx)
	case OpGetSlot, OpSetSlot:
		return fmt.Sprintf(" slot=%d", idx)
	}
	return fmt.Sprintf(" #%d", idx)
}

func narrowOperand(op byte, operand byte) string {
	switch op {
	case OpGetLocal, OpSetLocal, OpKill:
		return fmt.Sprintf(" r%d", operand)
	case OpCoerce:
		return " " + vm.CoerceType(operand).String()
	case OpGetScopeObject:
		return fmt.Sprintf(" %d", operand)
	}
	return fmt.Sprintf(" %d", operand)
}
