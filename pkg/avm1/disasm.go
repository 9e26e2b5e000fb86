package avm1

import (
	"fmt"
	"strings"

	"lumen/pkg/vm"
)

// Disassemble renders a stack-dialect method for debugging: one instruction
// per line with resolved pool constants and jump targets.
func Disassemble(m *vm.Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s (stack dialect, v%d, %d regs)\n", m.Name, m.ScriptVersion, m.NumRegs)

	code := m.Code
	for ip := 0; ip < len(code); {
		op := code[ip]
		fmt.Fprintf(&sb, "%6d  %-22s", ip, OpName(op))
		width := operandWidth(op)
		switch {
		case width == 2 && (op == OpJump || op == OpIf):
			off := vm.ReadS16(code, ip+1)
			fmt.Fprintf(&sb, " -> %d", ip+3+int(off))
		case width == 2:
			idx := vm.ReadU16(code, ip+1)
			sb.WriteString(operandDetail(m.Pool, op, idx))
		case width == 1:
			fmt.Fprintf(&sb, " r%d", code[ip+1])
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

func operandDetail(pool *vm.ConstPool, op byte, idx uint16) string {
	i := int(idx)
	switch op {
	case OpPushInt:
		if i < len(pool.Ints) {
			return fmt.Sprintf(" %d", pool.Ints[i])
		}
	case OpPushDouble:
		if i < len(pool.Doubles) {
			return fmt.Sprintf(" %v", pool.Doubles[i])
		}
	case OpPushString:
		if i < len(pool.Strings) {
			return fmt.Sprintf(" %q", pool.Strings[i])
		}
	case OpDefineFunction:
		if i < len(pool.Methods) {
			return fmt.Sprintf(" <%s>", pool.Methods[i].Name)
		}
	case OpCallFunction, OpCallMethod, OpNewObject, OpInitObject, OpInitArray:
		return fmt.Sprintf(" argc=%d", i)
	}
	return fmt.Sprintf(" #%d", i)
}
