package avm1

import (
	"lumen/pkg/vm"
)

// Builder assembles a stack-dialect method: instruction stream, constant
// pool and exception handler table. The driver's blob loader and the tests
// are its only producers; it exists so nothing outside the decoder ever
// hand-writes byte offsets.
type Builder struct {
	name    string
	version int
	numRegs int

	code     []byte
	pool     *vm.ConstPool
	handlers []vm.ExceptionHandler

	intIdx    map[int32]int
	doubleIdx map[float64]int
	stringIdx map[string]int

	patches []patch
	labels  []int // label id -> bound pc, -1 while unbound
}

type patch struct {
	at    int // offset of the s16 operand
	label int
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		version:   7,
		numRegs:   4,
		pool:      &vm.ConstPool{},
		intIdx:    make(map[int32]int),
		doubleIdx: make(map[float64]int),
		stringIdx: make(map[string]int),
	}
}

// Version sets the script version; versions below 7 resolve names
// case-insensitively.
func (b *Builder) Version(v int) *Builder {
	b.version = v
	return b
}

func (b *Builder) Registers(n int) *Builder {
	b.numRegs = n
	return b
}

// Op emits a bare opcode.
func (b *Builder) Op(op byte) *Builder {
	b.code = append(b.code, op)
	return b
}

func (b *Builder) opU16(op byte, operand uint16) *Builder {
	b.code = append(b.code, op, byte(operand), byte(operand>>8))
	return b
}

func (b *Builder) opU8(op byte, operand byte) *Builder {
	b.code = append(b.code, op, operand)
	return b
}

// --- Constant pushes ---

func (b *Builder) Int(v int32) *Builder {
	i, ok := b.intIdx[v]
	if !ok {
		i = len(b.pool.Ints)
		b.pool.Ints = append(b.pool.Ints, v)
		b.intIdx[v] = i
	}
	return b.opU16(OpPushInt, uint16(i))
}

func (b *Builder) Number(v float64) *Builder {
	i, ok := b.doubleIdx[v]
	if !ok {
		i = len(b.pool.Doubles)
		b.pool.Doubles = append(b.pool.Doubles, v)
		b.doubleIdx[v] = i
	}
	return b.opU16(OpPushDouble, uint16(i))
}

func (b *Builder) String(v string) *Builder {
	return b.opU16(OpPushString, uint16(b.stringIndex(v)))
}

func (b *Builder) stringIndex(v string) int {
	i, ok := b.stringIdx[v]
	if !ok {
		i = len(b.pool.Strings)
		b.pool.Strings = append(b.pool.Strings, v)
		b.stringIdx[v] = i
	}
	return i
}

func (b *Builder) Undefined() *Builder { return b.Op(OpPushUndefined) }
func (b *Builder) Null() *Builder      { return b.Op(OpPushNull) }
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Op(OpPushTrue)
	}
	return b.Op(OpPushFalse)
}

// --- Composite idioms ---

// GetVar pushes the variable's value: push name, get_variable.
func (b *Builder) GetVar(name string) *Builder {
	return b.String(name).Op(OpGetVariable)
}

// SetVar assigns the value on top of the stack to a variable.
// Emits: push name, swap, set_variable.
func (b *Builder) SetVar(name string) *Builder {
	return b.String(name).Op(OpSwap).Op(OpSetVariable)
}

// GetMember reads obj.name with the object on top of the stack.
func (b *Builder) GetMember(name string) *Builder {
	return b.String(name).Op(OpGetMember)
}

// SetMember assigns obj.name = value with object then value on the stack.
func (b *Builder) SetMember(name string) *Builder {
	// stack: obj value -> obj name value
	return b.String(name).Op(OpSwap).Op(OpSetMember)
}

func (b *Builder) CallFunction(argc int) *Builder {
	return b.opU16(OpCallFunction, uint16(argc))
}

func (b *Builder) CallMethod(argc int) *Builder {
	return b.opU16(OpCallMethod, uint16(argc))
}

func (b *Builder) NewObject(argc int) *Builder {
	return b.opU16(OpNewObject, uint16(argc))
}

func (b *Builder) InitObject(pairs int) *Builder {
	return b.opU16(OpInitObject, uint16(pairs))
}

func (b *Builder) InitArray(count int) *Builder {
	return b.opU16(OpInitArray, uint16(count))
}

func (b *Builder) StoreRegister(reg byte) *Builder {
	return b.opU8(OpStoreRegister, reg)
}

func (b *Builder) PushRegister(reg byte) *Builder {
	return b.opU8(OpPushRegister, reg)
}

// Function emits define_function for a nested method built elsewhere.
func (b *Builder) Function(m *vm.Method) *Builder {
	idx := len(b.pool.Methods)
	b.pool.Methods = append(b.pool.Methods, m)
	return b.opU16(OpDefineFunction, uint16(idx))
}

// --- Labels and control flow ---

type Label int

func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind anchors a label at the current position.
func (b *Builder) Bind(l Label) *Builder {
	b.labels[l] = len(b.code)
	return b
}

func (b *Builder) Jump(l Label) *Builder {
	b.code = append(b.code, OpJump)
	b.patches = append(b.patches, patch{at: len(b.code), label: int(l)})
	b.code = append(b.code, 0, 0)
	return b
}

// If branches when the popped condition is truthy.
func (b *Builder) If(l Label) *Builder {
	b.code = append(b.code, OpIf)
	b.patches = append(b.patches, patch{at: len(b.code), label: int(l)})
	b.code = append(b.code, 0, 0)
	return b
}

// Pos returns the current instruction offset, for handler ranges.
func (b *Builder) Pos() int { return len(b.code) }

// Catch registers a typed catch handler over [tryStart, tryEnd) landing at
// the given label. An empty typeName catches everything.
func (b *Builder) Catch(tryStart, tryEnd int, target Label, typeName string) *Builder {
	b.handlers = append(b.handlers, vm.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd, Target: int(target), TypeName: typeName,
	})
	return b
}

// Finally registers a finally handler; its body must end with end_finally.
func (b *Builder) Finally(tryStart, tryEnd int, target Label) *Builder {
	b.handlers = append(b.handlers, vm.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd, Target: int(target), IsFinally: true,
	})
	return b
}

// Build patches jump offsets and handler targets and returns the finished
// method. Unbound labels are a programming error and panic.
func (b *Builder) Build(params ...string) *vm.Method {
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			panic("avm1: unbound label in " + b.name)
		}
		off := target - (p.at + 2)
		b.code[p.at] = byte(uint16(int16(off)))
		b.code[p.at+1] = byte(uint16(int16(off)) >> 8)
	}
	for i := range b.handlers {
		if t := b.handlers[i].Target; t < len(b.labels) && b.labels[t] >= 0 {
			b.handlers[i].Target = b.labels[t]
		}
	}

	ps := make([]vm.Param, len(params))
	for i, name := range params {
		ps[i] = vm.Param{Name: name, Type: vm.CoerceAny}
	}
	return &vm.Method{
		Name:          b.name,
		Dialect:       vm.DialectStack,
		Params:        ps,
		NumRegs:       b.numRegs,
		Code:          b.code,
		Pool:          b.pool,
		Handlers:      b.handlers,
		ScriptVersion: b.version,
	}
}
