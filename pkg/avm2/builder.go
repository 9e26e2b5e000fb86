package avm2

import (
	"lumen/pkg/vm"
)

// Builder assembles a trait-dialect method. Same role as the stack dialect's
// builder: the blob loader and the tests produce instruction streams through
// it instead of hand-writing offsets.
type Builder struct {
	name       string
	numRegs    int
	params     []vm.Param
	hasRest    bool
	localTypes []vm.CoerceType

	code     []byte
	pool     *vm.ConstPool
	handlers []vm.ExceptionHandler

	intIdx    map[int32]int
	uintIdx   map[uint32]int
	doubleIdx map[float64]int
	stringIdx map[string]int

	patches []patch
	labels  []int
}

type patch struct {
	at    int
	label int
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		numRegs:   4,
		pool:      &vm.ConstPool{},
		intIdx:    make(map[int32]int),
		uintIdx:   make(map[uint32]int),
		doubleIdx: make(map[float64]int),
		stringIdx: make(map[string]int),
	}
}

// SharedPool makes the builder emit into an existing pool, so class methods
// and the script body can share one constant space.
func (b *Builder) SharedPool(pool *vm.ConstPool) *Builder {
	b.pool = pool
	return b
}

func (b *Builder) Registers(n int) *Builder {
	b.numRegs = n
	return b
}

// Param declares a typed parameter; it binds to the next register after the
// receiver.
func (b *Builder) Param(name string, t vm.CoerceType) *Builder {
	b.params = append(b.params, vm.Param{Name: name, Type: t})
	return b
}

// ParamDefault declares a parameter with a default value.
func (b *Builder) ParamDefault(name string, t vm.CoerceType, def vm.Value) *Builder {
	b.params = append(b.params, vm.Param{Name: name, Type: t, HasDefault: true, Default: def})
	return b
}

// Rest declares the trailing rest-arguments list.
func (b *Builder) Rest() *Builder {
	b.hasRest = true
	return b
}

// LocalType declares a register's coercion type; set_local coerces through
// it.
func (b *Builder) LocalType(reg int, t vm.CoerceType) *Builder {
	for len(b.localTypes) <= reg {
		b.localTypes = append(b.localTypes, vm.CoerceAny)
	}
	b.localTypes[reg] = t
	return b
}

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

func (b *Builder) Short(v int16) *Builder {
	return b.opU16(OpPushShort, uint16(v))
}

func (b *Builder) Int(v int32) *Builder {
	i, ok := b.intIdx[v]
	if !ok {
		i = len(b.pool.Ints)
		b.pool.Ints = append(b.pool.Ints, v)
		b.intIdx[v] = i
	}
	return b.opU16(OpPushInt, uint16(i))
}

func (b *Builder) UInt(v uint32) *Builder {
	i, ok := b.uintIdx[v]
	if !ok {
		i = len(b.pool.UInts)
		b.pool.UInts = append(b.pool.UInts, v)
		b.uintIdx[v] = i
	}
	return b.opU16(OpPushUInt, uint16(i))
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

// --- Locals ---

func (b *Builder) GetLocal(reg int) *Builder       { return b.opU8(OpGetLocal, byte(reg)) }
func (b *Builder) SetLocal(reg int) *Builder       { return b.opU8(OpSetLocal, byte(reg)) }
func (b *Builder) Kill(reg int) *Builder           { return b.opU8(OpKill, byte(reg)) }
func (b *Builder) Coerce(t vm.CoerceType) *Builder { return b.opU8(OpCoerce, byte(t)) }

// --- Named property traffic ---

func (b *Builder) GetProperty(name string) *Builder {
	return b.opU16(OpGetProperty, uint16(b.stringIndex(name)))
}

func (b *Builder) SetProperty(name string) *Builder {
	return b.opU16(OpSetProperty, uint16(b.stringIndex(name)))
}

func (b *Builder) InitProperty(name string) *Builder {
	return b.opU16(OpInitProperty, uint16(b.stringIndex(name)))
}

func (b *Builder) DeleteProperty(name string) *Builder {
	return b.opU16(OpDeleteProperty, uint16(b.stringIndex(name)))
}

func (b *Builder) GetSlot(slot int) *Builder { return b.opU16(OpGetSlot, uint16(slot)) }
func (b *Builder) SetSlot(slot int) *Builder { return b.opU16(OpSetSlot, uint16(slot)) }

func (b *Builder) opNameArgc(op byte, name string, argc int) *Builder {
	idx := uint16(b.stringIndex(name))
	b.code = append(b.code, op, byte(idx), byte(idx>>8), byte(argc), byte(argc>>8))
	return b
}

func (b *Builder) CallProperty(name string, argc int) *Builder {
	return b.opNameArgc(OpCallProperty, name, argc)
}

func (b *Builder) CallPropVoid(name string, argc int) *Builder {
	return b.opNameArgc(OpCallPropVoid, name, argc)
}

func (b *Builder) ConstructProp(name string, argc int) *Builder {
	return b.opNameArgc(OpConstructProp, name, argc)
}

func (b *Builder) ConstructSuper(className string, argc int) *Builder {
	return b.opNameArgc(OpConstructSuper, className, argc)
}

func (b *Builder) Call(argc int) *Builder      { return b.opU16(OpCall, uint16(argc)) }
func (b *Builder) Construct(argc int) *Builder { return b.opU16(OpConstruct, uint16(argc)) }

func (b *Builder) NewObjectLit(pairs int) *Builder { return b.opU16(OpNewObject, uint16(pairs)) }
func (b *Builder) NewArrayLit(count int) *Builder  { return b.opU16(OpNewArray, uint16(count)) }

// Function emits new_function for a nested method.
func (b *Builder) Function(m *vm.Method) *Builder {
	idx := len(b.pool.Methods)
	b.pool.Methods = append(b.pool.Methods, m)
	return b.opU16(OpNewFunction, uint16(idx))
}

// Class emits new_class for a static class descriptor; its method indices
// must reference this builder's pool.
func (b *Builder) Class(def *vm.ClassDef) *Builder {
	idx := len(b.pool.Classes)
	b.pool.Classes = append(b.pool.Classes, def)
	return b.opU16(OpNewClass, uint16(idx))
}

// AddMethod places a method in the shared pool and returns its index, for
// class descriptors.
func (b *Builder) AddMethod(m *vm.Method) int {
	b.pool.Methods = append(b.pool.Methods, m)
	return len(b.pool.Methods) - 1
}

func (b *Builder) FindProperty(name string) *Builder {
	return b.opU16(OpFindProperty, uint16(b.stringIndex(name)))
}

func (b *Builder) FindPropStrict(name string) *Builder {
	return b.opU16(OpFindPropStrict, uint16(b.stringIndex(name)))
}

func (b *Builder) GetLex(name string) *Builder {
	return b.opU16(OpGetLex, uint16(b.stringIndex(name)))
}

func (b *Builder) IsType(className string) *Builder {
	return b.opU16(OpIsType, uint16(b.stringIndex(className)))
}

// --- Labels, handlers ---

type Label int

func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

func (b *Builder) Bind(l Label) *Builder {
	b.labels[l] = len(b.code)
	return b
}

func (b *Builder) branch(op byte, l Label) *Builder {
	b.code = append(b.code, op)
	b.patches = append(b.patches, patch{at: len(b.code), label: int(l)})
	b.code = append(b.code, 0, 0)
	return b
}

func (b *Builder) Jump(l Label) *Builder    { return b.branch(OpJump, l) }
func (b *Builder) IfTrue(l Label) *Builder  { return b.branch(OpIfTrue, l) }
func (b *Builder) IfFalse(l Label) *Builder { return b.branch(OpIfFalse, l) }

func (b *Builder) Pos() int { return len(b.code) }

func (b *Builder) Catch(tryStart, tryEnd int, target Label, typeName string) *Builder {
	b.handlers = append(b.handlers, vm.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd, Target: int(target), TypeName: typeName,
	})
	return b
}

func (b *Builder) Finally(tryStart, tryEnd int, target Label) *Builder {
	b.handlers = append(b.handlers, vm.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd, Target: int(target), IsFinally: true,
	})
	return b
}

// Build patches branches and handler targets and returns the method.
func (b *Builder) Build() *vm.Method {
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			panic("avm2: unbound label in " + b.name)
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

	numRegs := b.numRegs
	if min := 1 + len(b.params); numRegs < min {
		numRegs = min
	}
	return &vm.Method{
		Name:       b.name,
		Dialect:    vm.DialectTrait,
		Params:     b.params,
		HasRest:    b.hasRest,
		NumRegs:    numRegs,
		LocalTypes: b.localTypes,
		Code:       b.code,
		Pool:       b.pool,
		Handlers:   b.handlers,
	}
}
