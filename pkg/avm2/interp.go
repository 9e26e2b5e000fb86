package avm2

import (
	"math"

	"lumen/pkg/errors"
	"lumen/pkg/vm"
)

// Interpreter is the trait dialect's decode/execute loop.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

func (*Interpreter) Dialect() vm.Dialect { return vm.DialectTrait }

// Run executes the frame's method to completion. Name resolution never case
// folds in this dialect.
func (in *Interpreter) Run(e *vm.Engine, f *vm.Frame) (vm.Value, error) {
	code := f.Method.Code
	pool := f.Method.Pool

	for f.IP < len(code) {
		if err := e.Safepoint(); err != nil {
			if err = in.unwindAt(e, f, f.IP, err); err != nil {
				return vm.Undefined, err
			}
			continue
		}

		opIP := f.IP
		op := code[f.IP]
		f.IP++

		var err error
		var returned bool
		var result vm.Value

		switch op {
		case OpNop:

		case OpPushUndefined:
			f.Push(vm.Undefined)
		case OpPushNull:
			f.Push(vm.Null)
		case OpPushTrue:
			f.Push(vm.True)
		case OpPushFalse:
			f.Push(vm.False)
		case OpPushNaN:
			f.Push(vm.NaN)
		case OpPushShort:
			f.Push(vm.IntegerValue(int32(vm.ReadS16(code, f.IP))))
			f.IP += 2
		case OpPushInt:
			f.Push(vm.IntegerValue(pool.Ints[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushUInt:
			f.Push(vm.UIntegerValue(pool.UInts[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushDouble:
			f.Push(vm.NumberValue(pool.Doubles[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushString:
			f.Push(vm.NewString(pool.Strings[vm.ReadU16(code, f.IP)]))
			f.IP += 2

		case OpGetLocal:
			f.Push(f.Regs[code[f.IP]])
			f.IP++
		case OpSetLocal:
			reg := int(code[f.IP])
			f.IP++
			v := f.Pop()
			if t := localType(f.Method, reg); t != vm.CoerceAny {
				if v, err = e.CoerceTo(v, t); err != nil {
					break
				}
			}
			f.Regs[reg] = v
		case OpKill:
			f.Regs[code[f.IP]] = vm.Undefined
			f.IP++

		case OpPop:
			f.Pop()
		case OpDup:
			f.Push(f.Peek(0))
		case OpSwap:
			b, a := f.Pop(), f.Pop()
			f.Push(b)
			f.Push(a)

		case OpAdd:
			b, a := f.Pop(), f.Pop()
			var sum vm.Value
			if sum, err = e.Add(a, b); err == nil {
				f.Push(sum)
			}
		case OpAddI:
			// Operands stay on the stack (rooted) until both conversions are
			// done; a valueOf may trigger a collection.
			var fa, fb float64
			if fa, err = e.ToNumberValue(f.Peek(1)); err == nil {
				if fb, err = e.ToNumberValue(f.Peek(0)); err == nil {
					f.PopN(2)
					f.Push(vm.IntegerValue(vm.NumberValue(fa).ToInt32() + vm.NumberValue(fb).ToInt32()))
				}
			}
		case OpSubtract, OpMultiply, OpDivide, OpModulo:
			err = in.numericArith(e, f, op)
		case OpNegate:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.NumberValue(-fa))
			}
		case OpIncrement:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.NumberValue(fa + 1))
			}
		case OpDecrement:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.NumberValue(fa - 1))
			}
		case OpIncrementI:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.IntegerValue(vm.NumberValue(fa).ToInt32() + 1))
			}
		case OpDecrementI:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.IntegerValue(vm.NumberValue(fa).ToInt32() - 1))
			}

		case OpBitAnd, OpBitOr, OpBitXor, OpShiftLeft, OpShiftRight, OpShiftRightUnsigned:
			err = in.bitwise(e, f, op)
		case OpBitNot:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.IntegerValue(^vm.NumberValue(fa).ToInt32()))
			}

		case OpEquals:
			b, a := f.Pop(), f.Pop()
			var eq bool
			if eq, err = e.Equals(a, b); err == nil {
				f.Push(vm.BooleanValue(eq))
			}
		case OpStrictEquals:
			b, a := f.Pop(), f.Pop()
			f.Push(vm.BooleanValue(a.StrictEquals(b)))
		case OpLessThan, OpLessEquals, OpGreaterThan, OpGreaterEquals:
			err = in.relational(e, f, op)
		case OpNot:
			f.Push(vm.BooleanValue(!f.Pop().ToBoolean()))

		case OpJump:
			off := vm.ReadS16(code, f.IP)
			f.IP += 2 + int(off)
		case OpIfTrue:
			off := vm.ReadS16(code, f.IP)
			f.IP += 2
			if f.Pop().ToBoolean() {
				f.IP += int(off)
			}
		case OpIfFalse:
			off := vm.ReadS16(code, f.IP)
			f.IP += 2
			if !f.Pop().ToBoolean() {
				f.IP += int(off)
			}

		case OpReturnValue:
			result = f.Pop()
			returned = true
		case OpReturnVoid:
			result = vm.Undefined
			returned = true
		case OpThrow:
			err = e.Throw(f.Pop())
		case OpEndFinally:
			res, ferr, resumed := e.FinishFinally(f)
			if resumed {
				if ferr != nil {
					return vm.Undefined, ferr
				}
				f.IP = res.Target
			}

		case OpCoerce:
			t := vm.CoerceType(code[f.IP])
			f.IP++
			var v vm.Value
			if v, err = e.CoerceTo(f.Pop(), t); err == nil {
				f.Push(v)
			}
		case OpTypeOf:
			f.Push(vm.NewString(e.TypeOf(f.Pop())))
		case OpInstanceOf:
			class, obj := f.Pop(), f.Pop()
			var is bool
			if is, err = e.InstanceOf(obj, class); err == nil {
				f.Push(vm.BooleanValue(is))
			}
		case OpIsType:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			v := f.Pop()
			classRef, ok := e.LookupClass(name)
			if !ok {
				err = &errors.PropertyNotFoundError{Object: "class registry", Property: name}
				break
			}
			var is bool
			if is, err = e.InstanceOf(v, vm.ObjectValue(classRef)); err == nil {
				f.Push(vm.BooleanValue(is))
			}

		case OpGetProperty:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			var v vm.Value
			if v, err = e.GetProperty(f.Pop(), name); err == nil {
				f.Push(v)
			}
		case OpSetProperty:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			v, obj := f.Pop(), f.Pop()
			err = e.SetProperty(obj, name, v)
		case OpInitProperty:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			v, obj := f.Pop(), f.Pop()
			err = e.InitProperty(obj, name, v)
		case OpDeleteProperty:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			var removed bool
			if removed, err = e.DeleteProperty(f.Pop(), name, false); err == nil {
				f.Push(vm.BooleanValue(removed))
			}
		case OpGetSlot:
			slot := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			obj := f.Pop()
			if obj.Type() != vm.TypeObject {
				err = &errors.TypeMismatchError{Want: "Object", Got: obj.Type().String()}
				break
			}
			f.Push(e.Arena().Get(obj.Ref()).Base().Slot(slot))
		case OpSetSlot:
			slot := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			v, obj := f.Pop(), f.Pop()
			if obj.Type() != vm.TypeObject {
				err = &errors.TypeMismatchError{Want: "Object", Got: obj.Type().String()}
				break
			}
			e.Arena().Mutate(obj.Ref(), func(data vm.ObjectData) {
				data.Base().SetSlot(slot, v)
			})

		case OpCallProperty, OpCallPropVoid:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			argc := int(vm.ReadU16(code, f.IP+2))
			f.IP += 4
			args := f.PopN(argc)
			obj := f.Pop()
			var v vm.Value
			if v, err = e.CallProperty(obj, name, args); err == nil && op == OpCallProperty {
				f.Push(v)
			}
		case OpCall:
			argc := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			args := f.PopN(argc)
			receiver := f.Pop()
			callee := f.Pop()
			var v vm.Value
			if v, err = e.Call(callee, receiver, args); err == nil {
				f.Push(v)
			}
		case OpConstruct:
			argc := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			args := f.PopN(argc)
			ctor := f.Pop()
			var v vm.Value
			if v, err = e.Construct(ctor, args); err == nil {
				f.Push(v)
			}
		case OpConstructProp:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			argc := int(vm.ReadU16(code, f.IP+2))
			f.IP += 4
			args := f.PopN(argc)
			obj := f.Pop()
			var ctor vm.Value
			if ctor, err = e.GetProperty(obj, name); err == nil {
				var v vm.Value
				if v, err = e.Construct(ctor, args); err == nil {
					f.Push(v)
				}
			}
		case OpConstructSuper:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			argc := int(vm.ReadU16(code, f.IP+2))
			f.IP += 4
			args := f.PopN(argc)
			receiver := f.Pop()
			classRef, ok := e.LookupClass(name)
			if !ok {
				err = &errors.PropertyNotFoundError{Object: "class registry", Property: name}
				break
			}
			err = e.CallSuper(classRef, receiver, args)

		case OpNewObject:
			pairs := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			// The object is reachable from nothing until the final push, and
			// each name conversion may run script code; pin it for the loop.
			obj := e.NewPlainObject(vm.NilRef, false)
			e.Arena().Pin(obj.Ref())
			for i := 0; i < pairs && err == nil; i++ {
				var name string
				if name, err = e.ToStringValue(f.Peek(1)); err == nil {
					err = e.SetProperty(obj, name, f.Peek(0))
					f.PopN(2)
				}
			}
			e.Arena().Unpin(1)
			if err == nil {
				f.Push(obj)
			}
		case OpNewArray:
			count := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			f.Push(e.NewArray(f.PopN(count)))
		case OpNewFunction:
			idx := vm.ReadU16(code, f.IP)
			f.IP += 2
			f.Push(e.NewFunction(pool.Methods[idx], f.Scope, ""))
		case OpNewClass:
			idx := vm.ReadU16(code, f.IP)
			f.IP += 2
			var class vm.Value
			if class, err = e.DefineClass(pool.Classes[idx], pool); err == nil {
				f.Push(class)
			}

		case OpPushScope:
			obj := f.Pop()
			if obj.Type() != vm.TypeObject {
				err = &errors.TypeMismatchError{Want: "Object", Got: obj.Type().String(),
					Msg: "scope object required"}
			} else {
				f.PushScope(obj)
			}
		case OpPopScope:
			f.PopScope()
		case OpGetScopeObject:
			idx := int(code[f.IP])
			f.IP++
			if idx >= len(f.Scope) {
				err = &errors.InvariantError{Msg: "scope index out of range"}
				break
			}
			f.Push(f.Scope[idx])
		case OpFindProperty, OpFindPropStrict, OpGetLex:
			name := pool.Strings[vm.ReadU16(code, f.IP)]
			f.IP += 2
			holder, found := in.findProperty(e, f, name)
			if !found && op != OpFindProperty {
				err = &errors.PropertyNotFoundError{Object: "scope chain", Property: name}
				break
			}
			if op == OpGetLex {
				var v vm.Value
				if v, err = e.GetProperty(holder, name); err == nil {
					f.Push(v)
				}
			} else {
				f.Push(holder)
			}

		case OpTrace:
			var s string
			if s, err = e.ToStringValue(f.Pop()); err == nil {
				if hook, ok := e.Globals().Get("trace"); ok && e.IsCallable(hook) {
					_, err = e.Call(hook, vm.Undefined, []vm.Value{vm.NewString(s)})
				}
			}

		default:
			err = &errors.InvariantError{Msg: "unknown trait-dialect opcode " + OpName(op)}
		}

		if returned {
			return result, nil
		}
		if err != nil {
			if err = in.unwindAt(e, f, opIP, err); err != nil {
				return vm.Undefined, err
			}
		}
	}
	return vm.Undefined, nil
}

func (in *Interpreter) unwindAt(e *vm.Engine, f *vm.Frame, pc int, err error) error {
	f.IP = pc
	res, derr := e.DispatchError(f, err)
	if derr != nil {
		return derr
	}
	f.IP = res.Target
	return nil
}

// findProperty walks the scope chain innermost-out; unresolvable names fall
// back to the global object with found=false.
func (in *Interpreter) findProperty(e *vm.Engine, f *vm.Frame, name string) (vm.Value, bool) {
	for i := len(f.Scope) - 1; i >= 0; i-- {
		if e.HasProperty(f.Scope[i], name, false) {
			return f.Scope[i], true
		}
	}
	return e.Globals().Object(), false
}

func localType(m *vm.Method, reg int) vm.CoerceType {
	if reg < len(m.LocalTypes) {
		return m.LocalTypes[reg]
	}
	return vm.CoerceAny
}

func (in *Interpreter) numericArith(e *vm.Engine, f *vm.Frame, op byte) error {
	fa, err := e.ToNumberValue(f.Peek(1))
	if err != nil {
		return err
	}
	fb, err := e.ToNumberValue(f.Peek(0))
	if err != nil {
		return err
	}
	f.PopN(2)
	var r float64
	switch op {
	case OpSubtract:
		r = fa - fb
	case OpMultiply:
		r = fa * fb
	case OpDivide:
		r = fa / fb
	case OpModulo:
		r = math.Mod(fa, fb)
	}
	f.Push(vm.NumberValue(r))
	return nil
}

func (in *Interpreter) bitwise(e *vm.Engine, f *vm.Frame, op byte) error {
	fa, err := e.ToNumberValue(f.Peek(1))
	if err != nil {
		return err
	}
	fb, err := e.ToNumberValue(f.Peek(0))
	if err != nil {
		return err
	}
	f.PopN(2)
	x := vm.NumberValue(fa).ToInt32()
	y := vm.NumberValue(fb).ToInt32()
	switch op {
	case OpBitAnd:
		f.Push(vm.IntegerValue(x & y))
	case OpBitOr:
		f.Push(vm.IntegerValue(x | y))
	case OpBitXor:
		f.Push(vm.IntegerValue(x ^ y))
	case OpShiftLeft:
		f.Push(vm.IntegerValue(x << (uint32(y) & 31)))
	case OpShiftRight:
		f.Push(vm.IntegerValue(x >> (uint32(y) & 31)))
	case OpShiftRightUnsigned:
		f.Push(vm.UIntegerValue(uint32(x) >> (uint32(y) & 31)))
	}
	return nil
}

// relational maps the four comparison opcodes onto the one abstract
// comparison; NaN makes every relation false.
func (in *Interpreter) relational(e *vm.Engine, f *vm.Frame, op byte) error {
	b, a := f.Pop(), f.Pop()
	var less, undef bool
	var err error
	switch op {
	case OpLessThan:
		less, undef, err = e.Compare(a, b)
	case OpGreaterThan:
		less, undef, err = e.Compare(b, a)
	case OpLessEquals:
		less, undef, err = e.Compare(b, a)
		less = !less
	case OpGreaterEquals:
		less, undef, err = e.Compare(a, b)
		less = !less
	}
	if err != nil {
		return err
	}
	f.Push(vm.BooleanValue(less && !undef))
	return nil
}
