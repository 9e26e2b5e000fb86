package avm1

import (
	"math"

	"lumen/pkg/errors"
	"lumen/pkg/vm"
)

// Interpreter is the stack dialect's decode/execute loop. It is stateless;
// all execution state lives in the frame and the engine.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

func (*Interpreter) Dialect() vm.Dialect { return vm.DialectStack }

// Run executes the frame's method to completion: a return value, an
// unwinding error, or falling off the end of the stream (which returns
// Undefined).
func (in *Interpreter) Run(e *vm.Engine, f *vm.Frame) (vm.Value, error) {
	code := f.Method.Code
	pool := f.Method.Pool
	fold := f.Method.ScriptVersion > 0 && f.Method.ScriptVersion < 7

	for f.IP < len(code) {
		if err := e.Safepoint(); err != nil {
			if err = in.unwind(e, f, err); err != nil {
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
		case OpPushInt:
			f.Push(vm.IntegerValue(pool.Ints[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushDouble:
			f.Push(vm.NumberValue(pool.Doubles[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushString:
			f.Push(vm.NewString(pool.Strings[vm.ReadU16(code, f.IP)]))
			f.IP += 2
		case OpPushRegister:
			f.Push(f.Regs[code[f.IP]])
			f.IP++
		case OpStoreRegister:
			f.Regs[code[f.IP]] = f.Peek(0)
			f.IP++

		case OpPop:
			f.Pop()
		case OpDup:
			f.Push(f.Peek(0))
		case OpSwap:
			b, a := f.Pop(), f.Pop()
			f.Push(b)
			f.Push(a)

		case OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo:
			err = in.legacyArith(e, f, op)
		case OpEquals:
			// Operands stay on the stack (rooted) until both conversions are
			// done; a valueOf may trigger a collection.
			var fa, fb float64
			if fa, err = e.ToNumberValue(f.Peek(1)); err == nil {
				if fb, err = e.ToNumberValue(f.Peek(0)); err == nil {
					f.PopN(2)
					f.Push(vm.BooleanValue(fa == fb))
				}
			}
		case OpLess:
			var fa, fb float64
			if fa, err = e.ToNumberValue(f.Peek(1)); err == nil {
				if fb, err = e.ToNumberValue(f.Peek(0)); err == nil {
					f.PopN(2)
					f.Push(vm.BooleanValue(fa < fb))
				}
			}

		case OpAdd2:
			b, a := f.Pop(), f.Pop()
			var sum vm.Value
			if sum, err = e.Add(a, b); err == nil {
				f.Push(sum)
			}
		case OpEquals2:
			b, a := f.Pop(), f.Pop()
			var eq bool
			if eq, err = e.Equals(a, b); err == nil {
				f.Push(vm.BooleanValue(eq))
			}
		case OpStrictEquals:
			b, a := f.Pop(), f.Pop()
			f.Push(vm.BooleanValue(a.StrictEquals(b)))
		case OpLess2:
			b, a := f.Pop(), f.Pop()
			var less, undef bool
			if less, undef, err = e.Compare(a, b); err == nil {
				f.Push(vm.BooleanValue(less && !undef))
			}
		case OpGreater2:
			b, a := f.Pop(), f.Pop()
			var less, undef bool
			if less, undef, err = e.Compare(b, a); err == nil {
				f.Push(vm.BooleanValue(less && !undef))
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

		case OpBitAnd, OpBitOr, OpBitXor, OpShiftLeft, OpShiftRight, OpShiftRightUnsigned:
			err = in.bitwise(e, f, op)

		case OpNot:
			f.Push(vm.BooleanValue(!f.Pop().ToBoolean()))
		case OpToNumber:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.NumberValue(fa))
			}
		case OpToString:
			var s string
			if s, err = e.ToStringValue(f.Pop()); err == nil {
				f.Push(vm.NewString(s))
			}
		case OpToInteger:
			var fa float64
			if fa, err = e.ToNumberValue(f.Pop()); err == nil {
				f.Push(vm.NumberValue(math.Trunc(fa)))
			}
		case OpTypeOf:
			f.Push(vm.NewString(e.TypeOf(f.Pop())))
		case OpInstanceOf:
			ctor, obj := f.Pop(), f.Pop()
			var is bool
			if is, err = e.InstanceOf(obj, ctor); err == nil {
				f.Push(vm.BooleanValue(is))
			}

		case OpJump:
			off := vm.ReadS16(code, f.IP)
			f.IP += 2 + int(off)
		case OpIf:
			off := vm.ReadS16(code, f.IP)
			f.IP += 2
			if f.Pop().ToBoolean() {
				f.IP += int(off)
			}

		case OpGetVariable:
			var name string
			if name, err = e.ToStringValue(f.Pop()); err == nil {
				f.Push(in.getVariable(e, f, name, fold))
			}
		case OpSetVariable:
			var name string
			if name, err = e.ToStringValue(f.Peek(1)); err == nil {
				v := f.Peek(0)
				f.PopN(2)
				err = in.setVariable(e, f, name, v, fold)
			}
		case OpDefineLocal:
			var name string
			if name, err = e.ToStringValue(f.Peek(1)); err == nil {
				v := f.Peek(0)
				f.PopN(2)
				scope := f.Scope[len(f.Scope)-1]
				err = e.SetPropertyFold(scope, name, v, fold)
			}

		case OpGetMember:
			var name string
			if name, err = e.ToStringValue(f.Peek(0)); err == nil {
				obj := f.Peek(1)
				f.PopN(2)
				var v vm.Value
				if v, err = e.GetPropertyFold(obj, name, fold); err == nil {
					f.Push(v)
				}
			}
		case OpSetMember:
			var name string
			if name, err = e.ToStringValue(f.Peek(1)); err == nil {
				v, obj := f.Peek(0), f.Peek(2)
				f.PopN(3)
				err = e.SetPropertyFold(obj, name, v, fold)
			}
		case OpDeleteMember:
			var name string
			if name, err = e.ToStringValue(f.Peek(0)); err == nil {
				obj := f.Peek(1)
				f.PopN(2)
				var removed bool
				if removed, err = e.DeleteProperty(obj, name, fold); err == nil {
					f.Push(vm.BooleanValue(removed))
				}
			}
		case OpInitObject:
			count := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			// The object is reachable from nothing until the final push, and
			// each name conversion may run script code; pin it for the loop.
			obj := e.NewPlainObject(vm.NilRef, false)
			e.Arena().Pin(obj.Ref())
			for i := 0; i < count && err == nil; i++ {
				var name string
				if name, err = e.ToStringValue(f.Peek(1)); err == nil {
					err = e.SetPropertyFold(obj, name, f.Peek(0), fold)
					f.PopN(2)
				}
			}
			e.Arena().Unpin(1)
			if err == nil {
				f.Push(obj)
			}
		case OpInitArray:
			count := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			f.Push(e.NewArray(f.PopN(count)))
		case OpEnumerate:
			obj := f.Pop()
			names := e.Enumerate(obj)
			elems := make([]vm.Value, len(names))
			for i, n := range names {
				elems[i] = vm.NewString(n)
			}
			f.Push(e.NewArray(elems))

		case OpCallFunction:
			argc := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			callee := f.Pop()
			args := f.PopN(argc)
			var v vm.Value
			if v, err = e.Call(callee, vm.Undefined, args); err == nil {
				f.Push(v)
			}
		case OpCallMethod:
			argc := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			var v vm.Value
			var name string
			if name, err = e.ToStringValue(f.Peek(0)); err == nil {
				obj := f.Peek(1)
				f.PopN(2)
				args := f.PopN(argc)
				if name == "" {
					v, err = e.Call(obj, vm.Undefined, args)
				} else {
					v, err = e.CallPropertyFold(obj, name, args, fold)
				}
				if err == nil {
					f.Push(v)
				}
			}
		case OpNewObject:
			argc := int(vm.ReadU16(code, f.IP))
			f.IP += 2
			ctor := f.Pop()
			args := f.PopN(argc)
			var v vm.Value
			if v, err = e.Construct(ctor, args); err == nil {
				f.Push(v)
			}

		case OpReturn:
			result = f.Pop()
			returned = true

		case OpDefineFunction:
			idx := vm.ReadU16(code, f.IP)
			f.IP += 2
			f.Push(e.NewFunction(pool.Methods[idx], f.Scope, ""))

		case OpPushScope:
			obj := f.Pop()
			if obj.Type() != vm.TypeObject {
				err = &errors.TypeMismatchError{Want: "Object", Got: obj.Type().String(),
					Msg: "with target must be an object"}
			} else {
				f.PushScope(obj)
			}
		case OpPopScope:
			f.PopScope()

		case OpThrow:
			err = e.Throw(f.Pop())
		case OpEndFinally:
			res, ferr, resumed := e.FinishFinally(f)
			if resumed {
				if ferr != nil {
					// No handler left in this frame; keep unwinding upward.
					return vm.Undefined, ferr
				}
				f.IP = res.Target
			}

		case OpTrace:
			var s string
			if s, err = e.ToStringValue(f.Pop()); err == nil {
				if hook, ok := e.Globals().Get("trace"); ok && e.IsCallable(hook) {
					_, err = e.Call(hook, vm.Undefined, []vm.Value{vm.NewString(s)})
				}
			}

		default:
			err = &errors.InvariantError{Msg: "unknown stack-dialect opcode " + OpName(op)}
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

// unwind routes an error raised at the current instruction pointer.
func (in *Interpreter) unwind(e *vm.Engine, f *vm.Frame, err error) error {
	return in.unwindAt(e, f, f.IP, err)
}

// unwindAt dispatches from the pc the faulting instruction started at, so
// handler ranges cover multi-byte instructions correctly. A handled error
// redirects the frame; an unhandled one propagates to the caller.
func (in *Interpreter) unwindAt(e *vm.Engine, f *vm.Frame, pc int, err error) error {
	f.IP = pc
	res, derr := e.DispatchError(f, err)
	if derr != nil {
		return derr
	}
	f.IP = res.Target
	return nil
}

// legacyArith is the first-generation arithmetic: everything through Number,
// no string awareness.
func (in *Interpreter) legacyArith(e *vm.Engine, f *vm.Frame, op byte) error {
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
	case OpAdd:
		r = fa + fb
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

// getVariable resolves a name against the scope chain, innermost first. An
// unresolvable name is Undefined, never an error.
func (in *Interpreter) getVariable(e *vm.Engine, f *vm.Frame, name string, fold bool) vm.Value {
	for i := len(f.Scope) - 1; i >= 0; i-- {
		if e.HasProperty(f.Scope[i], name, fold) {
			v, err := e.GetPropertyFold(f.Scope[i], name, fold)
			if err != nil {
				return vm.Undefined
			}
			return v
		}
	}
	return vm.Undefined
}

// setVariable writes through the scope that already defines the name;
// otherwise the variable is created on the outermost scope.
func (in *Interpreter) setVariable(e *vm.Engine, f *vm.Frame, name string, v vm.Value, fold bool) error {
	for i := len(f.Scope) - 1; i >= 0; i-- {
		if e.HasProperty(f.Scope[i], name, fold) {
			return e.SetPropertyFold(f.Scope[i], name, v, fold)
		}
	}
	return e.SetPropertyFold(f.Scope[0], name, v, fold)
}
