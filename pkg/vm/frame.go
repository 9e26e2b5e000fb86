package vm

import (
	"sync/atomic"

	"lumen/pkg/errors"
)

// MaxStackDepth is the default maximum call depth before the engine reports
// StackOverflow.
const MaxStackDepth = 1000

// FrameState tracks the per-call state machine:
// Entering -> Running -> (Returning | Throwing) -> Exited.
type FrameState uint8

const (
	FrameEntering FrameState = iota
	FrameRunning
	FrameReturning
	FrameThrowing
	FrameExited
)

// Frame is one activation: operand stack, local register file, captured
// scope chain and instruction pointer. Frames are ephemeral; the engine
// recycles their storage.
type Frame struct {
	Method *Method
	FnRef  Ref   // executing function object; NilRef for bare entry points
	This   Value // receiver
	IP     int

	stack []Value
	sp    int
	Regs  []Value
	Scope []Value // scope chain, innermost last

	state FrameState

	// Exception unwinding bookkeeping: finally handlers already run while
	// this frame unwinds, and the error suspended across a finally block
	// together with the pc it was originally raised at.
	ranFinally map[int]bool
	pendingErr error
	pendingPC  int
}

// Push places a value on the operand stack.
func (f *Frame) Push(v Value) {
	if f.sp == len(f.stack) {
		f.stack = append(f.stack, v)
		f.sp++
		return
	}
	f.stack[f.sp] = v
	f.sp++
}

// Pop removes and returns the top of the operand stack. Underflow is an
// engine defect: the decoder validated stack depth.
func (f *Frame) Pop() Value {
	if f.sp == 0 {
		panic(&errors.InvariantError{Msg: "operand stack underflow"})
	}
	f.sp--
	return f.stack[f.sp]
}

// Peek returns the value n slots below the top without popping.
func (f *Frame) Peek(n int) Value {
	if n >= f.sp {
		panic(&errors.InvariantError{Msg: "operand stack peek out of range"})
	}
	return f.stack[f.sp-1-n]
}

// PopN removes n values and returns them in push order.
func (f *Frame) PopN(n int) []Value {
	if n > f.sp {
		panic(&errors.InvariantError{Msg: "operand stack underflow"})
	}
	vals := make([]Value, n)
	copy(vals, f.stack[f.sp-n:f.sp])
	f.sp -= n
	return vals
}

func (f *Frame) StackDepth() int { return f.sp }

// PushScope pushes a scope object onto the frame's scope chain.
func (f *Frame) PushScope(v Value) { f.Scope = append(f.Scope, v) }

// PopScope removes the innermost scope.
func (f *Frame) PopScope() Value {
	if len(f.Scope) == 0 {
		panic(&errors.InvariantError{Msg: "scope chain underflow"})
	}
	v := f.Scope[len(f.Scope)-1]
	f.Scope = f.Scope[:len(f.Scope)-1]
	return v
}

// Executor is one dialect's decode/execute loop. Each runs a frame to
// completion: scripts never suspend mid-execution.
type Executor interface {
	Dialect() Dialect
	Run(e *Engine, f *Frame) (Value, error)
}

// Engine is the shared substrate both interpreters execute against: the
// mutation arena, the global object, the class registry and the single
// logical call stack.
type Engine struct {
	arena   *Arena
	globals *Globals

	frames     []*Frame
	frameCount int
	maxDepth   int

	executors map[Dialect]Executor

	// Cooperative cancellation, checked at the instruction-fetch boundary.
	aborted     atomic.Bool
	abortReason string
	budget      int64 // 0 = unlimited
	executed    int64

	classes    map[string]Ref // initialized and uninitialized runtime classes by name
	classOrder []string       // declaration order, for deterministic rooting and init

	// primProtos gives primitive values a method surface: the prototype
	// object consulted when a property is read off a string, number or
	// boolean. Installed by the builtin library.
	primProtos map[ValueType]Value

	// defaultProtos seeds the prototype link of newly allocated objects per
	// kind, so runtime-created arrays and object literals see the builtin
	// methods. Installed by the builtin library.
	defaultProtos map[ObjectKind]Value
}

// Option configures a new engine.
type Option func(*Engine)

// WithMaxDepth overrides the maximum call depth.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithInstructionBudget sets the "script too long" guard: the total number of
// instructions one host invocation may execute. Zero disables the guard.
func WithInstructionBudget(n int64) Option {
	return func(e *Engine) { e.budget = n }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		arena:     NewArena(),
		maxDepth:  MaxStackDepth,
		executors: make(map[Dialect]Executor),
		classes:   make(map[string]Ref),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.arena.AddRoots(e)
	e.globals = newGlobals(e)
	return e
}

// Arena exposes the mutation arena; the driver and native classes allocate
// through it.
func (e *Engine) Arena() *Arena { return e.arena }

// Globals exposes the global store.
func (e *Engine) Globals() *Globals { return e.globals }

// RegisterExecutor installs a dialect's interpreter loop.
func (e *Engine) RegisterExecutor(x Executor) {
	e.executors[x.Dialect()] = x
}

// EachRoot implements RootSource: active frames (operand stacks, registers,
// scope chains, receivers), the global object and the class registry.
func (e *Engine) EachRoot(fn func(Ref)) {
	for i := 0; i < e.frameCount; i++ {
		f := e.frames[i]
		for j := 0; j < f.sp; j++ {
			eachValueRef(f.stack[j], fn)
		}
		for _, v := range f.Regs {
			eachValueRef(v, fn)
		}
		for _, v := range f.Scope {
			eachValueRef(v, fn)
		}
		eachValueRef(f.This, fn)
		if f.FnRef != NilRef {
			fn(f.FnRef)
		}
		if f.pendingErr != nil {
			if v, ok := ThrownValue(f.pendingErr); ok {
				eachValueRef(v, fn)
			}
		}
	}
	if e.globals != nil {
		e.globals.eachRoot(fn)
	}
	for _, ref := range e.classes {
		fn(ref)
	}
	for _, v := range e.primProtos {
		eachValueRef(v, fn)
	}
	for _, v := range e.defaultProtos {
		eachValueRef(v, fn)
	}
}

// SetPrimitiveProto installs the prototype object consulted for property
// reads on a primitive value type.
func (e *Engine) SetPrimitiveProto(t ValueType, proto Value) {
	if e.primProtos == nil {
		e.primProtos = make(map[ValueType]Value)
	}
	e.primProtos[t] = proto
}

// SetDefaultProto installs the prototype newly allocated objects of a kind
// start with.
func (e *Engine) SetDefaultProto(kind ObjectKind, proto Value) {
	if e.defaultProtos == nil {
		e.defaultProtos = make(map[ObjectKind]Value)
	}
	e.defaultProtos[kind] = proto
}

func (e *Engine) defaultProto(kind ObjectKind) Value {
	if v, ok := e.defaultProtos[kind]; ok {
		return v
	}
	return Null
}

// Abort requests cancellation of the running script. It takes effect at the
// next instruction-fetch boundary, unwinding finally blocks on the way out.
// Safe to call from another goroutine.
func (e *Engine) Abort(reason string) {
	e.abortReason = reason
	e.aborted.Store(true)
}

// ResetBudget clears the abort flag and the executed-instruction counter.
// The driver calls this at every host invocation boundary.
func (e *Engine) ResetBudget() {
	e.aborted.Store(false)
	e.executed = 0
}

// Safepoint is the bounded-time check between opcodes: abort, instruction
// budget, and an opportunity for the collector to run. Never called inside
// an instruction.
//
// An abort fires once and then travels as an unwinding AbortError, so the
// finally blocks of every active frame execute on the way out instead of
// being interrupted at their first instruction. Budget exhaustion re-arms
// the counter for the same reason; a finally that spins re-exhausts it and
// the second abort finds the handler already run.
func (e *Engine) Safepoint() error {
	e.executed++
	if e.aborted.CompareAndSwap(true, false) {
		return &errors.AbortError{Reason: e.abortReason}
	}
	if e.budget > 0 && e.executed > e.budget {
		e.executed = 0
		return &errors.AbortError{Reason: "instruction budget exhausted"}
	}
	e.arena.MaybeCollect()
	return nil
}

// Depth returns the current call depth.
func (e *Engine) Depth() int { return e.frameCount }

// pushFrame binds a new activation for m. Argument binding follows the
// callee's declared arity: typed parameters coerce on entry, missing
// arguments bind to the declared default or Undefined, and excess arguments
// land in the implicit rest list when one is declared.
func (e *Engine) pushFrame(m *Method, fnRef Ref, this Value, args []Value, captured []Value) (*Frame, error) {
	if e.frameCount >= e.maxDepth {
		return nil, &errors.StackOverflowError{Depth: e.maxDepth}
	}

	var f *Frame
	if e.frameCount < len(e.frames) {
		f = e.frames[e.frameCount]
		f.sp = 0
		f.stack = f.stack[:0]
		f.Scope = f.Scope[:0]
		f.ranFinally = nil
		f.pendingErr = nil
	} else {
		f = &Frame{}
		e.frames = append(e.frames, f)
	}
	e.frameCount++

	f.Method = m
	f.FnRef = fnRef
	f.This = this
	f.IP = 0
	f.state = FrameEntering

	regCount := m.NumRegs
	min := 1 + len(m.Params)
	if m.HasRest {
		min++
	}
	if regCount < min {
		regCount = min
	}
	if cap(f.Regs) >= regCount {
		f.Regs = f.Regs[:regCount]
		for i := range f.Regs {
			f.Regs[i] = Undefined
		}
	} else {
		f.Regs = make([]Value, regCount)
		for i := range f.Regs {
			f.Regs[i] = Undefined
		}
	}

	// Register 0 holds the receiver in both dialects.
	f.Regs[0] = this

	for i, p := range m.Params {
		var v Value
		switch {
		case i < len(args):
			v = args[i]
		case p.HasDefault:
			v = p.Default
		default:
			v = Undefined
		}
		if p.Type != CoerceAny {
			coerced, err := e.CoerceTo(v, p.Type)
			if err != nil {
				e.frameCount--
				return nil, err
			}
			v = coerced
		}
		f.Regs[1+i] = v
	}

	if m.HasRest {
		var extra []Value
		if len(args) > len(m.Params) {
			extra = args[len(m.Params):]
		}
		f.Regs[1+len(m.Params)] = e.NewArray(extra)
	}

	// Scope chain: the captured chain (or the global object) below, then the
	// stack dialect's activation object on top.
	if len(captured) > 0 {
		f.Scope = append(f.Scope, captured...)
	} else {
		f.Scope = append(f.Scope, e.globals.Object())
	}
	if m.Dialect == DialectStack {
		activation := e.NewPlainObject(NilRef, false)
		fold := m.ScriptVersion > 0 && m.ScriptVersion < 7
		argsArr := e.NewArray(args)
		e.arena.Mutate(activation.Ref(), func(data ObjectData) {
			bag := data.Base().Bag()
			bag.Set("arguments", argsArr, fold)
			for i, p := range m.Params {
				bag.Set(p.Name, f.Regs[1+i], fold)
			}
		})
		f.PushScope(activation)
	}

	f.state = FrameRunning
	return f, nil
}

// popFrame retires the top frame.
func (e *Engine) popFrame() {
	if e.frameCount == 0 {
		panic(&errors.InvariantError{Msg: "call stack underflow"})
	}
	f := e.frames[e.frameCount-1]
	f.state = FrameExited
	f.Method = nil
	f.This = Undefined
	f.FnRef = NilRef
	e.frameCount--
}

// runMethod pushes a frame and runs the method's dialect executor to
// completion.
func (e *Engine) runMethod(m *Method, fnRef Ref, this Value, args []Value, captured []Value) (Value, error) {
	x, ok := e.executors[m.Dialect]
	if !ok {
		return Undefined, &errors.InvariantError{Msg: "no executor registered for dialect " + m.Dialect.String()}
	}
	f, err := e.pushFrame(m, fnRef, this, args, captured)
	if err != nil {
		return Undefined, err
	}
	result, err := x.Run(e, f)
	e.popFrame()
	return result, err
}

// Call invokes a callable value: a function object, a native function, or a
// bound method. Execution runs to completion; re-entrant calls share the one
// logical call stack.
func (e *Engine) Call(callee Value, this Value, args []Value) (Value, error) {
	if callee.Type() != TypeObject {
		return Undefined, &errors.TypeMismatchError{Want: "Function", Got: callee.Type().String()}
	}
	data := e.arena.Get(callee.Ref())
	switch d := data.(type) {
	case *FunctionData:
		if d.IsNative() {
			// Native frames still count against the depth limit so
			// native->script->native recursion cannot grow unbounded.
			if e.frameCount >= e.maxDepth {
				return Undefined, &errors.StackOverflowError{Depth: e.maxDepth}
			}
			return d.Native(e, this, args)
		}
		return e.runMethod(d.Method, callee.Ref(), this, args, d.Scope)
	case *BoundMethodData:
		return e.Call(d.Func, d.Receiver, args)
	default:
		return Undefined, &errors.TypeMismatchError{
			Want: "Function",
			Got:  data.Kind().String(),
			Msg:  "value of type " + data.Kind().String() + " is not callable",
		}
	}
}

// IsCallable reports whether Call would accept the value.
func (e *Engine) IsCallable(v Value) bool {
	if v.Type() != TypeObject {
		return false
	}
	switch e.arena.Get(v.Ref()).(type) {
	case *FunctionData, *BoundMethodData:
		return true
	default:
		return false
	}
}

// TypeOf returns the script-visible type name used by the typeof opcodes.
func (e *Engine) TypeOf(v Value) string {
	switch v.Type() {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger, TypeUInteger, TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		switch e.arena.Get(v.Ref()).(type) {
		case *FunctionData, *BoundMethodData:
			return "function"
		default:
			return "object"
		}
	default:
		return "undefined"
	}
}

// --- Allocation helpers ---

// NewPlainObject allocates a plain object. A zero class Ref makes a bare
// dynamic object; sealed objects get no property bag.
func (e *Engine) NewPlainObject(class Ref, sealed bool) Value {
	d := &PlainData{}
	d.class = class
	d.proto = e.defaultProto(KindPlain)
	d.sealed = sealed
	if !sealed {
		d.bag = NewPropBag()
	}
	return ObjectValue(e.arena.Allocate(d))
}

// NewArray allocates an array object with the given elements.
func (e *Engine) NewArray(elems []Value) Value {
	d := &ArrayData{}
	d.proto = e.defaultProto(KindArray)
	d.bag = NewPropBag()
	if len(elems) > 0 {
		d.elements = append(d.elements, elems...)
	}
	return ObjectValue(e.arena.Allocate(d))
}

// NewFunction allocates a bytecode function capturing the given scope chain.
func (e *Engine) NewFunction(m *Method, captured []Value, name string) Value {
	d := &FunctionData{Name: name, Method: m}
	d.proto = e.defaultProto(KindFunction)
	d.bag = NewPropBag()
	if len(captured) > 0 {
		d.Scope = make([]Value, len(captured))
		copy(d.Scope, captured)
	}
	if name == "" && m != nil {
		d.Name = m.Name
	}
	return ObjectValue(e.arena.Allocate(d))
}

// NewBoundMethod pairs a function with a receiver; calling it ignores the
// caller-supplied this.
func (e *Engine) NewBoundMethod(fn Value, receiver Value) Value {
	d := &BoundMethodData{Func: fn, Receiver: receiver}
	d.proto = Null
	d.sealed = true
	return ObjectValue(e.arena.Allocate(d))
}

// NewNamespace allocates a namespace object for the trait dialect's pools.
func (e *Engine) NewNamespace(uri string) Value {
	d := &NamespaceData{URI: uri}
	d.proto = Null
	d.sealed = true
	return ObjectValue(e.arena.Allocate(d))
}
