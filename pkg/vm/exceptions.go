package vm

import (
	stderrors "errors"

	"lumen/pkg/errors"
)

// ScriptError carries a thrown script value across Go call boundaries while
// it unwinds. Engine errors that scripts may catch are converted into one of
// these (with a freshly built error object) at the first dispatch point.
type ScriptError struct {
	Value Value
}

func (s *ScriptError) Error() string {
	return "uncaught exception: " + s.Value.Inspect()
}

// ThrownValue extracts the script value from an unwinding error, if it is
// one.
func ThrownValue(err error) (Value, bool) {
	var se *ScriptError
	if stderrors.As(err, &se) {
		return se.Value, true
	}
	return Undefined, false
}

// Throw wraps a script value for unwinding.
func (e *Engine) Throw(v Value) error {
	return &ScriptError{Value: v}
}

// IsFatal reports whether an error must never be visible to script code:
// internal invariant violations abort the invocation, and abort requests
// run only finally blocks on the way out.
func IsFatal(err error) bool {
	var inv *errors.InvariantError
	return stderrors.As(err, &inv)
}

func isAbort(err error) bool {
	var ab *errors.AbortError
	return stderrors.As(err, &ab)
}

// ThrowResult tells an interpreter where unwinding landed inside the current
// frame.
type ThrowResult struct {
	Handled bool
	Target  int // new instruction pointer when handled
}

// DispatchError routes an unwinding error through the current frame's
// handler table, starting at f.IP.
//
// Catchable engine errors become script error objects on first dispatch.
// Handlers are scanned in declaration order (builders emit inner-to-outer);
// each finally handler runs at most once per unwinding pass. Abort errors
// match no catch handler, only finallies. When a handler is found the
// operand stack is cleared and, for catch handlers, the thrown value is
// pushed; the caller jumps to Target. When no handler remains the error
// propagates to the calling frame.
func (e *Engine) DispatchError(f *Frame, err error) (ThrowResult, error) {
	if IsFatal(err) {
		return ThrowResult{}, err
	}

	abort := isAbort(err)
	var exc Value
	if !abort {
		if v, ok := ThrownValue(err); ok {
			exc = v
		} else {
			exc = e.errorToValue(err)
			err = &ScriptError{Value: exc}
		}
	}

	return e.dispatchAt(f, f.IP, err, exc, abort)
}

func (e *Engine) dispatchAt(f *Frame, pc int, err error, exc Value, abort bool) (ThrowResult, error) {
	for i := range f.Method.Handlers {
		h := &f.Method.Handlers[i]
		if !h.Covers(pc) {
			continue
		}
		if f.ranFinally[h.Target] {
			continue
		}
		if h.IsFinally {
			if f.ranFinally == nil {
				f.ranFinally = make(map[int]bool)
			}
			f.ranFinally[h.Target] = true
			f.pendingErr = err
			f.pendingPC = pc
			f.sp = 0
			return ThrowResult{Handled: true, Target: h.Target}, nil
		}
		if abort || !e.handlerMatches(h, exc) {
			continue
		}
		// The pass ends in this catch; a later throw must run the frame's
		// finally handlers again.
		f.ranFinally = nil
		f.pendingErr = nil
		f.sp = 0
		f.Push(exc)
		return ThrowResult{Handled: true, Target: h.Target}, nil
	}
	// The pass leaves the frame.
	f.ranFinally = nil
	return ThrowResult{}, err
}

// FinishFinally is the end-of-finally opcode's engine half. When the finally
// was entered by unwinding, the suspended error resumes from the pc it was
// originally thrown at; the ran-finally set keeps each finally to one run per
// pass. Normal fall-through returns resume=false.
func (e *Engine) FinishFinally(f *Frame) (ThrowResult, error, bool) {
	if f.pendingErr == nil {
		return ThrowResult{}, nil, false
	}
	err := f.pendingErr
	pc := f.pendingPC
	f.pendingErr = nil

	abort := isAbort(err)
	var exc Value
	if v, ok := ThrownValue(err); ok {
		exc = v
	}
	res, err := e.dispatchAt(f, pc, err, exc, abort)
	return res, err, true
}

// handlerMatches applies a handler's type constraint: empty catches all;
// otherwise the thrown value must be an instance of the named class, or a
// primitive of the matching builtin name.
func (e *Engine) handlerMatches(h *ExceptionHandler, exc Value) bool {
	if h.TypeName == "" {
		return true
	}
	switch exc.Type() {
	case TypeString:
		return h.TypeName == "String"
	case TypeBoolean:
		return h.TypeName == "Boolean"
	case TypeInteger, TypeUInteger, TypeNumber:
		return h.TypeName == "Number" || (h.TypeName == "int" && exc.Type() == TypeInteger)
	case TypeObject:
		classRef, ok := e.classes[h.TypeName]
		if !ok {
			return false
		}
		matched, err := e.InstanceOf(exc, ObjectValue(classRef))
		return err == nil && matched
	default:
		return false
	}
}

// errorToValue builds the script-visible error object for a catchable engine
// error. Registered builtin error classes give it a proper class identity;
// without them it degrades to a plain object with name and message.
func (e *Engine) errorToValue(err error) Value {
	className := "Error"
	message := err.Error()
	var ee errors.EngineError
	if stderrors.As(err, &ee) {
		message = ee.Message()
		switch ee.Kind() {
		case errors.KindTypeMismatch:
			className = "TypeError"
		case errors.KindPropertyNotFound:
			className = "ReferenceError"
		case errors.KindStackOverflow, errors.KindInitializationCycle, errors.KindUnhandled:
			className = "Error"
		}
	}
	return e.NewErrorValue(className, message)
}

// NewErrorValue constructs an instance of a registered error class, or a
// plain name/message object when the class is absent or its constructor
// fails.
func (e *Engine) NewErrorValue(className, message string) Value {
	if classRef, ok := e.classes[className]; ok {
		obj, err := e.Construct(ObjectValue(classRef), []Value{NewString(message)})
		if err == nil {
			return obj
		}
	}
	obj := e.NewPlainObject(NilRef, false)
	e.arena.Mutate(obj.Ref(), func(data ObjectData) {
		bag := data.Base().Bag()
		bag.Set("name", NewString(className), false)
		bag.Set("message", NewString(message), false)
	})
	return obj
}
