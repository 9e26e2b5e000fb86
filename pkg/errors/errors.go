package errors

import (
	"fmt"
)

// EngineError is the interface implemented by all lumen engine errors.
type EngineError interface {
	error         // Embed the standard error interface
	Kind() string // e.g., "TypeMismatch", "StackOverflow"
	// Message returns the specific error message without the kind prefix.
	// Useful if the caller wants to format the error differently.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// Kind values returned by the concrete error types.
const (
	KindTypeMismatch        = "TypeMismatch"
	KindPropertyNotFound    = "PropertyNotFound"
	KindInitializationCycle = "InitializationCycle"
	KindStackOverflow       = "StackOverflow"
	KindUnhandled           = "UnhandledError"
	KindInvariant           = "InternalInvariantViolation"
	KindAbort               = "Abort"
)

// --- Concrete Error Types ---

// TypeMismatchError reports a failed downcast or an operation applied to a
// value of the wrong variant. It is scriptable: interpreters convert it into
// a catchable script exception before it reaches user handlers.
type TypeMismatchError struct {
	Want  string
	Got   string
	Msg   string
	Cause error
}

func (e *TypeMismatchError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("Type Mismatch: %s", e.Msg)
	}
	return fmt.Sprintf("Type Mismatch: expected %s, got %s", e.Want, e.Got)
}
func (e *TypeMismatchError) Kind() string { return "TypeMismatch" }
func (e *TypeMismatchError) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
}
func (e *TypeMismatchError) Unwrap() error { return e.Cause }

// PropertyNotFoundError reports a write to an undeclared property on a sealed
// object. Reads and writes on dynamic objects never produce it.
type PropertyNotFoundError struct {
	Object   string // class name or object description
	Property string
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("Property Not Found: %s has no property %q", e.Object, e.Property)
}
func (e *PropertyNotFoundError) Kind() string { return "PropertyNotFound" }
func (e *PropertyNotFoundError) Message() string {
	return fmt.Sprintf("%s has no property %q", e.Object, e.Property)
}
func (e *PropertyNotFoundError) Unwrap() error { return nil }

// InitializationCycleError reports a class whose initializer re-entered
// itself, or a class whose earlier initialization failed. Subsequent access
// attempts re-raise the same error rather than silently retrying.
type InitializationCycleError struct {
	Class string
	Cause error
}

func (e *InitializationCycleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Initialization Cycle: class %s failed to initialize: %v", e.Class, e.Cause)
	}
	return fmt.Sprintf("Initialization Cycle: class %s is already being initialized", e.Class)
}
func (e *InitializationCycleError) Kind() string { return "InitializationCycle" }
func (e *InitializationCycleError) Message() string {
	if e.Cause != nil {
		return fmt.Sprintf("class %s failed to initialize: %v", e.Class, e.Cause)
	}
	return fmt.Sprintf("class %s is already being initialized", e.Class)
}
func (e *InitializationCycleError) Unwrap() error { return e.Cause }

// StackOverflowError reports that a re-entrant call chain exceeded the
// configured maximum frame depth.
type StackOverflowError struct {
	Depth int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("Stack Overflow: call depth exceeded %d frames", e.Depth)
}
func (e *StackOverflowError) Kind() string { return "StackOverflow" }
func (e *StackOverflowError) Message() string {
	return fmt.Sprintf("call depth exceeded %d frames", e.Depth)
}
func (e *StackOverflowError) Unwrap() error { return nil }

// UnhandledError carries a script-thrown value that escaped the top frame.
// Coerced holds the thrown value's string coercion for host-side logging.
type UnhandledError struct {
	Coerced string
	Method  string // entry point or method name, if known
}

func (e *UnhandledError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("Unhandled Error in %s: %s", e.Method, e.Coerced)
	}
	return fmt.Sprintf("Unhandled Error: %s", e.Coerced)
}
func (e *UnhandledError) Kind() string    { return "UnhandledError" }
func (e *UnhandledError) Message() string { return e.Coerced }
func (e *UnhandledError) Unwrap() error   { return nil }

// InvariantError reports an arena or resolver contract breach. It is always
// fatal for the enclosing invocation and is never surfaced as a scriptable
// exception.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("Internal Invariant Violation: %s", e.Msg)
}
func (e *InvariantError) Kind() string    { return "InternalInvariantViolation" }
func (e *InvariantError) Message() string { return e.Msg }
func (e *InvariantError) Unwrap() error   { return nil }

// AbortError reports that the host aborted a running script, either
// explicitly or via the instruction budget. It matches no catch handler but
// still runs finally blocks during unwinding.
type AbortError struct {
	Reason string // "host abort" or "instruction budget exhausted"
}

func (e *AbortError) Error() string   { return fmt.Sprintf("Script Aborted: %s", e.Reason) }
func (e *AbortError) Kind() string    { return "Abort" }
func (e *AbortError) Message() string { return e.Reason }
func (e *AbortError) Unwrap() error   { return nil }
