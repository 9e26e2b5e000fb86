package vm

import (
	stderrors "errors"
)

// asError is errors.As under a name that doesn't collide with the engine's
// errors package import in tests.
func asError(err error, target any) bool {
	return stderrors.As(err, target)
}

// stubExecutor runs Go closures in place of bytecode, keyed by method. Tests
// that exercise the call engine without an interpreter register one.
type stubExecutor struct {
	dialect Dialect
	bodies  map[*Method]func(e *Engine, f *Frame) (Value, error)
}

func newStubExecutor(d Dialect) *stubExecutor {
	return &stubExecutor{dialect: d, bodies: make(map[*Method]func(e *Engine, f *Frame) (Value, error))}
}

func (s *stubExecutor) method(name string, body func(e *Engine, f *Frame) (Value, error)) *Method {
	m := &Method{Name: name, Dialect: s.dialect, NumRegs: 1, Pool: &ConstPool{}}
	s.bodies[m] = body
	return m
}

func (s *stubExecutor) Dialect() Dialect { return s.dialect }

func (s *stubExecutor) Run(e *Engine, f *Frame) (Value, error) {
	return s.bodies[f.Method](e, f)
}
