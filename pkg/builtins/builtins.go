// Package builtins wires the standard library into an engine: prototype
// objects for the core kinds, primitive method surfaces, the global
// constructors, Math, the error class hierarchy, RegExp and the default
// trace hook.
package builtins

import (
	"lumen/pkg/vm"
)

// Install registers everything. Call it once per engine, before any script
// runs.
func Install(e *vm.Engine) error {
	// Prototype objects first, oldest at the root: the object prototype has
	// no prototype of its own, everything else chains to it.
	objectProto := e.NewPlainObject(vm.NilRef, false)
	e.SetDefaultProto(vm.KindPlain, objectProto)
	functionProto := e.NewPlainObject(vm.NilRef, false)
	e.SetDefaultProto(vm.KindFunction, functionProto)
	e.SetDefaultProto(vm.KindBoundMethod, functionProto)
	arrayProto := e.NewPlainObject(vm.NilRef, false)
	e.SetDefaultProto(vm.KindArray, arrayProto)

	initObject(e, objectProto)
	initFunction(e, functionProto)
	initArray(e, arrayProto)
	initString(e)
	initNumber(e)
	initBoolean(e)
	initGlobalFunctions(e)
	initMath(e)
	if err := initErrors(e); err != nil {
		return err
	}
	if err := initRegExp(e); err != nil {
		return err
	}
	initTrace(e)
	return nil
}

// setMethod installs a native function on a prototype object.
func setMethod(e *vm.Engine, proto vm.Value, name string, arity int, fn vm.NativeFunc) {
	method := e.NewNativeFunction(name, arity, fn)
	e.Arena().Mutate(proto.Ref(), func(data vm.ObjectData) {
		data.Base().Bag().Set(name, method, false)
	})
}

// setValue installs a plain value on an object.
func setValue(e *vm.Engine, obj vm.Value, name string, v vm.Value) {
	e.Arena().Mutate(obj.Ref(), func(data vm.ObjectData) {
		data.Base().Bag().Set(name, v, false)
	})
}

// arg returns the i-th argument or Undefined.
func arg(args []vm.Value, i int) vm.Value {
	if i < len(args) {
		return args[i]
	}
	return vm.Undefined
}
