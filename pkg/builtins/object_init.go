package builtins

import (
	"lumen/pkg/vm"
)

func initObject(e *vm.Engine, proto vm.Value) {
	setMethod(e, proto, "toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NewString("[object Object]"), nil
	})
	setMethod(e, proto, "valueOf", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return this, nil
	})
	setMethod(e, proto, "hasOwnProperty", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if this.Type() != vm.TypeObject {
			return vm.False, nil
		}
		name, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		bag := e.Arena().Get(this.Ref()).Base().Bag()
		if bag == nil {
			return vm.False, nil
		}
		_, ok := bag.Get(name, false)
		return vm.BooleanValue(ok), nil
	})

	ctor := e.NewNativeFunction("Object", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) > 0 && args[0].Type() == vm.TypeObject {
			return args[0], nil
		}
		return e.NewPlainObject(vm.NilRef, false), nil
	})
	setValue(e, ctor, "prototype", proto)
	setValue(e, proto, "constructor", ctor)
	e.Globals().Set("Object", ctor)
}

func initFunction(e *vm.Engine, proto vm.Value) {
	setMethod(e, proto, "call", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return e.Call(this, arg(args, 0), args[min(1, len(args)):])
	})
	setMethod(e, proto, "apply", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		var callArgs []vm.Value
		if a := arg(args, 1); a.Type() == vm.TypeObject {
			if arr, ok := e.Arena().Get(a.Ref()).(*vm.ArrayData); ok {
				callArgs = append(callArgs, arr.Elements()...)
			}
		}
		return e.Call(this, arg(args, 0), callArgs)
	})
	setMethod(e, proto, "toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NewString("[type Function]"), nil
	})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
