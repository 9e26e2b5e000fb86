package builtins

import (
	"strings"

	"lumen/pkg/errors"
	"lumen/pkg/vm"
)

func initArray(e *vm.Engine, proto vm.Value) {
	setMethod(e, proto, "push", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		e.Arena().Mutate(this.Ref(), func(vm.ObjectData) {
			for _, v := range args {
				arr.Append(v)
			}
		})
		return vm.IntegerValue(int32(arr.Length())), nil
	})

	setMethod(e, proto, "pop", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		n := arr.Length()
		if n == 0 {
			return vm.Undefined, nil
		}
		last := arr.Get(n - 1)
		e.Arena().Mutate(this.Ref(), func(vm.ObjectData) {
			arr.SetLength(n - 1)
		})
		return last, nil
	})

	setMethod(e, proto, "shift", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		if arr.Length() == 0 {
			return vm.Undefined, nil
		}
		first := arr.Get(0)
		e.Arena().Mutate(this.Ref(), func(vm.ObjectData) {
			elems := arr.Elements()
			copy(elems, elems[1:])
			arr.SetLength(len(elems) - 1)
		})
		return first, nil
	})

	setMethod(e, proto, "join", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		sep := ","
		if !arg(args, 0).IsUndefined() {
			if sep, err = e.ToStringValue(args[0]); err != nil {
				return vm.Undefined, err
			}
		}
		parts := make([]string, arr.Length())
		for i := range parts {
			v := arr.Get(i)
			if v.IsNullish() {
				continue
			}
			if parts[i], err = e.ToStringValue(v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.NewString(strings.Join(parts, sep)), nil
	})

	setMethod(e, proto, "concat", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		out := make([]vm.Value, 0, arr.Length()+len(args))
		out = append(out, arr.Elements()...)
		for _, a := range args {
			if a.Type() == vm.TypeObject {
				if other, ok := e.Arena().Get(a.Ref()).(*vm.ArrayData); ok {
					out = append(out, other.Elements()...)
					continue
				}
			}
			out = append(out, a)
		}
		return e.NewArray(out), nil
	})

	setMethod(e, proto, "indexOf", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		needle := arg(args, 0)
		for i := 0; i < arr.Length(); i++ {
			if arr.Get(i).StrictEquals(needle) {
				return vm.IntegerValue(int32(i)), nil
			}
		}
		return vm.IntegerValue(-1), nil
	})

	setMethod(e, proto, "slice", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := arrayData(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		n := arr.Length()
		start := sliceBound(arg(args, 0), 0, n)
		end := sliceBound(arg(args, 1), n, n)
		if start >= end {
			return e.NewArray(nil), nil
		}
		out := make([]vm.Value, end-start)
		copy(out, arr.Elements()[start:end])
		return e.NewArray(out), nil
	})

	setMethod(e, proto, "toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return e.CallProperty(this, "join", nil)
	})

	ctor := e.NewNativeFunction("Array", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 1 && args[0].IsNumeric() {
			n, err := e.CoerceTo(args[0], vm.CoerceInt)
			if err != nil {
				return vm.Undefined, err
			}
			out := e.NewArray(nil)
			e.Arena().Mutate(out.Ref(), func(data vm.ObjectData) {
				data.(*vm.ArrayData).SetLength(int(n.AsInteger()))
			})
			return out, nil
		}
		return e.NewArray(args), nil
	})
	setValue(e, ctor, "prototype", proto)
	setValue(e, proto, "constructor", ctor)
	e.Globals().Set("Array", ctor)
}

func arrayData(e *vm.Engine, this vm.Value) (*vm.ArrayData, error) {
	if this.Type() == vm.TypeObject {
		if arr, ok := e.Arena().Get(this.Ref()).(*vm.ArrayData); ok {
			return arr, nil
		}
	}
	return nil, &errors.TypeMismatchError{Want: "Array", Got: e.TypeOf(this)}
}

// sliceBound clamps a slice argument into [0, n], counting from the end when
// negative.
func sliceBound(v vm.Value, def, n int) int {
	if v.IsUndefined() {
		return def
	}
	i := int(v.ToInt32())
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
