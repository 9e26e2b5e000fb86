package builtins

import (
	"math"
	"math/rand"

	"lumen/pkg/vm"
)

func initMath(e *vm.Engine) {
	obj := e.NewPlainObject(vm.NilRef, false)

	setValue(e, obj, "PI", vm.NumberValue(math.Pi))
	setValue(e, obj, "E", vm.NumberValue(math.E))
	setValue(e, obj, "LN2", vm.NumberValue(math.Ln2))
	setValue(e, obj, "SQRT2", vm.NumberValue(math.Sqrt2))

	unary := func(name string, fn func(float64) float64) {
		setMethod(e, obj, name, 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
			f, err := e.ToNumberValue(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NumberValue(fn(f)), nil
		})
	}
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("atan", math.Atan)
	unary("log", math.Log)
	unary("exp", math.Exp)
	unary("round", func(f float64) float64 {
		// Half-up rounding, -0.5 rounds to 0.
		return math.Floor(f + 0.5)
	})

	setMethod(e, obj, "pow", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		a, err := e.ToNumberValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		b, err := e.ToNumberValue(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(math.Pow(a, b)), nil
	})

	setMethod(e, obj, "atan2", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		y, err := e.ToNumberValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		x, err := e.ToNumberValue(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(math.Atan2(y, x)), nil
	})

	variadic := func(name string, pick func(a, b float64) float64, empty float64) {
		setMethod(e, obj, name, -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.NumberValue(empty), nil
			}
			best, err := e.ToNumberValue(args[0])
			if err != nil {
				return vm.Undefined, err
			}
			for _, a := range args[1:] {
				f, err := e.ToNumberValue(a)
				if err != nil {
					return vm.Undefined, err
				}
				if math.IsNaN(f) || math.IsNaN(best) {
					return vm.NaN, nil
				}
				best = pick(best, f)
			}
			return vm.NumberValue(best), nil
		})
	}
	variadic("min", math.Min, math.Inf(1))
	variadic("max", math.Max, math.Inf(-1))

	setMethod(e, obj, "random", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NumberValue(rand.Float64()), nil
	})

	e.Globals().Set("Math", obj)
}
