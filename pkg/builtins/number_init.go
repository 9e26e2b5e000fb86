package builtins

import (
	"math"
	"strconv"
	"strings"

	"lumen/pkg/vm"
)

func initNumber(e *vm.Engine) {
	proto := e.NewPlainObject(vm.NilRef, false)
	e.SetPrimitiveProto(vm.TypeNumber, proto)

	setMethod(e, proto, "toString", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := e.ToNumberValue(this)
		if err != nil {
			return vm.Undefined, err
		}
		radix := 10
		if !arg(args, 0).IsUndefined() {
			radix = int(args[0].ToInt32())
		}
		if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) {
			return vm.NewString(vm.NumberValue(f).ToString()), nil
		}
		if radix < 2 || radix > 36 {
			radix = 10
		}
		return vm.NewString(strconv.FormatInt(int64(f), radix)), nil
	})

	setMethod(e, proto, "toFixed", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := e.ToNumberValue(this)
		if err != nil {
			return vm.Undefined, err
		}
		digits := int(arg(args, 0).ToInt32())
		if digits < 0 {
			digits = 0
		} else if digits > 20 {
			digits = 20
		}
		return vm.NewString(strconv.FormatFloat(f, 'f', digits, 64)), nil
	})

	setMethod(e, proto, "valueOf", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return this, nil
	})

	ctor := e.NewNativeFunction("Number", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 {
			return vm.IntegerValue(0), nil
		}
		f, err := e.ToNumberValue(args[0])
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(f), nil
	})
	setValue(e, ctor, "MAX_VALUE", vm.NumberValue(math.MaxFloat64))
	setValue(e, ctor, "MIN_VALUE", vm.NumberValue(math.SmallestNonzeroFloat64))
	setValue(e, ctor, "NaN", vm.NaN)
	setValue(e, ctor, "POSITIVE_INFINITY", vm.NumberValue(math.Inf(1)))
	setValue(e, ctor, "NEGATIVE_INFINITY", vm.NumberValue(math.Inf(-1)))
	setValue(e, ctor, "prototype", proto)
	e.Globals().Set("Number", ctor)
}

func initBoolean(e *vm.Engine) {
	proto := e.NewPlainObject(vm.NilRef, false)
	e.SetPrimitiveProto(vm.TypeBoolean, proto)

	setMethod(e, proto, "toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NewString(this.ToString()), nil
	})
	setMethod(e, proto, "valueOf", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return this, nil
	})

	ctor := e.NewNativeFunction("Boolean", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BooleanValue(arg(args, 0).ToBoolean()), nil
	})
	setValue(e, ctor, "prototype", proto)
	e.Globals().Set("Boolean", ctor)
}

func initGlobalFunctions(e *vm.Engine) {
	g := e.Globals()
	g.Set("NaN", vm.NaN)
	g.Set("Infinity", vm.NumberValue(math.Inf(1)))
	g.Set("undefined", vm.Undefined)

	g.Set("isNaN", e.NewNativeFunction("isNaN", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := e.ToNumberValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(math.IsNaN(f)), nil
	}))

	g.Set("isFinite", e.NewNativeFunction("isFinite", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := e.ToNumberValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	}))

	g.Set("parseInt", e.NewNativeFunction("parseInt", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		radix := 0
		if !arg(args, 1).IsUndefined() {
			radix = int(args[1].ToInt32())
		}
		return parseIntValue(s, radix), nil
	}))

	g.Set("parseFloat", e.NewNativeFunction("parseFloat", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		s = strings.TrimSpace(s)
		// Longest numeric prefix.
		for i := len(s); i > 0; i-- {
			if f, perr := strconv.ParseFloat(s[:i], 64); perr == nil {
				return vm.NumberValue(f), nil
			}
		}
		return vm.NaN, nil
	}))
}

// parseIntValue implements the longest-valid-prefix integer parse with radix
// detection.
func parseIntValue(s string, radix int) vm.Value {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	if radix == 0 {
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			radix = 16
			s = s[2:]
		} else {
			radix = 10
		}
	} else if radix == 16 {
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s = s[2:]
		}
	}
	if radix < 2 || radix > 36 {
		return vm.NaN
	}
	end := 0
	for end < len(s) {
		if _, err := strconv.ParseInt(s[:end+1], radix, 64); err != nil {
			break
		}
		end++
	}
	if end == 0 {
		return vm.NaN
	}
	n, _ := strconv.ParseInt(s[:end], radix, 64)
	if neg {
		n = -n
	}
	return vm.NumberValue(float64(n))
}
