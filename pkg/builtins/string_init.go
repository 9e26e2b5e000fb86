package builtins

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"lumen/pkg/vm"
)

// collator backs localeCompare; root-locale ordering, built once.
var collator = collate.New(language.Und)

func initString(e *vm.Engine) {
	proto := e.NewPlainObject(vm.NilRef, false)
	e.SetPrimitiveProto(vm.TypeString, proto)

	selfString := func(e *vm.Engine, this vm.Value) (string, error) {
		return e.ToStringValue(this)
	}

	setMethod(e, proto, "charAt", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		runes := []rune(s)
		i := int(arg(args, 0).ToInt32())
		if i < 0 || i >= len(runes) {
			return vm.NewString(""), nil
		}
		return vm.NewString(string(runes[i])), nil
	})

	setMethod(e, proto, "charCodeAt", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		runes := []rune(s)
		i := int(arg(args, 0).ToInt32())
		if i < 0 || i >= len(runes) {
			return vm.NaN, nil
		}
		return vm.IntegerValue(int32(runes[i])), nil
	})

	setMethod(e, proto, "indexOf", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		needle, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntegerValue(int32(strings.Index(s, needle))), nil
	})

	setMethod(e, proto, "substring", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		runes := []rune(s)
		n := len(runes)
		start := clampIndex(arg(args, 0), 0, n)
		end := clampIndex(arg(args, 1), n, n)
		if start > end {
			start, end = end, start
		}
		return vm.NewString(string(runes[start:end])), nil
	})

	setMethod(e, proto, "slice", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		runes := []rune(s)
		n := len(runes)
		start := sliceBound(arg(args, 0), 0, n)
		end := sliceBound(arg(args, 1), n, n)
		if start >= end {
			return vm.NewString(""), nil
		}
		return vm.NewString(string(runes[start:end])), nil
	})

	setMethod(e, proto, "split", 2, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		if arg(args, 0).IsUndefined() {
			return e.NewArray([]vm.Value{vm.NewString(s)}), nil
		}
		sep, err := e.ToStringValue(args[0])
		if err != nil {
			return vm.Undefined, err
		}
		parts := strings.Split(s, sep)
		elems := make([]vm.Value, len(parts))
		for i, p := range parts {
			elems[i] = vm.NewString(p)
		}
		return e.NewArray(elems), nil
	})

	setMethod(e, proto, "toUpperCase", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(strings.ToUpper(s)), nil
	})

	setMethod(e, proto, "toLowerCase", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(strings.ToLower(s)), nil
	})

	setMethod(e, proto, "concat", -1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		var sb strings.Builder
		sb.WriteString(s)
		for _, a := range args {
			part, err := e.ToStringValue(a)
			if err != nil {
				return vm.Undefined, err
			}
			sb.WriteString(part)
		}
		return vm.NewString(sb.String()), nil
	})

	setMethod(e, proto, "localeCompare", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		other, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntegerValue(int32(collator.CompareString(s, other))), nil
	})

	setMethod(e, proto, "toString", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := selfString(e, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(s), nil
	})

	setMethod(e, proto, "valueOf", 0, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		return this, nil
	})

	ctor := e.NewNativeFunction("String", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 {
			return vm.NewString(""), nil
		}
		s, err := e.ToStringValue(args[0])
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewString(s), nil
	})
	setValue(e, ctor, "prototype", proto)
	e.Globals().Set("String", ctor)
}

// clampIndex clamps to [0, n] without from-the-end counting (substring
// semantics).
func clampIndex(v vm.Value, def, n int) int {
	if v.IsUndefined() {
		return def
	}
	i := int(v.ToInt32())
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
