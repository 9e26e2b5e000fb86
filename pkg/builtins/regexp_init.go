package builtins

import (
	"strings"

	"github.com/dlclark/regexp2"

	"lumen/pkg/errors"
	"lumen/pkg/vm"
)

// initRegExp registers the RegExp class. Instances keep their pattern and
// flags as dynamic properties; compilation happens on use, so a bad pattern
// fails at the call site as a catchable error.
func initRegExp(e *vm.Engine) error {
	def := vm.NativeClassDef{
		Name: "RegExp",
		Ctor: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
			source, err := e.ToStringValue(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			flags := ""
			if !arg(args, 1).IsUndefined() {
				if flags, err = e.ToStringValue(args[1]); err != nil {
					return vm.Undefined, err
				}
			}
			if _, err := compilePattern(source, flags); err != nil {
				return vm.Undefined, err
			}
			if err := e.SetProperty(this, "source", vm.NewString(source)); err != nil {
				return vm.Undefined, err
			}
			if err := e.SetProperty(this, "flags", vm.NewString(flags)); err != nil {
				return vm.Undefined, err
			}
			if err := e.SetProperty(this, "global", vm.BooleanValue(strings.Contains(flags, "g"))); err != nil {
				return vm.Undefined, err
			}
			return vm.Undefined, nil
		},
		Methods: []vm.NativeMethodDef{
			{
				Name:  "test",
				Arity: 1,
				Func: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
					re, err := instancePattern(e, this)
					if err != nil {
						return vm.Undefined, err
					}
					input, err := e.ToStringValue(arg(args, 0))
					if err != nil {
						return vm.Undefined, err
					}
					ok, merr := re.MatchString(input)
					if merr != nil {
						return vm.Undefined, &errors.TypeMismatchError{Want: "matchable input", Got: "string",
							Msg: "regular expression match failed: " + merr.Error()}
					}
					return vm.BooleanValue(ok), nil
				},
			},
			{
				Name:  "exec",
				Arity: 1,
				Func: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
					re, err := instancePattern(e, this)
					if err != nil {
						return vm.Undefined, err
					}
					input, err := e.ToStringValue(arg(args, 0))
					if err != nil {
						return vm.Undefined, err
					}
					m, merr := re.FindStringMatch(input)
					if merr != nil || m == nil {
						return vm.Null, nil
					}
					groups := m.Groups()
					elems := make([]vm.Value, len(groups))
					for i, g := range groups {
						elems[i] = vm.NewString(g.String())
					}
					result := e.NewArray(elems)
					if err := e.SetProperty(result, "index", vm.IntegerValue(int32(m.Index))); err != nil {
						return vm.Undefined, err
					}
					if err := e.SetProperty(result, "input", vm.NewString(input)); err != nil {
						return vm.Undefined, err
					}
					return result, nil
				},
			},
			{
				Name:  "toString",
				Arity: 0,
				Func: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
					source, err := e.GetProperty(this, "source")
					if err != nil {
						return vm.Undefined, err
					}
					flags, err := e.GetProperty(this, "flags")
					if err != nil {
						return vm.Undefined, err
					}
					return vm.NewString("/" + source.ToString() + "/" + flags.ToString()), nil
				},
			},
		},
	}

	class, err := e.RegisterNativeClass(def)
	if err != nil {
		return err
	}
	e.Globals().Set("RegExp", class)
	return nil
}

func instancePattern(e *vm.Engine, this vm.Value) (*regexp2.Regexp, error) {
	source, err := e.GetProperty(this, "source")
	if err != nil {
		return nil, err
	}
	flags, err := e.GetProperty(this, "flags")
	if err != nil {
		return nil, err
	}
	return compilePattern(source.ToString(), flags.ToString())
}

func compilePattern(source, flags string) (*regexp2.Regexp, error) {
	var opts regexp2.RegexOptions
	if strings.Contains(flags, "i") {
		opts |= regexp2.IgnoreCase
	}
	if strings.Contains(flags, "m") {
		opts |= regexp2.Multiline
	}
	if strings.Contains(flags, "s") {
		opts |= regexp2.Singleline
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, &errors.TypeMismatchError{Want: "valid pattern", Got: "string",
			Msg: "invalid regular expression: " + err.Error()}
	}
	return re, nil
}
