package builtins

import (
	"lumen/pkg/vm"
)

// initErrors registers the error class hierarchy the exception machinery
// targets: Error at the root, TypeError and ReferenceError under it. Engine
// errors that scripts may catch surface as instances of these.
func initErrors(e *vm.Engine) error {
	names := []struct {
		name  string
		super string
	}{
		{"Error", ""},
		{"TypeError", "Error"},
		{"ReferenceError", "Error"},
		{"RangeError", "Error"},
	}

	for _, n := range names {
		name := n.name
		def := vm.NativeClassDef{
			Name:      name,
			SuperName: n.super,
			Ctor: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
				msg := ""
				if len(args) > 0 && !args[0].IsUndefined() {
					s, err := e.ToStringValue(args[0])
					if err != nil {
						return vm.Undefined, err
					}
					msg = s
				}
				if err := e.SetProperty(this, "name", vm.NewString(name)); err != nil {
					return vm.Undefined, err
				}
				if err := e.SetProperty(this, "message", vm.NewString(msg)); err != nil {
					return vm.Undefined, err
				}
				return vm.Undefined, nil
			},
			Methods: []vm.NativeMethodDef{
				{
					Name:  "toString",
					Arity: 0,
					Func: func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
						nameV, err := e.GetProperty(this, "name")
						if err != nil {
							return vm.Undefined, err
						}
						msgV, err := e.GetProperty(this, "message")
						if err != nil {
							return vm.Undefined, err
						}
						msg := msgV.ToString()
						if msg == "" {
							return vm.NewString(nameV.ToString()), nil
						}
						return vm.NewString(nameV.ToString() + ": " + msg), nil
					},
				},
			},
		}
		class, err := e.RegisterNativeClass(def)
		if err != nil {
			return err
		}
		e.Globals().Set(name, class)
	}
	return nil
}
