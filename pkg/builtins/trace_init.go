package builtins

import (
	"lumen/pkg/logger"
	"lumen/pkg/vm"
)

// initTrace installs the default trace hook: script trace output goes to the
// structured log. Hosts override it by redefining the global.
func initTrace(e *vm.Engine) {
	e.Globals().Set("trace", e.NewNativeFunction("trace", 1, func(e *vm.Engine, this vm.Value, args []vm.Value) (vm.Value, error) {
		msg, err := e.ToStringValue(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		logger.Get().Info("trace", "message", msg)
		return vm.Undefined, nil
	}))
}
