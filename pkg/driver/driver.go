// Package driver is the host-facing facade: it owns an engine, installs the
// builtin library and both interpreters, and exposes the invocation surface
// a host embeds. All entry points run scripts to completion on the calling
// goroutine; Abort is the only method safe to call concurrently.
package driver

import (
	stderrors "errors"
	"log/slog"

	"lumen/pkg/avm1"
	"lumen/pkg/avm2"
	"lumen/pkg/builtins"
	"lumen/pkg/errors"
	"lumen/pkg/logger"
	"lumen/pkg/vm"
)

// Options configures a Player.
type Options struct {
	// MaxDepth bounds the logical call stack; 0 uses the engine default.
	MaxDepth int
	// InstructionBudget bounds one host invocation; 0 means unlimited.
	InstructionBudget int64
	// Logger receives unhandled-exception and trace reports. Defaults to the
	// package logger.
	Logger *slog.Logger
}

// Player drives scripts for a host: entry-point invocation, the per-frame
// tick, global access and native class registration.
type Player struct {
	engine *vm.Engine
	log    *slog.Logger

	// frameScripts run every Tick, in registration order. They are strong
	// roots: a registered script survives collection.
	frameScripts []vm.Value

	// listeners are weak: a collected handler silently drops off its event.
	listeners map[string][]vm.WeakRef
}

func New(opts Options) (*Player, error) {
	var engineOpts []vm.Option
	if opts.MaxDepth > 0 {
		engineOpts = append(engineOpts, vm.WithMaxDepth(opts.MaxDepth))
	}
	if opts.InstructionBudget > 0 {
		engineOpts = append(engineOpts, vm.WithInstructionBudget(opts.InstructionBudget))
	}
	e := vm.NewEngine(engineOpts...)
	e.RegisterExecutor(avm1.New())
	e.RegisterExecutor(avm2.New())
	if err := builtins.Install(e); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}

	p := &Player{
		engine:    e,
		log:       log,
		listeners: make(map[string][]vm.WeakRef),
	}
	e.Arena().AddRoots(p)
	return p, nil
}

// Engine exposes the underlying engine for tests and advanced hosts.
func (p *Player) Engine() *vm.Engine { return p.engine }

// EachRoot implements vm.RootSource: frame scripts stay alive for as long as
// they are registered.
func (p *Player) EachRoot(fn func(vm.Ref)) {
	for _, v := range p.frameScripts {
		if v.Type() == vm.TypeObject {
			fn(v.Ref())
		}
	}
}

// Invoke runs a compiled entry point against a receiver. The instruction
// budget resets at this boundary; unhandled script exceptions are logged and
// reported as *errors.UnhandledError, and internal invariant violations
// abort the invocation without tearing down the player.
func (p *Player) Invoke(m *vm.Method, this vm.Value, args []vm.Value) (vm.Value, error) {
	p.engine.ResetBudget()
	return p.protect(m.Name, func() (vm.Value, error) {
		fn := p.engine.NewFunction(m, nil, m.Name)
		return p.engine.Call(fn, this, args)
	})
}

// InvokeMethod resolves and calls a named method on an object.
func (p *Player) InvokeMethod(obj vm.Value, name string, args []vm.Value) (vm.Value, error) {
	p.engine.ResetBudget()
	return p.protect(name, func() (vm.Value, error) {
		return p.engine.CallProperty(obj, name, args)
	})
}

// CallFunction calls a script function value directly.
func (p *Player) CallFunction(fn vm.Value, this vm.Value, args []vm.Value) (vm.Value, error) {
	p.engine.ResetBudget()
	return p.protect("", func() (vm.Value, error) {
		return p.engine.Call(fn, this, args)
	})
}

// AddFrameScript registers a function to run on every tick.
func (p *Player) AddFrameScript(fn vm.Value) {
	p.frameScripts = append(p.frameScripts, fn)
}

// Tick runs all frame scripts once, in registration order. A failing script
// is logged and does not stop the others; the first error is returned.
func (p *Player) Tick() error {
	var first error
	for _, fn := range p.frameScripts {
		p.engine.ResetBudget()
		_, err := p.protect("frame script", func() (vm.Value, error) {
			return p.engine.Call(fn, vm.Undefined, nil)
		})
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AddEventListener registers a weak handler: once the function object is
// collected the handler disappears without explicit removal.
func (p *Player) AddEventListener(event string, fn vm.Value) {
	if fn.Type() != vm.TypeObject {
		return
	}
	p.listeners[event] = append(p.listeners[event], p.engine.Arena().NewWeakRef(fn.Ref()))
}

// DispatchEvent calls every live handler for the event and prunes dead ones.
func (p *Player) DispatchEvent(event string, args []vm.Value) error {
	handlers := p.listeners[event]
	live := handlers[:0]
	var first error
	for _, w := range handlers {
		ref, ok := w.Get()
		if !ok {
			continue
		}
		live = append(live, w)
		p.engine.ResetBudget()
		_, err := p.protect(event, func() (vm.Value, error) {
			return p.engine.Call(vm.ObjectValue(ref), vm.Undefined, args)
		})
		if err != nil && first == nil {
			first = err
		}
	}
	p.listeners[event] = live
	return first
}

// GetGlobal reads a named global.
func (p *Player) GetGlobal(name string) (vm.Value, bool) {
	return p.engine.Globals().Get(name)
}

// SetGlobal defines a named global.
func (p *Player) SetGlobal(name string, v vm.Value) {
	p.engine.Globals().Set(name, v)
}

// RegisterNativeClass exposes a Go-backed class to scripts and as a global.
func (p *Player) RegisterNativeClass(def vm.NativeClassDef) (vm.Value, error) {
	class, err := p.engine.RegisterNativeClass(def)
	if err != nil {
		return vm.Undefined, err
	}
	p.engine.Globals().Set(def.Name, class)
	return class, nil
}

// Abort cancels the running script at its next instruction boundary. Safe
// from other goroutines.
func (p *Player) Abort(reason string) {
	p.engine.Abort(reason)
}

// protect converts escaping script exceptions into UnhandledError, logs
// them, and recovers invariant-violation panics into plain errors so one bad
// invocation cannot take the host down.
func (p *Player) protect(name string, fn func() (vm.Value, error)) (result vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if inv, ok := r.(*errors.InvariantError); ok {
				p.log.Error("invariant violation", "method", name, "error", inv.Message())
				result = vm.Undefined
				err = inv
				return
			}
			panic(r)
		}
	}()

	result, err = fn()
	if err == nil {
		return result, nil
	}
	if thrown, ok := vm.ThrownValue(err); ok {
		coerced := p.renderThrown(thrown)
		p.log.Error("unhandled exception", "method", name, "thrown", coerced)
		return vm.Undefined, &errors.UnhandledError{Coerced: coerced, Method: name}
	}
	var abort *errors.AbortError
	if stderrors.As(err, &abort) {
		p.log.Warn("script aborted", "method", name, "reason", abort.Reason)
	}
	return vm.Undefined, err
}

// renderThrown coerces the thrown value for logging without letting its own
// toString fail the report.
func (p *Player) renderThrown(v vm.Value) string {
	s, err := p.engine.ToStringValue(v)
	if err != nil {
		return v.Inspect()
	}
	return s
}
