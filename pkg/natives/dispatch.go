package natives

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Call dispatches to the declared native function with the given
// stack-word arguments and returns the raw result word. This is the entry
// point redirected call sites invoke; arguments are forwarded to the native
// side unchanged.
//
// Under Lazy mode an unresolved function triggers library load and symbol
// resolution on the spot. Under Preload it is a contract violation: the
// function should have been resolved at Initialize, and failing fast beats
// silently lazy-loading.
//
// Call never returns a default value on failure; an unavailable native
// always surfaces as an error.
func (e *Engine) Call(lib, fn string, args ...uintptr) (uintptr, error) {
	f, err := e.fn(lib, fn)
	if err != nil {
		e.metrics.DispatchFailures.Add(1)
		return 0, err
	}
	return e.dispatch(f, args)
}

// Func returns the stable dispatch closure for one declaration. The
// code-rewriting collaborator targets these: one closure per declared
// function, valid across unload and reload.
func (e *Engine) Func(lib, fn string) (func(args ...uintptr) (uintptr, error), error) {
	f, err := e.fn(lib, fn)
	if err != nil {
		return nil, err
	}
	return func(args ...uintptr) (uintptr, error) {
		return e.dispatch(f, args)
	}, nil
}

// MustFunc is Func but panics if the declaration does not exist. Intended
// for generated trampoline tables built right after Initialize.
func (e *Engine) MustFunc(lib, fn string) func(args ...uintptr) (uintptr, error) {
	f, err := e.Func(lib, fn)
	if err != nil {
		panic(fmt.Sprintf("natives: %v", err))
	}
	return f
}

func (e *Engine) dispatch(f *function, args []uintptr) (uintptr, error) {
	if len(args) != len(f.decl.Sig.Params) {
		e.metrics.DispatchFailures.Add(1)
		return 0, fmt.Errorf("dispatch %s: got %d args, declared %d",
			f.decl.Key(), len(args), len(f.decl.Sig.Params))
	}

	lib := f.lib
	if e.opts.ThreadSafe {
		lib.guard.RLock()
		defer lib.guard.RUnlock()
	}

	switch f.State() {
	case FnResolved:
	case FnSymbolError:
		e.metrics.DispatchFailures.Add(1)
		return 0, &UnavailableError{Library: f.decl.Library, Function: f.decl.Function, Reason: f.ResolveErr()}
	default: // FnNotResolved
		if e.opts.Mode == Preload {
			e.metrics.DispatchFailures.Add(1)
			return 0, fmt.Errorf("%w: %s was never resolved", ErrPreloadViolation, f.decl.Key())
		}
		if err := e.lazyResolve(f); err != nil {
			e.metrics.DispatchFailures.Add(1)
			return 0, err
		}
	}

	gen := lib.gen.Load()
	addr := f.ptr.Load()
	index := f.calls.Add(1)
	e.metrics.Dispatches.Add(1)

	crash := e.crashSink()
	if crash != nil {
		crash.pre(f.decl, index, args)
	}
	ret := e.rt.Invoke(addr, args)
	if crash != nil {
		crash.post(f.decl, index, ret)
	}

	// Without the guard an unload can race the call above. The generation
	// check cannot prevent that, only refuse to pass off the result of a
	// call that overlapped an unload as a clean one.
	if !e.opts.ThreadSafe && lib.gen.Load() != gen {
		e.metrics.DispatchFailures.Add(1)
		e.log.Error("unload raced a native call", zap.String("function", f.decl.Key()))
		return ret, fmt.Errorf("%w: %s", ErrUnloadedMidCall, f.decl.Key())
	}
	return ret, nil
}

// lazyResolve brings a NotResolved function to Resolved under Lazy mode,
// loading the library first if needed. Errors come back as
// *UnavailableError so the call site sees one failure shape.
func (e *Engine) lazyResolve(f *function) error {
	if f.lib.State() != LibLoaded {
		if err := e.loadLibrary(f.lib); err != nil {
			return &UnavailableError{Library: f.decl.Library, Function: f.decl.Function, Reason: err}
		}
	}
	if err := e.resolve(f); err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			return err
		}
		return &UnavailableError{Library: f.decl.Library, Function: f.decl.Function, Reason: err}
	}
	return nil
}
