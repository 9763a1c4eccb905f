package natives

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is returned when a path pattern contains an
	// unrecognized macro token.
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrPreloadViolation is returned when dispatch reaches an unresolved
	// function under Preload mode. Everything should have been resolved at
	// initialization, so this is a programming error, not a recoverable
	// condition.
	ErrPreloadViolation = errors.New("preload contract violation")

	// ErrNotInitialized is returned by operations that require a prior
	// successful Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrAlreadyInitialized is returned by Initialize on an engine that
	// already holds a registry. Reset first to start a new generation.
	ErrAlreadyInitialized = errors.New("engine already initialized")

	// ErrUnloadedMidCall reports that a library's generation changed while
	// a non-thread-safe dispatch was in flight. The native call already ran
	// against a possibly freed handle; the error exists so the race is loud
	// instead of silent.
	ErrUnloadedMidCall = errors.New("library unloaded during native call")
)

// LoadError reports that the platform failed to open a library. It is
// recorded per-library and does not disable the rest of the registry.
type LoadError struct {
	Library string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q (%s): %v", e.Library, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SymbolError reports that a function was not found in an otherwise loaded
// library. Optional natives missing from a given build are expected, so
// this is recorded per-function and is not fatal to the library.
type SymbolError struct {
	Library  string
	Function string
	Err      error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("resolve %s!%s: %v", e.Library, e.Function, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// UnavailableError reports a dispatch against a function that has no
// resolved pointer. It always propagates to the call site; returning a
// default value instead would mask a native-availability bug as a managed
// data bug.
type UnavailableError struct {
	Library  string
	Function string
	Reason   error
}

func (e *UnavailableError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("native function %s!%s unavailable: %v", e.Library, e.Function, e.Reason)
	}
	return fmt.Sprintf("native function %s!%s unavailable", e.Library, e.Function)
}

func (e *UnavailableError) Unwrap() error { return e.Reason }
