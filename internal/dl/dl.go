// Package dl wraps the platform dynamic-loading primitives behind a small
// Runtime interface so the engine can be exercised against an in-memory
// fake in tests and tooling.
package dl

import "errors"

// ErrClosed is returned when a handle is used after Close.
var ErrClosed = errors.New("dl: handle closed")

// Runtime abstracts dlopen/dlsym/dlclose plus raw symbol invocation.
// System is the production implementation; Fake backs tests.
type Runtime interface {
	// Open loads the library at path with the given RTLD flags and
	// returns an opaque handle.
	Open(path string, flags int) (uintptr, error)

	// Lookup resolves a symbol by name in an open handle.
	Lookup(handle uintptr, name string) (uintptr, error)

	// Close releases the handle. Symbols resolved from it must not be
	// invoked afterwards.
	Close(handle uintptr) error

	// Invoke calls the native entry point at addr with the given
	// stack-word arguments and returns the first result register.
	Invoke(addr uintptr, args []uintptr) uintptr
}

// System returns the platform Runtime.
func System() Runtime { return systemRuntime{} }
