package dl

import (
	"fmt"
	"sync"
)

// FakeFunc is a Go implementation standing in for a native entry point.
type FakeFunc func(args []uintptr) uintptr

// FakeLib describes one loadable library in a Fake runtime.
type FakeLib struct {
	// Symbols maps exported symbol names to their implementations.
	Symbols map[string]FakeFunc

	// OpenErr, if set, makes Open fail as if the platform refused to
	// load the file.
	OpenErr error

	// CloseErr, if set, makes Close fail as if the platform refused to
	// release the handle.
	CloseErr error
}

// Fake is an in-memory Runtime keyed by path. It records open/close
// traffic so tests can assert on handle lifecycles.
type Fake struct {
	mu      sync.Mutex
	libs    map[string]*FakeLib
	next    uintptr
	open    map[uintptr]*FakeLib
	funcs   map[uintptr]FakeFunc
	nextFn  uintptr
	Opens   int
	Closes  int
	Lookups int
}

// NewFake returns a Fake with the given libraries registered.
func NewFake(libs map[string]*FakeLib) *Fake {
	return &Fake{
		libs:   libs,
		next:   1,
		open:   make(map[uintptr]*FakeLib),
		funcs:  make(map[uintptr]FakeFunc),
		nextFn: 1 << 20,
	}
}

func (f *Fake) Open(path string, flags int) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lib, ok := f.libs[path]
	if !ok {
		return 0, fmt.Errorf("dlopen: %s: cannot open shared object file: No such file or directory", path)
	}
	if lib.OpenErr != nil {
		return 0, lib.OpenErr
	}
	h := f.next
	f.next++
	f.open[h] = lib
	f.Opens++
	return h, nil
}

func (f *Fake) Lookup(handle uintptr, name string) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lib, ok := f.open[handle]
	if !ok {
		return 0, ErrClosed
	}
	fn, ok := lib.Symbols[name]
	if !ok {
		return 0, fmt.Errorf("dlsym: undefined symbol: %s", name)
	}
	addr := f.nextFn
	f.nextFn++
	f.funcs[addr] = fn
	f.Lookups++
	return addr, nil
}

func (f *Fake) Close(handle uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lib, ok := f.open[handle]
	if !ok {
		return ErrClosed
	}
	if lib.CloseErr != nil {
		return lib.CloseErr
	}
	delete(f.open, handle)
	f.Closes++
	return nil
}

func (f *Fake) Invoke(addr uintptr, args []uintptr) uintptr {
	f.mu.Lock()
	fn, ok := f.funcs[addr]
	f.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("dl: invoke of unknown address %#x", addr))
	}
	return fn(args)
}

// IsOpen reports whether any handle onto path is currently open.
func (f *Fake) IsOpen(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	lib, ok := f.libs[path]
	if !ok {
		return false
	}
	for _, l := range f.open {
		if l == lib {
			return true
		}
	}
	return false
}
