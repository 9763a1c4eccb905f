package natives

import (
	"sync"
	"sync/atomic"
)

// FnState is the resolution state of a function entry.
type FnState int32

const (
	FnNotResolved FnState = iota
	FnResolved
	FnSymbolError
)

func (s FnState) String() string {
	switch s {
	case FnNotResolved:
		return "NotResolved"
	case FnResolved:
		return "Resolved"
	case FnSymbolError:
		return "SymbolError"
	default:
		return "Unknown"
	}
}

// function is the pointer-cache entry for one declaration record.
type function struct {
	decl Decl
	lib  *library

	state atomic.Int32
	ptr   atomic.Uintptr

	// resolveGen is the library generation of the last resolution
	// attempt. Resolution runs at most once per load cycle; a SymbolError
	// from the current generation is returned from cache instead of
	// re-querying the platform.
	resolveGen atomic.Uint64

	resolveErrMu sync.Mutex
	resolveErr   error

	// calls counts dispatches, pairing snapshots with crash-log indices.
	calls atomic.Uint64
}

func (f *function) State() FnState { return FnState(f.state.Load()) }

func (f *function) setResolveErr(err error) {
	f.resolveErrMu.Lock()
	f.resolveErr = err
	f.resolveErrMu.Unlock()
}

func (f *function) ResolveErr() error {
	f.resolveErrMu.Lock()
	defer f.resolveErrMu.Unlock()
	return f.resolveErr
}
