package natives

import (
	"sync"
	"sync/atomic"
)

// LibState is the lifecycle state of a library entry.
type LibState int32

const (
	LibUnloaded LibState = iota
	LibLoaded
	LibLoadError
)

func (s LibState) String() string {
	switch s {
	case LibUnloaded:
		return "Unloaded"
	case LibLoaded:
		return "Loaded"
	case LibLoadError:
		return "LoadError"
	default:
		return "Unknown"
	}
}

// library is the handle store entry for one distinct library name. It is
// created at Initialize and lives until Reset. State transitions happen
// under mu; dispatch reads the atomic fields without mu, so every field
// dispatch touches is atomic.
type library struct {
	name string

	// mu serializes Load/Unload/Reload and path resolution.
	mu sync.Mutex

	// guard orders dispatch against unload when Options.ThreadSafe is
	// set. Dispatch holds the read side for the duration of the native
	// call; Unload holds the write side while releasing the handle.
	guard sync.RWMutex

	// gen increments on every unload. Function pointers resolved under an
	// older generation are stale. Non-thread-safe dispatch compares gen
	// before and after the native call to detect unload races.
	gen atomic.Uint64

	state  atomic.Int32
	handle atomic.Uintptr

	// path is resolved once lazily under mu and never changes afterwards.
	path    string
	pathErr error

	// loadErr holds the most recent platform open failure.
	loadErrMu sync.Mutex
	loadErr   error

	funcs []*function
}

func (l *library) State() LibState { return LibState(l.state.Load()) }

func (l *library) setLoadErr(err error) {
	l.loadErrMu.Lock()
	l.loadErr = err
	l.loadErrMu.Unlock()
}

func (l *library) LoadErr() error {
	l.loadErrMu.Lock()
	defer l.loadErrMu.Unlock()
	return l.loadErr
}

// invalidate transitions every function entry back to NotResolved and bumps
// the generation. Callers hold l.mu, and the guard write side when thread
// safety is on, so dispatch never observes a half-invalidated library.
func (l *library) invalidate() {
	l.gen.Add(1)
	for _, f := range l.funcs {
		f.ptr.Store(0)
		f.state.Store(int32(FnNotResolved))
		f.resolveErrMu.Lock()
		f.resolveErr = nil
		f.resolveErrMu.Unlock()
	}
}
