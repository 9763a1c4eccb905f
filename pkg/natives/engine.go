package natives

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/MCpiroman/UnityNativeTool/internal/dl"
)

// Mode selects when libraries and symbols are resolved.
type Mode int

const (
	// Lazy resolves libraries and symbols on first dispatch. Libraries
	// may be unloaded and reloaded mid-run.
	Lazy Mode = iota

	// Preload resolves every library and symbol at Initialize. Unloading
	// while calls may still arrive is the caller's responsibility.
	Preload
)

func (m Mode) String() string {
	if m == Preload {
		return "Preload"
	}
	return "Lazy"
}

// Options configures an Engine. The zero value is usable: Lazy mode,
// DefaultPathPattern, RTLD_NOW binding, no thread safety, no crash log.
type Options struct {
	// PathPattern maps a logical library name to a filesystem path using
	// the {name}, {assets} and {proj} macros.
	PathPattern string

	// AssetsPath and ProjectPath back the {assets} and {proj} macros.
	AssetsPath  string
	ProjectPath string

	Mode Mode

	// POSIXFlags are the dlopen binding flags (RTLD_LAZY or RTLD_NOW,
	// optionally RTLD_GLOBAL). Zero means RTLD_NOW. Ignored on Windows.
	POSIXFlags int

	// ThreadSafe engages the per-library guard: dispatches hold its read
	// side for the duration of the native call and unload waits for them.
	// Costs a lock round-trip on every call.
	ThreadSafe bool

	// CrashLog enables the per-thread diagnostic call log.
	CrashLog       bool
	CrashLogDir    string
	CrashLogArgs   bool
	CrashLogStacks bool

	// WatchForChanges watches resolved library files and schedules a
	// reload onto the engine's queue when one is rewritten on disk.
	WatchForChanges bool

	// Runtime overrides the platform loader. Nil means the real one.
	Runtime dl.Runtime
}

// Metrics are cumulative counters over the engine's lifetime.
type Metrics struct {
	LibrariesLoaded   atomic.Uint64
	LibrariesUnloaded atomic.Uint64
	Dispatches        atomic.Uint64
	DispatchFailures  atomic.Uint64
}

// Engine is the process-wide registry of declared native functions and the
// owner of every loaded library handle. Construct one per process (or per
// test) with New; there is no package-level singleton.
type Engine struct {
	opts Options
	rt   dl.Runtime
	log  *zap.Logger

	mu          sync.RWMutex
	initialized bool
	libs        map[string]*library
	order       []string
	funcs       map[string]*function

	crash   *crashLogger
	queue   *Queue
	watcher *libWatcher

	metrics Metrics
}

// New constructs an Engine. Call Initialize before dispatching.
func New(opts Options) *Engine {
	if opts.PathPattern == "" {
		opts.PathPattern = DefaultPathPattern
	}
	if opts.POSIXFlags == 0 {
		opts.POSIXFlags = dl.RTLD_NOW
	}
	rt := opts.Runtime
	if rt == nil {
		rt = dl.System()
	}
	return &Engine{
		opts:  opts,
		rt:    rt,
		log:   Logger().Named("natives"),
		queue: NewQueue(),
	}
}

// Report carries the per-entry failures of an Initialize under Preload
// mode. Failures never abort initialization; one missing optional native
// must not prevent using the rest.
type Report struct {
	LoadErrors   map[string]error // library name -> open failure
	SymbolErrors map[string]error // "lib!fn" -> resolve failure
}

// Empty reports whether initialization completed without failures.
func (r *Report) Empty() bool {
	return len(r.LoadErrors) == 0 && len(r.SymbolErrors) == 0
}

// Initialize builds the registry from the declaration records. Under
// Preload it also loads every library and resolves every function,
// recording failures in the returned Report. The error return is reserved
// for a malformed registry (duplicate keys) or double initialization.
func (e *Engine) Initialize(decls []Decl) (*Report, error) {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}

	libs := make(map[string]*library)
	funcs := make(map[string]*function)
	var order []string
	for _, d := range decls {
		if d.Library == "" || d.Function == "" {
			e.mu.Unlock()
			return nil, fmt.Errorf("declaration %q: empty library or function name", d.Key())
		}
		if _, dup := funcs[d.Key()]; dup {
			e.mu.Unlock()
			return nil, fmt.Errorf("duplicate declaration %q", d.Key())
		}
		lib, ok := libs[d.Library]
		if !ok {
			lib = &library{name: d.Library}
			libs[d.Library] = lib
			order = append(order, d.Library)
		}
		f := &function{decl: d, lib: lib}
		lib.funcs = append(lib.funcs, f)
		funcs[d.Key()] = f
	}

	e.libs = libs
	e.order = order
	e.funcs = funcs
	e.initialized = true

	if e.opts.CrashLog {
		e.crash = newCrashLogger(e.opts.CrashLogDir, e.opts.CrashLogArgs, e.opts.CrashLogStacks, e.log)
	}
	e.mu.Unlock()

	report := &Report{
		LoadErrors:   make(map[string]error),
		SymbolErrors: make(map[string]error),
	}
	if e.opts.Mode == Preload {
		for _, name := range order {
			lib := libs[name]
			if err := e.loadLibrary(lib); err != nil {
				report.LoadErrors[name] = err
				continue
			}
			for _, f := range lib.funcs {
				if err := e.resolve(f); err != nil {
					report.SymbolErrors[f.decl.Key()] = err
				}
			}
		}
	}

	if e.opts.WatchForChanges {
		if err := e.startWatcher(); err != nil {
			e.log.Warn("library watcher unavailable", zap.Error(err))
		}
	}

	e.log.Info("engine initialized",
		zap.Int("declarations", len(decls)),
		zap.Int("libraries", len(order)),
		zap.Stringer("mode", e.opts.Mode))
	return report, nil
}

func (e *Engine) lib(name string) (*library, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	lib, ok := e.libs[name]
	if !ok {
		return nil, fmt.Errorf("library %q not registered", name)
	}
	return lib, nil
}

func (e *Engine) fn(lib, fn string) (*function, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	f, ok := e.funcs[lib+"!"+fn]
	if !ok {
		return nil, &UnavailableError{Library: lib, Function: fn, Reason: fmt.Errorf("not declared")}
	}
	return f, nil
}

func (e *Engine) crashSink() *crashLogger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.crash
}

// resolvePath computes and caches the library's filesystem path.
// Caller holds lib.mu.
func (e *Engine) resolvePath(lib *library) (string, error) {
	if lib.path != "" || lib.pathErr != nil {
		return lib.path, lib.pathErr
	}
	path, err := ResolvePath(e.opts.PathPattern, lib.name, e.opts.AssetsPath, e.opts.ProjectPath)
	if err != nil {
		lib.pathErr = err
		return "", err
	}
	lib.path = path
	return path, nil
}

// loadLibrary opens the library if it is not already open. Idempotent:
// loading a loaded library is a no-op.
func (e *Engine) loadLibrary(lib *library) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if lib.State() == LibLoaded {
		return nil
	}
	path, err := e.resolvePath(lib)
	if err != nil {
		return err
	}
	handle, err := e.rt.Open(path, e.opts.POSIXFlags)
	if err != nil {
		lerr := &LoadError{Library: lib.name, Path: path, Err: err}
		lib.setLoadErr(lerr)
		lib.state.Store(int32(LibLoadError))
		e.log.Warn("library load failed", zap.String("library", lib.name), zap.String("path", path), zap.Error(err))
		return lerr
	}
	lib.setLoadErr(nil)
	lib.handle.Store(handle)
	lib.state.Store(int32(LibLoaded))
	e.metrics.LibrariesLoaded.Add(1)
	e.log.Info("library loaded", zap.String("library", lib.name), zap.String("path", path))
	return nil
}

// unloadLibrary closes the handle and invalidates every function entry.
// A failed close leaves the library Loaded so the caller can retry.
func (e *Engine) unloadLibrary(lib *library) error {
	// Lock order: guard before mu. Dispatch holds guard.RLock while it
	// takes mu for lazy load/resolve, so taking them in the other order
	// here would deadlock.
	if e.opts.ThreadSafe {
		lib.guard.Lock()
		defer lib.guard.Unlock()
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()

	switch lib.State() {
	case LibUnloaded:
		return nil
	case LibLoadError:
		// Nothing open; clear the sticky error so a later load retries.
		lib.setLoadErr(nil)
		lib.state.Store(int32(LibUnloaded))
		return nil
	}

	if err := e.rt.Close(lib.handle.Load()); err != nil {
		e.log.Warn("library unload failed", zap.String("library", lib.name), zap.Error(err))
		return fmt.Errorf("unload %q: %w", lib.name, err)
	}
	lib.handle.Store(0)
	lib.state.Store(int32(LibUnloaded))
	lib.invalidate()
	e.metrics.LibrariesUnloaded.Add(1)
	e.log.Info("library unloaded", zap.String("library", lib.name))
	return nil
}

// resolve looks up the function's symbol and caches the pointer. At most
// one platform lookup happens per load generation; repeat calls return the
// cached pointer or the cached SymbolError.
func (e *Engine) resolve(f *function) error {
	lib := f.lib
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if lib.State() != LibLoaded {
		return &UnavailableError{Library: lib.name, Function: f.decl.Function, Reason: lib.LoadErr()}
	}

	gen := lib.gen.Load()
	switch f.State() {
	case FnResolved:
		return nil
	case FnSymbolError:
		if f.resolveGen.Load() == gen {
			return f.ResolveErr()
		}
	}

	f.resolveGen.Store(gen)
	addr, err := e.rt.Lookup(lib.handle.Load(), f.decl.Function)
	if err != nil {
		serr := &SymbolError{Library: lib.name, Function: f.decl.Function, Err: err}
		f.setResolveErr(serr)
		f.state.Store(int32(FnSymbolError))
		e.log.Warn("symbol not found", zap.String("library", lib.name), zap.String("function", f.decl.Function), zap.Error(err))
		return serr
	}
	f.ptr.Store(addr)
	f.state.Store(int32(FnResolved))
	return nil
}

// Load opens the named library (resolving its path first if needed).
func (e *Engine) Load(name string) error {
	lib, err := e.lib(name)
	if err != nil {
		return err
	}
	return e.loadLibrary(lib)
}

// Unload closes the named library and invalidates all of its function
// entries. Unloading an unloaded library is a no-op.
func (e *Engine) Unload(name string) error {
	lib, err := e.lib(name)
	if err != nil {
		return err
	}
	return e.unloadLibrary(lib)
}

// Reload fully unloads then reloads the named library. All pointers are
// replaced; there is no partial relink.
func (e *Engine) Reload(name string) error {
	lib, err := e.lib(name)
	if err != nil {
		return err
	}
	if err := e.unloadLibrary(lib); err != nil {
		return err
	}
	return e.loadLibrary(lib)
}

// IsLoaded reports whether the named library is currently loaded.
func (e *Engine) IsLoaded(name string) bool {
	lib, err := e.lib(name)
	if err != nil {
		return false
	}
	return lib.State() == LibLoaded
}

// LoadAll loads every registered library, collecting per-library errors.
func (e *Engine) LoadAll() map[string]error {
	return e.forEachLib(e.loadLibrary)
}

// UnloadAll unloads every registered library, collecting per-library
// errors.
func (e *Engine) UnloadAll() map[string]error {
	return e.forEachLib(e.unloadLibrary)
}

func (e *Engine) forEachLib(op func(*library) error) map[string]error {
	e.mu.RLock()
	order := e.order
	libs := e.libs
	initialized := e.initialized
	e.mu.RUnlock()

	errs := make(map[string]error)
	if !initialized {
		return errs
	}
	for _, name := range order {
		if err := op(libs[name]); err != nil {
			errs[name] = err
		}
	}
	return errs
}

// Queue returns the engine's main-thread re-entry queue. Work that must
// run on the host's chosen thread (watcher-triggered reloads, host
// callbacks) is posted here; the host drains it once per tick.
func (e *Engine) Queue() *Queue { return e.queue }

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() (loaded, unloaded, dispatches, failures uint64) {
	return e.metrics.LibrariesLoaded.Load(),
		e.metrics.LibrariesUnloaded.Load(),
		e.metrics.Dispatches.Load(),
		e.metrics.DispatchFailures.Load()
}

// Reset unloads everything and discards the registry, releasing all
// resources. Safe to call even if a prior Initialize partially failed; a
// fresh Initialize afterwards starts a new generation. Unload failures are
// logged and do not stop the teardown.
func (e *Engine) Reset() {
	e.mu.Lock()
	watcher := e.watcher
	e.watcher = nil
	e.mu.Unlock()
	if watcher != nil {
		watcher.stop()
	}

	for name, err := range e.UnloadAll() {
		e.log.Warn("reset: unload failed", zap.String("library", name), zap.Error(err))
	}

	e.mu.Lock()
	e.libs = nil
	e.order = nil
	e.funcs = nil
	e.initialized = false
	crash := e.crash
	e.crash = nil
	e.mu.Unlock()

	if crash != nil {
		crash.close()
	}
	e.log.Info("engine reset")
}
