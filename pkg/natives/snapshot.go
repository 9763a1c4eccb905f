package natives

// FunctionStatus is a point-in-time view of one function entry.
type FunctionStatus struct {
	Name  string
	State FnState
	Calls uint64
	Err   string
}

// LibraryStatus is a point-in-time view of one library entry, shaped for
// display by external tooling.
type LibraryStatus struct {
	Name        string
	Path        string
	State       LibState
	Loaded      bool
	LoadError   bool
	SymbolError bool
	Functions   []FunctionStatus
}

// Snapshot returns the status of every registered library in declaration
// order. The snapshot is a copy; it does not track later changes.
func (e *Engine) Snapshot() []LibraryStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil
	}

	out := make([]LibraryStatus, 0, len(e.order))
	for _, name := range e.order {
		lib := e.libs[name]
		st := LibraryStatus{
			Name:   name,
			State:  lib.State(),
			Loaded: lib.State() == LibLoaded,
		}
		lib.mu.Lock()
		st.Path = lib.path
		lib.mu.Unlock()
		if err := lib.LoadErr(); err != nil {
			st.LoadError = true
		}
		for _, f := range lib.funcs {
			fs := FunctionStatus{
				Name:  f.decl.Function,
				State: f.State(),
				Calls: f.calls.Load(),
			}
			if err := f.ResolveErr(); err != nil {
				fs.Err = err.Error()
				st.SymbolError = true
			}
			st.Functions = append(st.Functions, fs)
		}
		out = append(out, st)
	}
	return out
}

// Status returns the snapshot for a single library.
func (e *Engine) Status(name string) (LibraryStatus, bool) {
	for _, st := range e.Snapshot() {
		if st.Name == name {
			return st, true
		}
	}
	return LibraryStatus{}, false
}
