//go:build (!linux || !cgo) && !windows

package dl

import "github.com/ebitengine/purego"

// RTLD flags for dlopen - exported from purego for use by the engine.
const (
	RTLD_LAZY   = purego.RTLD_LAZY
	RTLD_NOW    = purego.RTLD_NOW
	RTLD_GLOBAL = purego.RTLD_GLOBAL
	RTLD_LOCAL  = purego.RTLD_LOCAL
)

type systemRuntime struct{}

func (systemRuntime) Open(path string, flags int) (uintptr, error) {
	return purego.Dlopen(path, flags)
}

func (systemRuntime) Lookup(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func (systemRuntime) Close(handle uintptr) error {
	return purego.Dlclose(handle)
}

func (systemRuntime) Invoke(addr uintptr, args []uintptr) uintptr {
	r1, _, _ := purego.SyscallN(addr, args...)
	return r1
}
