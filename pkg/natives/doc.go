// Package natives implements runtime loading, unloading and reloading of
// native shared libraries together with a dispatch layer that routes
// redirected call sites through the currently resolved function pointers.
//
// A host declares the native functions it expects to call, initializes an
// Engine with them, and dispatches through Engine.Call (or the per-function
// closures returned by Engine.Func). Libraries can be unloaded and reloaded
// while the process runs; the next dispatch after a reload resolves fresh
// pointers, so call sites keep working across native rebuilds.
//
// Two loading modes are supported. Lazy resolves libraries and symbols on
// first dispatch and allows mid-run unload and reload. Preload resolves
// everything at initialization; dispatching a function that failed to
// resolve under Preload is a contract violation, never a silent lazy load.
//
// Thread safety is opt-in. With Options.ThreadSafe set, each library
// carries a guard that orders dispatches against unload and reload. Without
// it, unloading a library while another goroutine is calling into it is the
// caller's responsibility; the engine detects (but cannot prevent) that
// race through a per-library generation counter and fails loudly.
package natives
