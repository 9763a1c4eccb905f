package natives

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MCpiroman/UnityNativeTool/internal/dl"
)

// TestGuard_UnloadWaitsForInFlightCall races an unload against a dispatch
// that blocks inside the native call until signaled. With the guard
// engaged, unload must not free the handle under the in-flight call: the
// call completes first, then the unload proceeds.
func TestGuard_UnloadWaitsForInFlightCall(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fake := dl.NewFake(map[string]*dl.FakeLib{
		"/proj/libmathlib.so": {
			Symbols: map[string]dl.FakeFunc{
				"block": func(args []uintptr) uintptr {
					close(entered)
					<-release
					return 42
				},
			},
		},
	})

	e := newTestEngine(t, fake, Options{ThreadSafe: true})
	decls := []Decl{{Library: "mathlib", Function: "block", Sig: Sig(TypeInt32)}}
	if _, err := e.Initialize(decls); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	callDone := make(chan error, 1)
	var callRet uintptr
	go func() {
		ret, err := e.Call("mathlib", "block")
		callRet = ret
		callDone <- err
	}()

	<-entered // native call is in flight

	unloadDone := make(chan error, 1)
	go func() {
		unloadDone <- e.Unload("mathlib")
	}()

	// The unload must block while the call is in flight.
	select {
	case err := <-unloadDone:
		t.Fatalf("unload completed under an in-flight call (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}
	if fake.IsOpen("/proj/libmathlib.so") == false {
		t.Fatal("handle freed under an in-flight call")
	}

	close(release)

	if err := <-callDone; err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if callRet != 42 {
		t.Errorf("dispatch returned %d, want 42", callRet)
	}
	if err := <-unloadDone; err != nil {
		t.Fatalf("unload after call completed: %v", err)
	}
	if fake.IsOpen("/proj/libmathlib.so") {
		t.Error("handle still open after unload")
	}
}

// TestGuard_CallAfterUnloadLazyReloads starts a dispatch after unload has
// completed; under Lazy mode it must succeed on a fresh handle rather
// than observe the freed one.
func TestGuard_CallAfterUnloadLazyReloads(t *testing.T) {
	fake := mathlibFake()
	e := newTestEngine(t, fake, Options{ThreadSafe: true})
	if _, err := e.Initialize(mathlibDecls()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := e.Call("mathlib", "add", 1, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := e.Unload("mathlib"); err != nil {
		t.Fatalf("unload: %v", err)
	}

	// Lazy mode reloads transparently; the call succeeds on the new
	// handle rather than observing the freed one.
	ret, err := e.Call("mathlib", "add", 20, 22)
	if err != nil {
		t.Fatalf("dispatch after unload: %v", err)
	}
	if ret != 42 {
		t.Errorf("add(20,22) = %d, want 42", ret)
	}
}

func TestConcurrent_DispatchAndReload(t *testing.T) {
	fake := mathlibFake()
	e := newTestEngine(t, fake, Options{ThreadSafe: true})
	if _, err := e.Initialize(mathlibDecls()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	const numGoroutines = 4
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	errCh := make(chan error, numGoroutines*callsPerGoroutine+callsPerGoroutine)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < callsPerGoroutine; i++ {
				ret, err := e.Call("mathlib", "add", 2, 3)
				if err != nil {
					errCh <- err
					continue
				}
				if ret != 5 {
					errCh <- errors.New("wrong result under concurrent reload")
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < callsPerGoroutine; i++ {
			if err := e.Reload("mathlib"); err != nil {
				errCh <- err
			}
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent dispatch/reload: %v", err)
	}
}

// TestGenerationCounter_DetectsUnloadRace exercises the non-thread-safe
// race detection: an unload that overlaps a call makes the call report
// ErrUnloadedMidCall instead of passing its result off as clean.
func TestGenerationCounter_DetectsUnloadRace(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fake := dl.NewFake(map[string]*dl.FakeLib{
		"/proj/libmathlib.so": {
			Symbols: map[string]dl.FakeFunc{
				"block": func(args []uintptr) uintptr {
					close(entered)
					<-release
					return 1
				},
			},
		},
	})

	e := newTestEngine(t, fake, Options{}) // ThreadSafe off
	decls := []Decl{{Library: "mathlib", Function: "block", Sig: Sig(TypeInt32)}}
	if _, err := e.Initialize(decls); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	callDone := make(chan error, 1)
	go func() {
		_, err := e.Call("mathlib", "block")
		callDone <- err
	}()

	<-entered
	if err := e.Unload("mathlib"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	close(release)

	if err := <-callDone; !errors.Is(err, ErrUnloadedMidCall) {
		t.Fatalf("want ErrUnloadedMidCall, got %v", err)
	}
}
