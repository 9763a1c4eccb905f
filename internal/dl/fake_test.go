package dl

import (
	"errors"
	"testing"
)

func TestFake_OpenLookupInvokeClose(t *testing.T) {
	f := NewFake(map[string]*FakeLib{
		"/x/lib.so": {
			Symbols: map[string]FakeFunc{
				"twice": func(args []uintptr) uintptr { return args[0] * 2 },
			},
		},
	})

	h, err := f.Open("/x/lib.so", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	addr, err := f.Lookup(h, "twice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := f.Invoke(addr, []uintptr{21}); got != 42 {
		t.Errorf("invoke = %d, want 42", got)
	}
	if _, err := f.Lookup(h, "missing"); err == nil {
		t.Error("lookup of missing symbol should fail")
	}
	if err := f.Close(h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.Close(h); !errors.Is(err, ErrClosed) {
		t.Errorf("double close: want ErrClosed, got %v", err)
	}
	if _, err := f.Lookup(h, "twice"); !errors.Is(err, ErrClosed) {
		t.Errorf("lookup after close: want ErrClosed, got %v", err)
	}
}

func TestFake_OpenMissingPath(t *testing.T) {
	f := NewFake(nil)
	if _, err := f.Open("/nope.so", 0); err == nil {
		t.Fatal("open of unregistered path should fail")
	}
}
