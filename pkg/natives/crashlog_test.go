package natives

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readCrashLogs(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read crash log dir: %v", err)
	}
	var b strings.Builder
	for _, ent := range entries {
		data, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", ent.Name(), err)
		}
		b.Write(data)
	}
	return b.String()
}

func TestCrashLog_RecordsPrePostPairs(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, mathlibFake(), Options{
		CrashLog:     true,
		CrashLogDir:  dir,
		CrashLogArgs: true,
	})
	if _, err := e.Initialize(mathlibDecls()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := e.Call("mathlib", "add", 2, 3); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := e.Call("mathlib", "add", 5, 6); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	logs := readCrashLogs(t, dir)
	if !strings.Contains(logs, "# session ") {
		t.Error("missing session header")
	}
	if !strings.Contains(logs, "pre  mathlib!add") {
		t.Errorf("missing pre record:\n%s", logs)
	}
	if !strings.Contains(logs, "post mathlib!add") {
		t.Errorf("missing post record:\n%s", logs)
	}
	if !strings.Contains(logs, "[00000001]") || !strings.Contains(logs, "[00000002]") {
		t.Errorf("call indices not monotonic per function:\n%s", logs)
	}
	if !strings.Contains(logs, "args=") {
		t.Errorf("args not serialized:\n%s", logs)
	}
}

func TestCrashLog_StackTraces(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, mathlibFake(), Options{
		CrashLog:       true,
		CrashLogDir:    dir,
		CrashLogStacks: true,
	})
	if _, err := e.Initialize(mathlibDecls()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := e.Call("mathlib", "add", 1, 2); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	logs := readCrashLogs(t, dir)
	if !strings.Contains(logs, "goroutine ") {
		t.Errorf("expected a captured stack trace:\n%s", logs)
	}
}

func TestCrashLog_WriteFailureDoesNotBreakDispatch(t *testing.T) {
	// Point the logger at a path that cannot be a directory.
	bad := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, mathlibFake(), Options{
		CrashLog:    true,
		CrashLogDir: filepath.Join(bad, "sub"),
	})
	if _, err := e.Initialize(mathlibDecls()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	ret, err := e.Call("mathlib", "add", 2, 3)
	if err != nil {
		t.Fatalf("dispatch must survive crash-log failure: %v", err)
	}
	if ret != 5 {
		t.Errorf("add(2,3) = %d, want 5", ret)
	}
}
