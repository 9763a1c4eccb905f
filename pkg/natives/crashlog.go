package natives

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// crashLogger appends a record of every dispatched call to a per-thread
// stream so that, after a hard native crash, the last record in a stream
// identifies the call that (most likely) killed the process.
//
// Streams are split per thread to avoid cross-thread contention and so a
// human can correlate a crash to the thread that caused it. Records go
// through an unbuffered os.File write, one record per write, so nothing
// sits in userspace buffers when the process dies.
//
// This is a deliberately high-overhead, opt-in feature.
type crashLogger struct {
	dir        string
	withArgs   bool
	withStacks bool
	session    string
	log        *zap.Logger

	mu      sync.Mutex
	streams map[uint64]*os.File
	failed  bool
}

var argDumper = spew.ConfigState{Indent: " ", DisableMethods: true, SortKeys: true}

func newCrashLogger(dir string, withArgs, withStacks bool, log *zap.Logger) *crashLogger {
	if dir == "" {
		dir = "."
	}
	return &crashLogger{
		dir:        dir,
		withArgs:   withArgs,
		withStacks: withStacks,
		session:    uuid.NewString(),
		log:        log,
		streams:    make(map[uint64]*os.File),
	}
}

func (c *crashLogger) stream() *os.File {
	tid := currentThreadID()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return nil
	}
	if f, ok := c.streams[tid]; ok {
		return f
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.failed = true
		c.log.Warn("crash log directory unavailable", zap.String("dir", c.dir), zap.Error(err))
		return nil
	}
	name := filepath.Join(c.dir, fmt.Sprintf("native_calls_%s_t%d.log", c.session[:8], tid))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		c.failed = true
		c.log.Warn("crash log stream unavailable", zap.String("path", name), zap.Error(err))
		return nil
	}
	fmt.Fprintf(f, "# session %s thread %d\n", c.session, tid)
	c.streams[tid] = f
	return f
}

// pre records a call about to be dispatched. Write failures are swallowed;
// diagnostics must not crash the very calls they observe.
func (c *crashLogger) pre(d Decl, index uint64, args []uintptr) {
	f := c.stream()
	if f == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%08d] pre  %s", index, d.Key())
	if c.withArgs {
		b.WriteString(" args=")
		b.WriteString(strings.TrimSuffix(argDumper.Sdump(args), "\n"))
	}
	b.WriteByte('\n')
	if c.withStacks {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		for _, line := range strings.SplitAfter(string(buf[:n]), "\n") {
			if line == "" {
				continue
			}
			b.WriteString("\t")
			b.WriteString(line)
		}
	}
	if _, err := f.WriteString(b.String()); err != nil {
		c.log.Warn("crash log write failed", zap.Error(err))
	}
}

// post records a completed call. Its absence after a pre record is the
// crash signature.
func (c *crashLogger) post(d Decl, index uint64, ret uintptr) {
	f := c.stream()
	if f == nil {
		return
	}
	if _, err := fmt.Fprintf(f, "[%08d] post %s ret=%#x\n", index, d.Key(), ret); err != nil {
		c.log.Warn("crash log write failed", zap.Error(err))
	}
}

func (c *crashLogger) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.streams {
		_ = f.Close()
	}
	c.streams = make(map[uint64]*os.File)
}
