//go:build !linux

package natives

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine id where the platform offers
// no cheap thread id. Goroutines are the unit of native-call concurrency
// in Go, so the per-stream split still holds.
func currentThreadID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// First line is "goroutine N [running]:".
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
