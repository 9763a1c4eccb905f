//go:build linux

package natives

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel thread id of the calling thread.
func currentThreadID() uint64 {
	return uint64(unix.Gettid())
}
