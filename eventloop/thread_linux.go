//go:build linux

package eventloop

import (
	"golang.org/x/sys/unix"
)

// osThreadID returns the kernel thread id of the calling thread, for
// diagnostics.
func osThreadID() int {
	return unix.Gettid()
}
