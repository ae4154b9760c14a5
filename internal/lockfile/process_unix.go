//go:build !windows

package lockfile

import (
	"errors"
	"syscall"
)

// isProcessRunning reports whether pid names a live process. Signal 0 only
// checks for existence; EPERM means it exists under another user.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
