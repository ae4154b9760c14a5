//go:build windows

package lockfile

import "os"

// isProcessRunning reports whether pid names a live process. On Windows
// FindProcess opens a handle and fails for unknown processes.
func isProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
