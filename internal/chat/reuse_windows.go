//go:build windows

package chat

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseAddr lets every editor on a host bind the chat port of the same group.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
