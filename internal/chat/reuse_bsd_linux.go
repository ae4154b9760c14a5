//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package chat

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets every editor on a host bind the chat port of the same group.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr == nil {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
