//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd || windows)

package chat

import "syscall"

func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
