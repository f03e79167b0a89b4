//go:build unix

package publisher

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr 在 bind 之前给监听套接字设置 SO_REUSEADDR
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}
