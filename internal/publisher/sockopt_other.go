//go:build !unix

package publisher

import "syscall"

// controlReuseAddr 其他平台不设置选项
func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
