//go:build linux

package executor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setThreadName 设置当前 OS 线程名
//
// 内核限制 comm 为 15 字节加结尾 NUL，超长部分截断。
// 命名是尽力而为的，失败直接忽略。
func setThreadName(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	buf := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
