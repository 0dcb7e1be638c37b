// Package flock 提供建议性（advisory）排他文件锁。
//
// 锁绑定在 *os.File 上：文件关闭或进程退出即释放。只对遵守同一协议的进程有效。
package flock

import (
	"errors"
	"os"
)

// ErrWouldBlock 表示锁已被其它句柄/进程持有（非阻塞模式下立即返回）。
var ErrWouldBlock = errors.New("flock: 文件已被其它句柄锁定")

// TryLockExclusive 以非阻塞方式对 f 加排他锁。已被占用时返回 ErrWouldBlock。
func TryLockExclusive(f *os.File) error {
	if f == nil {
		return errors.New("flock: nil file")
	}
	return tryLockExclusive(f)
}
