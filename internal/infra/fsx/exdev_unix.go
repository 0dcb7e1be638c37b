//go:build unix

package fsx

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isEXDEV 识别跨文件系统的 rename/link 失败（*os.LinkError 会被 errors.Is 自动展开）。
func isEXDEV(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
