//go:build !unix

package flock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("flock: 当前平台不支持建议性文件锁")

func tryLockExclusive(f *os.File) error { return errUnsupported }
