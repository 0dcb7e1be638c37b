//go:build unix

package flock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTryLockExclusive_ConflictWithinProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	f1, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("打开文件失败：%v", err)
	}
	defer f1.Close()
	if err := TryLockExclusive(f1); err != nil {
		t.Fatalf("首次加锁不期望错误：%v", err)
	}

	f2, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("打开文件失败：%v", err)
	}
	defer f2.Close()
	if err := TryLockExclusive(f2); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("期望 ErrWouldBlock，实际：%v", err)
	}

	// 关闭第一个句柄即释放锁。
	if err := f1.Close(); err != nil {
		t.Fatalf("关闭文件失败：%v", err)
	}
	if err := TryLockExclusive(f2); err != nil {
		t.Fatalf("释放后再次加锁不期望错误：%v", err)
	}
}

func TestTryLockExclusive_NilFile(t *testing.T) {
	if err := TryLockExclusive(nil); err == nil {
		t.Fatalf("nil 文件期望报错")
	}
}
