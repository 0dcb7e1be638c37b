package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV / link 失败等错误。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// Method 表示 LinkOrCopy 最终采用的落盘方式。
type Method string

const (
	MethodLink Method = "link"
	MethodCopy Method = "copy"
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示源与目标不在同一文件系统（EXDEV）。
type CrossDeviceError struct {
	Op  string
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨文件系统 %s 失败（EXDEV）：%q -> %q：%v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Op: "rename", Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// Link 封装 os.Link，并把 EXDEV 显式标记为 CrossDeviceError。
func Link(src, dst string) error {
	if err := linkFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Op: "link", Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// CheckRegularOrAbsent 要求 path 不存在，或是普通文件。
func CheckRegularOrAbsent(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return &PathTypeConflictError{Path: path, Want: "file", Got: "dir"}
	}
	if !fi.Mode().IsRegular() {
		return &PathTypeConflictError{Path: path, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return nil
}

// EnsureDir 确保 dir 存在且是目录（不存在则创建）。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// LinkOrCopy 把 src 的内容放到 dst：先尝试硬链接，任何 link 失败都统一回退到字节复制。
//
// 约束：
// - dst 已存在时必须是普通文件，会被整体替换
// - dst 的父目录按需创建
// - 复制走“同目录临时文件 + rename”，dst 不会出现半截内容
// - 返回的 linkErr 是 link 失败的原因（回退成功时仅供日志使用）
func LinkOrCopy(src, dst string) (method Method, linkErr error, err error) {
	if err := CheckRegularOrAbsent(dst); err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", nil, err
	}

	linkErr = Link(src, dst)
	if linkErr == nil {
		return MethodLink, nil, nil
	}

	if err := CopyFile(src, dst); err != nil {
		return "", linkErr, err
	}
	return MethodCopy, linkErr, nil
}

// CopyFile 以原子替换的方式把 src 复制到 dst。
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeAtomic(filepath.Dir(dst), filepath.Base(dst), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// WriteFileAtomicReplace 在 dir 下原子写入 name（临时文件 + rename），覆盖同名文件。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeAtomic(dir, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func writeAtomic(dir, name string, fill func(io.Writer) error) error {
	dst := filepath.Join(dir, name)

	// 同目录临时文件，保证 rename 的原子性；前缀 '.' 避免出现在用户视图里。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}

	_ = syncDirBestEffort(dir)
	return nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
