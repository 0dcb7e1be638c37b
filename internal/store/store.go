package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/dlist/internal/infra/flock"
)

// Ext 是记录文件后缀。
const Ext = ".json"

var (
	ErrExists       = errors.New("store: 记录已存在")
	ErrNotFound     = errors.New("store: 记录不存在")
	ErrLocked       = errors.New("store: 记录正被其它句柄使用")
	ErrNameMismatch = errors.New("store: 记录名与文件名不一致")
	ErrCorrupt      = errors.New("store: 记录文件无法解析")
)

// Record 是可存入 store 的记录：内嵌名字必须与文件名一致。
type Record interface {
	RecordName() string
}

// Handle 是一条已加锁记录的内存句柄。
//
// 约束：
// - 同一记录同一时刻最多一个存活 Handle（跨进程、同进程均如此）
// - 锁只在 Close 或进程退出时释放；任何提前返回的路径都必须 Close
// - Handle 不是并发安全的（核心流程是单线程的）
type Handle[T Record] struct {
	path string
	file *os.File
	rec  T
}

// Path 返回 name 在 dir 下的记录文件路径。
func Path(dir, name string) string {
	return filepath.Join(dir, name+Ext)
}

// Exists 报告 name 对应的记录文件是否存在（且是普通文件）。
func Exists(dir, name string) bool {
	fi, err := os.Stat(Path(dir, name))
	return err == nil && fi.Mode().IsRegular()
}

// Create 以 create-exclusive 语义新建记录文件、加锁并写入初始内容。
// 文件已存在时返回 ErrExists，绝不覆盖。
func Create[T Record](dir, name string, initial T) (*Handle[T], error) {
	if initial.RecordName() != name {
		return nil, fmt.Errorf("%w：期望 %q，实际 %q", ErrNameMismatch, name, initial.RecordName())
	}

	path := Path(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w：%q", ErrExists, path)
		}
		return nil, fmt.Errorf("创建记录文件失败：%w", err)
	}

	if err := lock(f); err != nil {
		// 文件是本次刚创建的空文件，撤销创建即可。
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}

	h := &Handle[T]{path: path, file: f, rec: initial}
	if err := h.Save(); err != nil {
		_ = h.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return h, nil
}

// Open 打开已有记录、加锁并解码。
//
// - 文件不存在：ErrNotFound
// - 已被其它句柄锁定：ErrLocked（文件内容不受影响）
// - 含未知字段：解码失败（格式漂移要尽早暴露）
// - 内嵌名字与 name 不一致：ErrNameMismatch（视为存储被手工改动，不自动修正）
func Open[T Record](dir, name string) (*Handle[T], error) {
	path := Path(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w：%q", ErrNotFound, path)
		}
		return nil, fmt.Errorf("打开记录文件失败：%w", err)
	}

	if err := lock(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	var rec T
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w：%q：%w", ErrCorrupt, path, err)
	}
	if rec.RecordName() != name {
		_ = f.Close()
		return nil, fmt.Errorf("%w：文件 %q 内记录名为 %q", ErrNameMismatch, path, rec.RecordName())
	}

	return &Handle[T]{path: path, file: f, rec: rec}, nil
}

// Delete 删除记录文件；不存在时返回 ErrNotFound。
func Delete(dir, name string) error {
	path := Path(dir, name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w：%q", ErrNotFound, path)
		}
		return fmt.Errorf("删除记录文件失败：%w", err)
	}
	return nil
}

// List 返回 dir 下全部记录名（已排序）。不以 Ext 结尾的条目与子目录静默跳过。
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取记录目录失败：%w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), Ext)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get 返回内存中的记录，修改后需 Save 才会落盘。
func (h *Handle[T]) Get() *T { return &h.rec }

func (h *Handle[T]) Path() string { return h.path }

// Save 截断文件并整体重写当前内存状态。
func (h *Handle[T]) Save() error {
	if h.file == nil {
		return errors.New("store: handle 已关闭")
	}

	b, err := json.MarshalIndent(h.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化记录失败：%w", err)
	}
	b = append(b, '\n')

	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("清空记录文件失败：%w", err)
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("定位记录文件开头失败：%w", err)
	}
	if _, err := io.Copy(h.file, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("写入记录文件失败：%w", err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("同步记录文件失败：%w", err)
	}
	return nil
}

// Close 释放锁并关闭文件。重复调用是安全的。
func (h *Handle[T]) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	f := h.file
	h.file = nil
	return f.Close()
}

func lock(f *os.File) error {
	if err := flock.TryLockExclusive(f); err != nil {
		if errors.Is(err, flock.ErrWouldBlock) {
			return fmt.Errorf("%w：%q", ErrLocked, f.Name())
		}
		return fmt.Errorf("获取记录文件锁失败：%w", err)
	}
	return nil
}
