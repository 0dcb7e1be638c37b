// Package lists 把 store 与 domain.TargetList 组合成按名字管理的 target list 仓库。
package lists

import (
	"errors"
	"fmt"
	"os"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/store"
)

var (
	ErrInvalidName  = domain.ErrInvalidListName
	ErrReservedName = domain.ErrReservedListName
)

// Repo 是 <data>/lists 目录上的 target list 仓库。
type Repo struct {
	Dir string
}

func NewRepo(dir string) *Repo { return &Repo{Dir: dir} }

// Create 新建空列表并写入初始文档；同名列表已存在时返回 store.ErrExists。
func (r *Repo) Create(name, comment string) (*List, error) {
	n, err := domain.ParseListName(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建 list 目录失败：%w", err)
	}
	h, err := store.Create(r.Dir, n.String(), domain.NewTargetList(n, comment))
	if err != nil {
		return nil, err
	}
	return &List{h: h}, nil
}

// Open 加锁打开已有列表。
func (r *Repo) Open(name string) (*List, error) {
	n, err := domain.ParseListName(name)
	if err != nil {
		return nil, err
	}
	h, err := store.Open[domain.TargetList](r.Dir, n.String())
	if err != nil {
		return nil, err
	}
	return &List{h: h}, nil
}

// Delete 删除列表文件。
//
// 先获取锁再删除：列表正被其它进程编辑时返回 store.ErrLocked，而不是删掉对方手里的文件。
func (r *Repo) Delete(name string) error {
	n, err := domain.ParseListName(name)
	if err != nil {
		return err
	}
	h, err := store.Open[domain.TargetList](r.Dir, n.String())
	if err != nil {
		// 只有内容损坏（解析失败/名字不符）时仍允许删除：此时锁已拿到又随 Open 失败释放。
		// 其它错误（锁冲突、不存在、加锁失败、路径不是普通文件）一律原样返回。
		if errors.Is(err, store.ErrCorrupt) || errors.Is(err, store.ErrNameMismatch) {
			return store.Delete(r.Dir, n.String())
		}
		return err
	}
	defer h.Close()
	return store.Delete(r.Dir, n.String())
}

// Names 返回全部列表名（已排序）。目录不存在视为空仓库。
func (r *Repo) Names() ([]string, error) {
	if _, err := os.Stat(r.Dir); os.IsNotExist(err) {
		return nil, nil
	}
	return store.List(r.Dir)
}

func (r *Repo) Exists(name string) bool {
	n, err := domain.ParseListName(name)
	if err != nil {
		return false
	}
	return store.Exists(r.Dir, n.String())
}

// List 是一个已加锁的 target list。用完必须 Close。
type List struct {
	h *store.Handle[domain.TargetList]
}

func (l *List) Name() string { return l.h.Get().Name }

func (l *List) Comment() string { return l.h.Get().CommentText() }

// Targets 返回目标的只读快照。
func (l *List) Targets() []domain.Target {
	return append([]domain.Target(nil), l.h.Get().Targets...)
}

// Target 按下标取目标。
func (l *List) Target(i int) (domain.Target, bool) {
	ts := l.h.Get().Targets
	if i < 0 || i >= len(ts) {
		return domain.Target{}, false
	}
	return ts[i], true
}

func (l *List) Len() int { return l.h.Get().Len() }

// AddTarget 追加一个已校验的目标，返回其下标。需要 Save 才会落盘。
func (l *List) AddTarget(t domain.Target) int {
	return l.h.Get().Append(t)
}

func (l *List) SetComment(c string) { l.h.Get().SetComment(c) }

func (l *List) Save() error { return l.h.Save() }

func (l *List) Close() error { return l.h.Close() }
