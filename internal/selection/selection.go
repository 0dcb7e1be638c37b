// Package selection 持久化“当前 list / 当前 target”游标，供单条目命令使用。
package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/John-Robertt/dlist/internal/infra/fsx"
)

// FileName 是 selection 状态文件名（位于配置目录下）。
const FileName = "persistent_state.json"

// State 是选择游标。
//
// 约束：
// - Target 只在 List 非空时有意义
// - 设置/清除 List 必须同时清除 Target（其它列表的下标永远无效）
type State struct {
	ListName *string `json:"list,omitempty"`
	Index    *uint   `json:"target,omitempty"`
}

// Load 读取状态文件；文件不存在时返回零值状态。
func Load(path string) (State, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, err
	}
	if !fi.Mode().IsRegular() {
		return State{}, &fsx.PathTypeConflictError{Path: path, Want: "file", Got: fi.Mode().Type().String()}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}

	var st State
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		return State{}, fmt.Errorf("解析 selection 状态 %q 失败：%w", path, err)
	}
	if st.ListName == nil {
		st.Index = nil
	}
	return st, nil
}

// Save 原子替换写入状态文件。
func (s State) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

// SetList 选中列表并清除 target。
func (s *State) SetList(name string) {
	s.ListName = &name
	s.Index = nil
}

// ClearList 同时清除 list 与 target。
func (s *State) ClearList() {
	s.ListName = nil
	s.Index = nil
}

// SetTarget 设置当前 target；未选中列表时不做任何事。
func (s *State) SetTarget(i uint) {
	if s.ListName == nil {
		return
	}
	s.Index = &i
}

func (s State) List() (string, bool) {
	if s.ListName == nil {
		return "", false
	}
	return *s.ListName, true
}

func (s State) Target() (uint, bool) {
	if s.ListName == nil || s.Index == nil {
		return 0, false
	}
	return *s.Index, true
}

func (s State) String() string {
	list, target := "none", "none"
	if l, ok := s.List(); ok {
		list = l
	}
	if i, ok := s.Target(); ok {
		target = strconv.FormatUint(uint64(i), 10)
	}
	return "current list: " + list + "\ncurrent target: " + target
}
