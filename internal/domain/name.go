package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// ListName 是 target list 的唯一主键，同时决定记录文件名（<name>.json）。
//
// 约束：
// - 必须匹配 ^[a-z](_?[a-z0-9])+$（至少两个字符，不允许首尾/连续下划线）
// - 字面量 "none" 保留给 `select list none`（取消选择），永远不是合法名字
type ListName string

// NoneName 是取消选择用的哨兵值。
const NoneName = "none"

var (
	ErrInvalidListName  = errors.New("非法的 list 名称")
	ErrReservedListName = errors.New("list 名称 \"none\" 为保留字")
)

var listNameRE = regexp.MustCompile(`^[a-z](_?[a-z0-9])+$`)

// ParseListName 校验并返回 ListName。不做大小写折叠，也不去除空白：大写或带空白的输入直接视为非法。
func ParseListName(s string) (ListName, error) {
	if s == NoneName {
		return "", ErrReservedListName
	}
	if !listNameRE.MatchString(s) {
		return "", fmt.Errorf("%w：%q（需匹配 %s）", ErrInvalidListName, s, listNameRE.String())
	}
	return ListName(s), nil
}

func (n ListName) String() string { return string(n) }
