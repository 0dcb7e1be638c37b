// Package diskx 提供磁盘可用空间探测与字节数的人类可读格式。
package diskx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace 表示可用空间低于配置的下限。
var ErrInsufficientSpace = errors.New("磁盘可用空间不足")

// 测试可替换。
var usageFunc = disk.Usage

// Free 返回 path 所在文件系统的可用字节数。path 不存在时向上查找最近的已存在祖先目录。
func Free(path string) (uint64, error) {
	p, err := existingAncestor(path)
	if err != nil {
		return 0, err
	}
	u, err := usageFunc(p)
	if err != nil {
		return 0, fmt.Errorf("查询磁盘空间失败 %q：%w", p, err)
	}
	return u.Free, nil
}

// RequireFree 在可用空间低于 min 时返回 ErrInsufficientSpace。min=0 不做检查。
func RequireFree(path string, min uint64) error {
	if min == 0 {
		return nil
	}
	free, err := Free(path)
	if err != nil {
		return err
	}
	if free < min {
		return fmt.Errorf("%w：%q 仅剩 %s，要求至少 %s", ErrInsufficientSpace, path, FormatBytes(free), FormatBytes(min))
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("找不到已存在的祖先目录：%q", path)
		}
		p = parent
	}
}

// ParseBytes 解析 "512MB"、"1.5GiB"、"4096" 这类字节串。
//
// 单位遵循 humanize：MB/GB 为 1000 进制，MiB/GiB 为 1024 进制，大小写不敏感。
// 只接受有限的非负十进制数；超出 uint64 范围的值报错。
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("无效的字节数：%q", s)
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("无效的字节数 %q：%w", s, err)
	}
	return n, nil
}

// FormatBytes 以 1024 进制格式化字节数（例如 "1.5 GiB"）。
func FormatBytes(b uint64) string {
	return humanize.IBytes(b)
}
