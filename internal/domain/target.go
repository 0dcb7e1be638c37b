package domain

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoURL              = errors.New("至少需要一个 url")
	ErrBadScheme          = errors.New("url 必须是 http/https")
	ErrEmptyFile          = errors.New("目标文件路径不能为空")
	ErrDestinationNotFile = errors.New("目标路径已存在且不是普通文件")
)

// Target 描述一个待获取的文件：若干镜像 URL + 目标路径（相对 base_directory 或绝对路径）。
//
// 约束：
// - URLs 至少一个，且全部是 http/https
// - File 创建时若已存在，必须是普通文件；下载时不再重新校验
// - 创建后不可修改，只能整体替换
type Target struct {
	URLs    []string `json:"urls"`
	File    string   `json:"file"`
	Comment string   `json:"comment,omitempty"`
}

// NewTarget 校验输入并构造 Target。base 用于解析相对路径（只用于存在性检查，不改写 File）。
func NewTarget(urls []string, file, comment, base string) (Target, error) {
	if len(urls) == 0 {
		return Target{}, ErrNoURL
	}
	clean := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return Target{}, fmt.Errorf("url 无效 %q：%w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return Target{}, fmt.Errorf("%w：%q", ErrBadScheme, raw)
		}
		if u.Host == "" {
			return Target{}, fmt.Errorf("url 缺少 host：%q", raw)
		}
		clean = append(clean, u.String())
	}

	file = strings.TrimSpace(file)
	if file == "" {
		return Target{}, ErrEmptyFile
	}
	file = filepath.Clean(file)

	if fi, err := os.Stat(ResolvePath(base, file)); err == nil {
		if !fi.Mode().IsRegular() {
			return Target{}, fmt.Errorf("%w：%q", ErrDestinationNotFile, file)
		}
	} else if !os.IsNotExist(err) {
		return Target{}, err
	}

	return Target{
		URLs:    clean,
		File:    file,
		Comment: strings.TrimSpace(comment),
	}, nil
}

// Download 把 Target 转成交给 retrieval service 的请求（目标路径保持原样，由 staging 负责解析）。
func (t Target) Download() Download {
	return Download{
		URLs: append([]string(nil), t.URLs...),
		Dest: t.File,
	}
}

func (t Target) String() string {
	if t.Comment != "" {
		return t.Comment + ": " + t.File
	}
	return t.File
}

// ResolvePath 以 base 为基准解析 p：绝对路径直接 Clean，相对路径 Join 后 Clean。
func ResolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}
