package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/dlist/internal/infra/fsx"
)

// Store 提供 <Root>/index/ 下的索引页缓存读写：每个页面一对文件
// <key>.html（原始内容）与 <key>.url（跟随重定向后的最终 URL，用于解析相对链接）。
//
// 约束：
// - key 是页面 URL 的 sha256 前缀，不直接用 URL 拼路径（避免路径穿越）
// - ReadOnly=true 时只允许读（例如 --dry-run）
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// IndexPagePath 返回页面 HTML 缓存的绝对路径。
func (s Store) IndexPagePath(pageURL string) (string, error) {
	key, err := pageKey(pageURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir(), key+".html"), nil
}

// ReadIndexPage 读取缓存；未命中时 ok=false 且 err=nil。
func (s Store) ReadIndexPage(pageURL string) (html []byte, finalURL string, ok bool, err error) {
	key, err := pageKey(pageURL)
	if err != nil {
		return nil, "", false, err
	}
	html, err = os.ReadFile(filepath.Join(s.dir(), key+".html"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", false, nil
		}
		return nil, "", false, err
	}
	finalURL = pageURL
	if b, err := os.ReadFile(filepath.Join(s.dir(), key+".url")); err == nil {
		if u := strings.TrimSpace(string(b)); u != "" {
			finalURL = u
		}
	} else if !os.IsNotExist(err) {
		return nil, "", false, err
	}
	return html, finalURL, true, nil
}

// WriteIndexPage 原子写入页面内容与最终 URL。
func (s Store) WriteIndexPage(pageURL, finalURL string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	key, err := pageKey(pageURL)
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomicReplace(s.dir(), key+".html", html); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(s.dir(), key+".url", []byte(finalURL+"\n"))
}

func (s Store) dir() string { return filepath.Join(s.Root, "index") }

func pageKey(pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", fmt.Errorf("页面 url 不能为空")
	}
	sum := sha256.Sum256([]byte(pageURL))
	return hex.EncodeToString(sum[:16]), nil
}
