package importer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/dlist/internal/fetch"
)

// Filter 控制从索引页里挑选哪些链接。
type Filter struct {
	// Suffixes 为空表示不过滤；否则链接路径必须以其中之一结尾（大小写不敏感）。
	Suffixes []string
	// Dir 是生成的 file 的目录前缀（相对 base_directory 或绝对路径）。
	Dir string
}

// FromHTMLIndex 抓取 pageURL 并解析其中的下载链接。
func FromHTMLIndex(ctx context.Context, c *http.Client, pageURL string, f Filter) ([]Entry, error) {
	html, finalURL, err := FetchIndex(ctx, c, pageURL)
	if err != nil {
		return nil, err
	}
	return ParseIndex(html, finalURL, f)
}

// FetchIndex 下载索引页 HTML，返回内容与最终 URL（跟随重定向后，用于解析相对链接）。
func FetchIndex(ctx context.Context, c *http.Client, pageURL string) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &fetch.HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	final := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return b, final, nil
}

// ParseIndex 从 HTML 中收集 a[href] 链接，解析为绝对 http(s) URL，过滤、去重并保持页面顺序。
//
// 约束：
// - 纯函数，只依赖输入 html + pageURL
// - file 取链接路径的最后一段（URL 解码后），落在 f.Dir 下
// - 同名 file 的多个链接合并为同一条目的多个镜像
func ParseIndex(html []byte, pageURL string, f Filter) ([]Entry, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []Entry
	byFile := map[string]int{}
	seenURL := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u := resolveURL(base, href)
		if u == nil || seenURL[u.String()] {
			return
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." || strings.HasSuffix(u.Path, "/") {
			return
		}
		if !matchSuffix(name, f.Suffixes) {
			return
		}
		seenURL[u.String()] = true

		file := name
		if f.Dir != "" {
			file = filepath.Join(f.Dir, name)
		}
		if i, ok := byFile[file]; ok {
			out[i].URLs = append(out[i].URLs, u.String())
			return
		}
		byFile[file] = len(out)
		out = append(out, Entry{
			URLs:    []string{u.String()},
			File:    file,
			Comment: normSpace(s.Text()),
		})
	})
	return out, nil
}

func resolveURL(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ru, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ru)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	return u
}

func matchSuffix(name string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
