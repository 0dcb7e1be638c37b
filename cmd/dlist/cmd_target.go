package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/John-Robertt/dlist/internal/config"
	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/importer"
	"github.com/John-Robertt/dlist/internal/infra/cache"
	"github.com/John-Robertt/dlist/internal/infra/httpx"
)

// stdin 供 `target import -` 读取；测试中可替换。
var stdin io.Reader = os.Stdin

func (c *cli) targetCmd(args []string) error {
	if len(args) == 0 {
		return usagef("缺少 target 子命令")
	}
	if hasHelp(args) || isHelp(args[0]) {
		printTargetUsage(c.stdout)
		return nil
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add", "a":
		return c.targetAdd(rest)
	case "ls", "l", "list":
		return c.targetLs(rest)
	case "import":
		return c.targetImport(rest)
	case "scrape":
		return c.targetScrape(rest)
	default:
		return usagef("未知的 target 子命令 %q", sub)
	}
}

func (c *cli) targetAdd(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.
		value("list", "--list").
		value("comment", "-c", "--comment"))
	if err != nil {
		return err
	}
	if len(pa.pos) < 2 {
		return usagef("target add 需要 <file> 与至少一个 <url>")
	}
	explicit, _ := pa.get("list")
	comment, _ := pa.get("comment")

	eff, err := c.effective()
	if err != nil {
		return err
	}
	t, err := domain.NewTarget(pa.pos[1:], pa.pos[0], comment, eff.BaseDirectory)
	if err != nil {
		return err
	}

	name, err := c.resolveList(explicit)
	if err != nil {
		return err
	}
	l, err := c.openList(name)
	if err != nil {
		return err
	}
	defer l.Close()

	idx := l.AddTarget(t)
	if err := l.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "[%d] %s\n", idx, t)
	return nil
}

func (c *cli) targetLs(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.value("list", "--list"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 0 {
		return usagef("target ls 不接受位置参数")
	}
	explicit, _ := pa.get("list")
	name, err := c.resolveList(explicit)
	if err != nil {
		return err
	}
	l, err := c.openList(name)
	if err != nil {
		return err
	}
	defer l.Close()

	st, err := c.loadState()
	if err != nil {
		return err
	}
	selected := -1
	if cur, ok := st.List(); ok && cur == l.Name() {
		if i, ok := st.Target(); ok {
			selected = int(i)
		}
	}

	for i, t := range l.Targets() {
		mark := " "
		if i == selected {
			mark = "*"
		}
		fmt.Fprintf(c.stdout, "%s [%d] %s\n", mark, i, t)
		for _, u := range t.URLs {
			fmt.Fprintf(c.stdout, "      %s\n", u)
		}
	}
	return nil
}

func (c *cli) targetImport(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.value("list", "--list"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 1 {
		return usagef("target import 需要一个清单文件路径（或 - 表示 stdin）")
	}
	explicit, _ := pa.get("list")

	var r io.Reader = stdin
	if src := pa.pos[0]; src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	entries, err := importer.FromManifest(r)
	if err != nil {
		return err
	}
	return c.addEntries(explicit, entries)
}

func (c *cli) targetScrape(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.
		value("list", "--list").
		multi("suffix", "--suffix").
		value("dir", "--dir").
		boolean("dry", "--dry-run").
		boolean("offline", "--offline"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 1 {
		return usagef("target scrape 需要一个索引页 url")
	}
	pageURL := pa.pos[0]
	explicit, _ := pa.get("list")
	dir, _ := pa.get("dir")

	eff, err := c.effective()
	if err != nil {
		return err
	}
	html, finalURL, err := c.indexPage(eff, pageURL, pa.has("offline"), pa.has("dry"))
	if err != nil {
		return err
	}
	entries, err := importer.ParseIndex(html, finalURL, importer.Filter{
		Suffixes: pa.all("suffix"),
		Dir:      dir,
	})
	if err != nil {
		return err
	}
	c.log.Debug().Str("url", finalURL).Int("links", len(entries)).Msg("索引页解析完成")

	if pa.has("dry") {
		for _, e := range entries {
			fmt.Fprintf(c.stdout, "%s <- %s\n", e.File, strings.Join(e.URLs, " "))
		}
		return nil
	}
	return c.addEntries(explicit, entries)
}

// indexPage 取索引页内容：offline 时只读缓存；否则抓取并写回缓存（dry-run 不写）。
func (c *cli) indexPage(eff config.Effective, pageURL string, offline, dryRun bool) ([]byte, string, error) {
	pages := cache.New(c.dirs.Cache, dryRun)
	if offline {
		html, finalURL, ok, err := pages.ReadIndexPage(pageURL)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", fmt.Errorf("索引页未缓存：%s", pageURL)
		}
		return html, finalURL, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), eff.TimeoutDownload)
	defer cancel()
	html, finalURL, err := importer.FetchIndex(ctx, newHTTPClient(eff, eff.Retries), pageURL)
	if err != nil {
		return nil, "", err
	}
	if !dryRun {
		if err := pages.WriteIndexPage(pageURL, finalURL, html); err != nil {
			c.log.Warn().Err(err).Str("url", pageURL).Msg("写入索引页缓存失败")
		}
	}
	return html, finalURL, nil
}

// addEntries 逐条校验并追加到 list；无效条目打印诊断后跳过，有效条目仍然保存。
func (c *cli) addEntries(explicit string, entries []importer.Entry) error {
	eff, err := c.effective()
	if err != nil {
		return err
	}
	name, err := c.resolveList(explicit)
	if err != nil {
		return err
	}
	l, err := c.openList(name)
	if err != nil {
		return err
	}
	defer l.Close()

	added, failed := 0, 0
	for i, e := range entries {
		t, err := domain.NewTarget(e.URLs, e.File, e.Comment, eff.BaseDirectory)
		if err != nil {
			failed++
			fmt.Fprintf(c.stderr, "条目 %d（%s）：%v\n", i, e.File, err)
			continue
		}
		l.AddTarget(t)
		added++
	}
	if added > 0 {
		if err := l.Save(); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.stdout, "已导入 %d 个目标到 %s（失败 %d）\n", added, l.Name(), failed)
	if failed > 0 {
		return errReported
	}
	return nil
}

func newHTTPClient(eff config.Effective, retryMax int) *http.Client {
	return httpx.NewClient(httpx.Options{
		UserAgent:      eff.UserAgent,
		ConnectTimeout: eff.TimeoutConnection,
		Timeout:        eff.TimeoutDownload,
		RetryMax:       retryMax,
	})
}

func printTargetUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  dlist target add [--list NAME] [-c COMMENT] <file> <url>...
  dlist target ls [--list NAME]
  dlist target import [--list NAME] <manifest.yaml|->
  dlist target scrape [--list NAME] [--suffix .EXT]... [--dir DIR] [--dry-run] [--offline] <index-url>

说明：
  省略 --list 时使用当前选择的 list。
  file 为相对路径时相对 base_directory 解析；多个 url 按顺序作为镜像。
  scrape 会缓存抓到的索引页；--offline 只使用缓存（--dry-run 不写缓存）。
  import 清单格式：
    targets:
      - file: a.iso
        urls: [https://m1/a.iso, https://m2/a.iso]
        comment: 可选
`)
}
