package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/John-Robertt/dlist/internal/app/batch"
	"github.com/John-Robertt/dlist/internal/config"
	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/fetch"
	"github.com/John-Robertt/dlist/internal/staging"
	"github.com/John-Robertt/dlist/internal/store"
)

func (c *cli) downloadCmd(args []string) error {
	if hasHelp(args) {
		printDownloadUsage(c.stdout)
		return nil
	}
	pa, err := parseArgs(args, flagSpec{}.
		value("list", "--list").
		value("partition", "--partition").
		value("index", "--index"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 0 {
		return usagef("download 不接受位置参数")
	}
	index := -1
	if raw, ok := pa.get("index"); ok {
		n, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			return usagef("--index 必须是非负整数：%q", raw)
		}
		index = int(n)
	}
	explicit, _ := pa.get("list")
	partition, _ := pa.get("partition")

	name, err := c.resolveList(explicit)
	if err != nil {
		return err
	}

	eff, err := c.effective()
	if err != nil {
		return c.failEarly(name, config.Code(err), err)
	}

	// 整个批次期间持有 list 的锁：其它进程既不能修改也不能删除它。
	l, err := c.openList(name)
	if err != nil {
		return c.failEarly(name, listCode(err), err)
	}
	defer l.Close()

	opts := batch.Options{List: l.Name(), Partition: partition, Base: eff.BaseDirectory}
	if index >= 0 {
		t, ok := l.Target(index)
		if !ok {
			return fmt.Errorf("target 下标越界：%d（list %s 共 %d 个目标）", index, l.Name(), l.Len())
		}
		opts.Targets = []domain.Target{t}
		opts.Indices = []int{index}
	} else {
		opts.Targets = l.Targets()
	}

	files := make([]string, len(opts.Targets))
	for i, t := range opts.Targets {
		files[i] = t.File
	}

	var (
		obs    batch.Observer
		ui     *progressUI
		onDone func(int, domain.Outcome)
	)
	if w, ok := c.pickProgressWriter(); ok {
		ui = newProgressUI(w, files, eff.ParallelDownloads, true)
		obs = ui
		onDone = ui.onFetched
	}

	svc := fetch.New(newHTTPClient(eff, 0), fetch.Options{
		Parallel:          eff.ParallelDownloads,
		Retries:           eff.Retries,
		RequestsPerSecond: eff.RequestsPerSecond,
		Logger:            c.log,
		OnItemDone:        onDone,
	})
	engine, err := staging.New(svc, eff.CacheDirectory, eff.BaseDirectory,
		staging.WithLogger(c.log),
		staging.WithMinFreeSpace(eff.MinFreeSpace),
	)
	if err != nil {
		return c.failEarly(l.Name(), domain.ErrCodeIOFailed, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := batch.Run(ctx, opts, engine, obs)
	c.emitReport(rep)
	if !rep.OK() {
		return errReported
	}
	return nil
}

// failEarly 处理批次开始前的失败：非 TTY 时仍然输出一个报告 JSON，保证 stdout 契约。
func (c *cli) failEarly(list, code string, err error) error {
	if code == "" {
		code = domain.ErrCodeIOFailed
	}
	if isTTY(c.stdout) {
		return err
	}
	c.emitReport(batch.FailedReport(list, code, err))
	return errReported
}

func listCode(err error) string {
	switch {
	case errors.Is(err, store.ErrLocked):
		return domain.ErrCodeListLocked
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNameMismatch), errors.Is(err, store.ErrCorrupt):
		return domain.ErrCodeListInvalid
	default:
		return domain.ErrCodeIOFailed
	}
}

// emitReport 输出批次结果。
//
// - stdout 是 TTY：一行汇总 + 每个失败条目一行诊断（stderr）
// - 否则：stdout 必须且仅输出一个 BatchReport JSON，汇总走 stderr
func (c *cli) emitReport(rep domain.BatchReport) {
	if isTTY(c.stdout) {
		fmt.Fprintf(c.stdout, "完成：%s\n", batch.Summary(rep))
		for _, it := range rep.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.File
			if key == "" {
				key = it.Dest
			}
			if key == "" {
				key = "<batch>"
			}
			fmt.Fprintf(c.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rep)
	fmt.Fprintf(c.stderr, "完成：%s\n", batch.Summary(rep))
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr。
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	// 仅重定向了 stderr 时，stdout 仍可能是 TTY（此时 stdout 不输出 JSON）。
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func printDownloadUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  dlist download [--list NAME] [--partition ID] [--index N]

说明：
  先把所有目标下载到 cache 下的分区目录，再逐个链接（或复制）到目标路径；
  失败的目标不会在目标路径留下任何文件。
  省略 --list 时使用当前选择的 list；--index 只下载指定下标的目标。
  --partition 指定分区名（默认随机生成）；同名分区已存在时整批失败。

输出：
  stdout 为 TTY：人类可读的汇总；否则 stdout 只输出一个 JSON 报告。
  退出码：0 全部成功；1 存在失败；2 参数错误。
`)
}
