package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/John-Robertt/dlist/internal/app/batch"
	"github.com/John-Robertt/dlist/internal/domain"
)

var _ batch.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// 两类事件：
// - fetch 事件（来自下载 worker，多 goroutine）：只更新计数，必要时打印一行获取进度
// - batch 事件（提交完成后，按输入顺序）：每个目标一行 OK/FAIL
//
// 所有输出写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约。
type progressUI struct {
	w     io.Writer
	files []string

	okLabel   *color.Color
	failLabel *color.Color
	dim       *color.Color

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	fetched int
	fetchOK int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, files []string, workers int, colored bool) *progressUI {
	p := &progressUI{
		w:                  w,
		files:              files,
		workers:            workers,
		okLabel:            color.New(color.FgGreen, color.Bold),
		failLabel:          color.New(color.FgRed, color.Bold),
		dim:                color.New(color.Faint),
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
	for _, c := range []*color.Color{p.okLabel, p.failLabel, p.dim} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *progressUI) OnStart(list, partition string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = total

	fmt.Fprintf(p.w, "[%s] dlist download\n", now.Format("15:04:05"))
	fmt.Fprintf(p.w, "  list: %s\n", list)
	fmt.Fprintf(p.w, "  partition: %s\n", partition)
	fmt.Fprintf(p.w, "  targets: %d workers: %d\n\n", total, p.workers)
	p.lastPrinted = time.Now()

	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

// onFetched 是 fetch.Options.OnItemDone 的回调：某个目标已下载到分区（尚未提交）。
func (p *progressUI) onFetched(index int, o domain.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetched++
	state := "ok"
	if o.OK() {
		p.fetchOK++
	} else {
		state = "failed"
	}
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.dim.Sprintf("获取 [%d/%d]", p.fetched, p.total), p.fileAt(index), state)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTickerLocked()

	switch {
	case !res.Positional():
		fmt.Fprintf(p.w, "%s %s %s: %s\n",
			p.failLabel.Sprint("CLEANUP"), res.Dest, res.ErrorCode, truncate(res.ErrorMsg, 160))
	case res.Status == domain.StatusDownloaded:
		fmt.Fprintf(p.w, "[%d/%d] %s %s -> %s\n", idx, total, p.okLabel.Sprint("OK"), res.File, res.Dest)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s\n",
			idx, total, p.failLabel.Sprint("FAIL"), res.File, res.ErrorCode, truncate(res.ErrorMsg, 160))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFinish(rep domain.BatchReport, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTickerLocked()
	fmt.Fprintf(p.w, "\n用时 %s\n", formatElapsed(dur))
}

func (p *progressUI) fileAt(index int) string {
	if index >= 0 && index < len(p.files) {
		return p.files[index]
	}
	return fmt.Sprintf("#%d", index)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.fetched; remain < active {
						active = remain
					}
					fmt.Fprintf(p.w, "进度: fetched=%d/%d ok=%d failed=%d active=%d elapsed=%s\n",
						p.fetched, p.total, p.fetchOK, p.fetched-p.fetchOK, active,
						formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// stopTickerLocked 在提交阶段开始输出后停止 keepalive，避免结束打印后又冒出进度行。
func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
