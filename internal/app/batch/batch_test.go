package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/fetch"
	"github.com/John-Robertt/dlist/internal/infra/fsx"
	"github.com/John-Robertt/dlist/internal/staging"
)

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	items    []domain.ItemResult
	finished int
}

func (o *recordingObserver) OnStart(string, string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) OnItemDone(_, _ int, res domain.ItemResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res)
}

func (o *recordingObserver) OnFinish(domain.BatchReport, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer srv.Close()

	root := t.TempDir()
	base := filepath.Join(root, "base")
	cache := filepath.Join(root, "cache")
	if err := os.Mkdir(base, 0o755); err != nil {
		t.Fatalf("创建 base 失败：%v", err)
	}

	svc := fetch.New(srv.Client(), fetch.Options{Parallel: 4, Backoff: time.Millisecond})
	eng, err := staging.New(svc, cache, base)
	if err != nil {
		t.Fatalf("staging.New 不期望错误：%v", err)
	}

	targets := []domain.Target{
		{URLs: []string{srv.URL + "/one.bin"}, File: "a/one.bin", Comment: "first"},
		{URLs: []string{srv.URL + "/missing.bin"}, File: "two.bin"},
		{URLs: []string{srv.URL + "/missing.bin", srv.URL + "/three.bin"}, File: "three.bin"},
	}

	obs := &recordingObserver{}
	rep := Run(context.Background(), Options{List: "pics", Targets: targets, Base: base}, eng, obs)

	if rep.Summary.Succeeded != 2 || rep.Summary.Failed != 1 || rep.Summary.Cleanup != 0 {
		t.Fatalf("summary=%+v items=%+v", rep.Summary, rep.Items)
	}
	if len(rep.Items) != 3 {
		t.Fatalf("items=%+v", rep.Items)
	}
	if rep.Items[0].Dest != filepath.Join(base, "a", "one.bin") || rep.Items[0].Comment != "first" {
		t.Fatalf("items[0]=%+v", rep.Items[0])
	}
	if rep.Items[1].Status != domain.StatusFailed || rep.Items[1].ErrorCode != domain.ErrCodeFetchFailed {
		t.Fatalf("items[1]=%+v", rep.Items[1])
	}
	if _, err := os.Stat(filepath.Join(base, "two.bin")); !os.IsNotExist(err) {
		t.Fatalf("失败条目不应落盘")
	}
	b, _ := os.ReadFile(filepath.Join(base, "three.bin"))
	if string(b) != "content of /three.bin" {
		t.Fatalf("镜像回退后内容不一致：%q", b)
	}
	entries, _ := os.ReadDir(cache)
	if len(entries) != 0 {
		t.Fatalf("cache 分区未删除：%v", entries)
	}
	if len(rep.Partition) != 16 {
		t.Fatalf("partition=%q", rep.Partition)
	}
	if obs.started != 1 || obs.finished != 1 || len(obs.items) != 3 {
		t.Fatalf("observer 事件不完整：%+v", obs)
	}
}

type stubDownloader struct {
	out []domain.Outcome
	err error

	partition string
}

func (s *stubDownloader) Download(_ context.Context, _ []domain.Download, partition string) ([]domain.Outcome, error) {
	s.partition = partition
	return s.out, s.err
}

func TestRun_SetupErrorBecomesSyntheticItem(t *testing.T) {
	dl := &stubDownloader{err: fmt.Errorf("%w：x", staging.ErrPartitionExists)}
	rep := Run(context.Background(), Options{
		List:      "pics",
		Targets:   []domain.Target{{URLs: []string{"https://x/a"}, File: "a"}},
		Partition: "manual",
	}, dl, nil)

	if dl.partition != "manual" || rep.Partition != "manual" {
		t.Fatalf("显式分区未透传：%q/%q", dl.partition, rep.Partition)
	}
	if len(rep.Items) != 1 || rep.Items[0].Index != -1 || rep.Items[0].ErrorCode != domain.ErrCodeTargetConflict {
		t.Fatalf("items=%+v", rep.Items)
	}
	if rep.OK() || rep.Summary.Failed != 1 {
		t.Fatalf("summary=%+v", rep.Summary)
	}
}

func TestRun_ErrorCodesAndCleanupExtras(t *testing.T) {
	targets := []domain.Target{
		{File: "a"}, {File: "b"}, {File: "c"}, {File: "d"}, {File: "e"},
	}
	dl := &stubDownloader{out: []domain.Outcome{
		{Path: "/base/a"},
		{Err: fmt.Errorf("%w：x", staging.ErrUnknownLocation)},
		{Err: fmt.Errorf("%w：%w", staging.ErrCommitFailed, &fsx.PathTypeConflictError{Path: "c", Want: "file", Got: "dir"})},
		{Err: fmt.Errorf("%w：%w", staging.ErrCommitFailed, errors.New("disk full"))},
		{Err: fmt.Errorf("%w：%w", staging.ErrFetchFailed, errors.New("404"))},
		{Path: "/cache/p/0000000000000003", Err: &staging.CleanupError{Path: "/cache/p/0000000000000003", Op: staging.OpRemoveLeftover, Err: os.ErrPermission}},
	}}

	rep := Run(context.Background(), Options{List: "x1", Targets: targets, Indices: []int{4, 5, 6, 7, 8}, Base: "/base"}, dl, nil)

	want := []string{"", domain.ErrCodeUnknownLocation, domain.ErrCodeTargetConflict, domain.ErrCodeCommitFailed, domain.ErrCodeFetchFailed, domain.ErrCodeCleanupFailed}
	if len(rep.Items) != len(want) {
		t.Fatalf("items=%+v", rep.Items)
	}
	for i, code := range want {
		if rep.Items[i].ErrorCode != code {
			t.Fatalf("items[%d].ErrorCode=%q want=%q", i, rep.Items[i].ErrorCode, code)
		}
	}
	if rep.Items[0].Index != 4 || rep.Items[4].Index != 8 || rep.Items[5].Index != -1 {
		t.Fatalf("下标映射不正确：%+v", rep.Items)
	}
	if rep.Items[1].Dest != "/base/b" {
		t.Fatalf("失败条目应展示解析后的目标路径：%q", rep.Items[1].Dest)
	}
	if rep.Summary.Succeeded != 1 || rep.Summary.Failed != 4 || rep.Summary.Cleanup != 1 {
		t.Fatalf("summary=%+v", rep.Summary)
	}
}

func TestRun_EmptyListSkipsDownloader(t *testing.T) {
	dl := &stubDownloader{err: errors.New("不应被调用")}
	rep := Run(context.Background(), Options{List: "empty"}, dl, nil)
	if len(rep.Items) != 0 || !rep.OK() {
		t.Fatalf("rep=%+v", rep)
	}
	if dl.partition != "" {
		t.Fatalf("空列表不应调用 downloader")
	}
}

func TestFailedReport(t *testing.T) {
	rep := FailedReport("demo", domain.ErrCodeListLocked, errors.New("locked"))
	if rep.List != "demo" || rep.OK() {
		t.Fatalf("报告不符合预期：%+v", rep)
	}
	if len(rep.Items) != 1 || rep.Items[0].Index != -1 || rep.Items[0].ErrorCode != domain.ErrCodeListLocked {
		t.Fatalf("items 不符合预期：%+v", rep.Items)
	}
	if rep.Summary.Failed != 1 || rep.Summary.Cleanup != 0 {
		t.Fatalf("summary 不符合预期：%+v", rep.Summary)
	}
}
