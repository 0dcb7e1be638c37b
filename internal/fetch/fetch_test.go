package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/dlist/internal/domain"
)

func newService(opts Options) *Service {
	opts.Backoff = time.Millisecond
	return New(&http.Client{Timeout: 5 * time.Second}, opts)
}

func TestRetrieve_MirrorFallback(t *testing.T) {
	var badHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.NotFound(w, r)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello " + r.URL.Path))
	}))
	defer good.Close()

	dest := filepath.Join(t.TempDir(), "sub", "a.txt")
	s := newService(Options{Parallel: 2, Retries: 3})
	out, err := s.Retrieve(context.Background(), []domain.Download{
		{URLs: []string{bad.URL + "/a", good.URL + "/a"}, Dest: dest},
	})
	if err != nil {
		t.Fatalf("Retrieve 不期望错误：%v", err)
	}
	if !out[0].OK() || out[0].Path != dest {
		t.Fatalf("out=%+v", out[0])
	}
	b, _ := os.ReadFile(dest)
	if string(b) != "hello /a" {
		t.Fatalf("内容不一致：%q", b)
	}
	// 404 不可重试：每个坏镜像只请求一次。
	if badHits.Load() != 1 {
		t.Fatalf("404 被重试了 %d 次", badHits.Load())
	}
}

func TestRetrieve_RetriesTemporaryStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "x")
	s := newService(Options{Retries: 2})
	out, err := s.Retrieve(context.Background(), []domain.Download{{URLs: []string{srv.URL}, Dest: dest}})
	if err != nil {
		t.Fatalf("Retrieve 不期望错误：%v", err)
	}
	if !out[0].OK() {
		t.Fatalf("期望成功，实际：%v", out[0].Err)
	}
	if hits.Load() != 3 {
		t.Fatalf("期望 3 次请求，实际 %d", hits.Load())
	}
}

func TestRetrieve_FailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "x")
	s := newService(Options{Retries: 1})
	out, err := s.Retrieve(context.Background(), []domain.Download{{URLs: []string{srv.URL}, Dest: dest}})
	if err != nil {
		t.Fatalf("Retrieve 不期望错误：%v", err)
	}
	var se *HTTPStatusError
	if !errors.As(out[0].Err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("期望 HTTPStatusError，实际：%v", out[0].Err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("失败条目不应留下文件：%v", entries)
	}
}

func TestRetrieve_TruncatedBodyIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := newService(Options{})
	out, err := s.Retrieve(context.Background(), []domain.Download{{URLs: []string{srv.URL}, Dest: filepath.Join(dir, "x")}})
	if err != nil {
		t.Fatalf("Retrieve 不期望错误：%v", err)
	}
	if out[0].OK() {
		t.Fatalf("截断响应应视为失败")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("失败条目不应留下文件：%v", entries)
	}
}

func TestRetrieve_OrderAndCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := []domain.Download{
		{URLs: []string{srv.URL + "/0"}, Dest: filepath.Join(dir, "0")},
		{URLs: []string{srv.URL + "/missing"}, Dest: filepath.Join(dir, "1")},
		{URLs: []string{srv.URL + "/2"}, Dest: filepath.Join(dir, "2")},
	}

	var mu sync.Mutex
	done := map[int]bool{}
	s := newService(Options{Parallel: 3, OnItemDone: func(i int, o domain.Outcome) {
		mu.Lock()
		done[i] = o.OK()
		mu.Unlock()
	}})
	out, err := s.Retrieve(context.Background(), in)
	if err != nil {
		t.Fatalf("Retrieve 不期望错误：%v", err)
	}
	if len(out) != 3 || !out[0].OK() || out[1].OK() || !out[2].OK() {
		t.Fatalf("out=%+v", out)
	}
	if len(done) != 3 || !done[0] || done[1] || !done[2] {
		t.Fatalf("回调不完整：%v", done)
	}
}

func TestRetrieve_WholeCallErrors(t *testing.T) {
	s := newService(Options{})
	if _, err := s.Retrieve(context.Background(), nil); !errors.Is(err, ErrNothingToDo) {
		t.Fatalf("期望 ErrNothingToDo，实际：%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Retrieve(ctx, []domain.Download{{URLs: []string{"http://127.0.0.1:1/"}, Dest: filepath.Join(t.TempDir(), "x")}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际：%v", err)
	}
}

func TestNew_RateLimiter(t *testing.T) {
	if s := New(nil, Options{}); s.limiter != nil {
		t.Fatalf("RequestsPerSecond=0 不应限速")
	}
	s := New(nil, Options{RequestsPerSecond: 0.5})
	if s.limiter == nil || s.limiter.Burst() != 1 {
		t.Fatalf("limiter=%v", s.limiter)
	}
}
