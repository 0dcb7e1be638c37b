// Package fetch 是默认的 retrieval service：并发下载一批请求，逐个镜像按序尝试并有界重试。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/infra/fsx"
)

// PartSuffix 是下载中临时文件的后缀；完整写入后 rename 为最终文件名。
const PartSuffix = ".part"

// ErrNothingToDo 表示批次为空，一个条目都无法尝试。
var ErrNothingToDo = errors.New("fetch: 批次为空")

// HTTPStatusError 表示服务器返回了非 2xx 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s：HTTP %d", e.URL, e.StatusCode)
}

// Temporary 报告该状态码是否值得对同一镜像重试。
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Options 控制并发、重试与限速。
type Options struct {
	// Parallel 是最大并发下载数（<1 视为 1）。
	Parallel int
	// Retries 是每个镜像在首次尝试之外的重试次数。
	Retries int
	// RequestsPerSecond 限制请求发起速率；<=0 不限速。
	RequestsPerSecond float64
	// Backoff 是同一镜像两次尝试之间的基础等待（按尝试次数线性增长）。零值使用 500ms。
	Backoff time.Duration

	Logger zerolog.Logger

	// OnItemDone 在某个条目到达终态时调用（可能来自多个 goroutine）。
	OnItemDone func(index int, o domain.Outcome)
}

// Service 实现 staging.Retriever。
type Service struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

func New(client *http.Client, opts Options) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	s := &Service{client: client, opts: opts}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Retrieve 阻塞直到每个条目都到达终态；结果与输入按下标对应。
func (s *Service) Retrieve(ctx context.Context, downloads []domain.Download) ([]domain.Outcome, error) {
	if len(downloads) == 0 {
		return nil, ErrNothingToDo
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workers := s.opts.Parallel
	if workers > len(downloads) {
		workers = len(downloads)
	}

	out := make([]domain.Outcome, len(downloads))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				o := s.fetchOne(ctx, downloads[idx])
				out[idx] = o
				if s.opts.OnItemDone != nil {
					s.opts.OnItemDone(idx, o)
				}
			}
		}()
	}

	for i := range downloads {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out, nil
}

// fetchOne 依次尝试每个镜像；任一镜像成功即返回。
func (s *Service) fetchOne(ctx context.Context, dl domain.Download) domain.Outcome {
	if len(dl.URLs) == 0 {
		return domain.Outcome{Err: domain.ErrNoURL}
	}

	log := s.opts.Logger.With().Str("dest", dl.Dest).Logger()
	var errs []error
	for mi, u := range dl.URLs {
		err := s.tryMirror(ctx, log, u, dl.Dest)
		if err == nil {
			if mi > 0 {
				log.Debug().Str("url", u).Int("mirror", mi).Msg("备用镜像下载成功")
			}
			return domain.Outcome{Path: dl.Dest}
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if mi+1 < len(dl.URLs) {
			log.Debug().Err(err).Str("url", u).Msg("镜像失败，切换下一个")
		}
	}
	return domain.Outcome{Err: fmt.Errorf("所有镜像均失败：%w", errors.Join(errs...))}
}

func (s *Service) tryMirror(ctx context.Context, log zerolog.Logger, u, dest string) error {
	var err error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			if werr := sleep(ctx, time.Duration(attempt)*s.opts.Backoff); werr != nil {
				return werr
			}
		}
		if s.limiter != nil {
			if werr := s.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = s.get(ctx, u, dest)
		if err == nil {
			return nil
		}
		log.Debug().Err(err).Str("url", u).Int("attempt", attempt+1).Msg("下载尝试失败")

		if ctx.Err() != nil {
			return err
		}
		var se *HTTPStatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
	}
	return err
}

// get 把 u 的响应体写到 dest：先写 dest+PartSuffix，完整后 rename。失败时不留下任何文件。
func (s *Service) get(ctx context.Context, u, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	part := dest + PartSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(part)
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败：%w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("响应体不完整：期望 %d 字节，实际 %d", resp.ContentLength, n)
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return fsx.Rename(part, dest)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
