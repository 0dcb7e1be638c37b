// Package staging 让一批远程下载对最终文件树呈现“全有或全无”的效果。
//
// 每个批次在 cache root 下独占一个新分区目录；retrieval service 只往分区里写，
// 成功条目提交（硬链接，失败则复制）到真实目标路径，其余一律丢弃，分区在返回前删除。
package staging

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/infra/diskx"
	"github.com/John-Robertt/dlist/internal/infra/fsx"
)

var (
	ErrPartitionExists  = errors.New("cache 分区已存在")
	ErrBadPartition     = errors.New("非法的分区名")
	ErrAllFailed        = errors.New("全部下载失败")
	ErrFetchFailed      = errors.New("下载失败")
	ErrUnknownLocation  = errors.New("未知的目标位置")
	ErrCommitFailed     = errors.New("无法把下载文件放到目标位置")
	ErrNoOutcome        = errors.New("retrieval service 未返回该条目的结果")
	ErrBaseNotDirectory = errors.New("base 目录不存在或不是目录")
)

// 通过可替换的函数指针，让测试能稳定模拟清理失败。
var (
	removeFunc    = os.Remove
	removeAllFunc = os.RemoveAll
)

// Retriever 是外部 retrieval service：一次阻塞调用处理整批请求。
//
// 返回的切片与输入按下标一一对应；成功条目的 Path 为实际写入路径。
// 若一个条目都无法尝试，可直接返回 error（此时不得伪造逐条结果）。
type Retriever interface {
	Retrieve(ctx context.Context, downloads []domain.Download) ([]domain.Outcome, error)
}

// CleanupError 是清理阶段产生的非定位失败（不对应任何输入条目）。
type CleanupError struct {
	Path string
	Op   string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("清理失败（%s）%q：%v", e.Op, e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

const (
	OpRemoveLeftover  = "remove_leftover"
	OpRemovePartition = "remove_partition"
)

type Option func(*CachingDownloader)

func WithLogger(log zerolog.Logger) Option {
	return func(d *CachingDownloader) { d.log = log }
}

// WithMinFreeSpace 要求 cache root 所在文件系统至少有 n 字节可用，否则批次在任何传输前失败。
func WithMinFreeSpace(n uint64) Option {
	return func(d *CachingDownloader) { d.minFree = n }
}

// CachingDownloader 是 staging & commit 引擎。
//
// 约束：
// - 调用方传入的 downloads 视为只读；分区路径重写只发生在引擎自己的副本上
// - 目标路径只在提交时才相对 base 解析
// - 只要 Download 返回（无论成败），本次分区都已不存在（删除失败会作为额外结果上报）
type CachingDownloader struct {
	inner     Retriever
	cacheRoot string
	base      string
	minFree   uint64
	log       zerolog.Logger
}

// New 校验两个根目录：cacheRoot 必须是目录或不存在（不存在则创建），base 必须是已存在的目录。
func New(inner Retriever, cacheRoot, base string, opts ...Option) (*CachingDownloader, error) {
	if err := fsx.EnsureDir(cacheRoot); err != nil {
		return nil, fmt.Errorf("准备 cache 目录失败 %q：%w", cacheRoot, err)
	}
	if fi, err := os.Stat(base); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w：%q", ErrBaseNotDirectory, base)
	}

	d := &CachingDownloader{
		inner:     inner,
		cacheRoot: filepath.Clean(cacheRoot),
		base:      filepath.Clean(base),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewPartitionID 生成 16 位十六进制的随机分区名：128 位随机数按异或折叠到 64 位。
func NewPartitionID() string {
	u := uuid.New()
	hi := binary.BigEndian.Uint64(u[:8])
	lo := binary.BigEndian.Uint64(u[8:])
	return fmt.Sprintf("%016x", hi^lo)
}

func slotName(i int) string { return fmt.Sprintf("%016x", i) }

// Download 执行一个批次。partition 为空时自动生成。
//
// 返回值：
// - error 非 nil：setup 失败或 retrieval service 整体失败，没有逐条结果
// - 否则前 len(downloads) 个结果与输入一一对应，其后追加清理阶段的 *CleanupError
func (d *CachingDownloader) Download(ctx context.Context, downloads []domain.Download, partition string) ([]domain.Outcome, error) {
	if partition == "" {
		partition = NewPartitionID()
	} else if err := validatePartition(partition); err != nil {
		return nil, err
	}

	if err := diskx.RequireFree(d.cacheRoot, d.minFree); err != nil {
		return nil, err
	}

	dir := filepath.Join(d.cacheRoot, partition)
	// Mkdir 本身就是“必须不存在”的原子检查：绝不复用其它批次的工作区。
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w：%q", ErrPartitionExists, dir)
		}
		return nil, fmt.Errorf("创建 cache 分区失败：%w", err)
	}
	log := d.log.With().Str("partition", partition).Logger()
	log.Debug().Str("dir", dir).Int("items", len(downloads)).Msg("cache 分区已创建")

	// 引擎自有副本 + 旁路映射：slot 路径 -> 原始目标路径。
	staged := make([]domain.Download, len(downloads))
	mapping := make(map[string]string, len(downloads))
	for i, dl := range downloads {
		slot := filepath.Join(dir, slotName(i))
		staged[i] = domain.Download{
			URLs: append([]string(nil), dl.URLs...),
			Dest: slot,
		}
		mapping[slot] = dl.Dest
	}

	outcomes, err := d.inner.Retrieve(ctx, staged)
	if err != nil {
		if rmErr := removeAllFunc(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("删除 cache 分区失败")
		}
		return nil, fmt.Errorf("%w：%w", ErrAllFailed, err)
	}
	if len(outcomes) > len(staged) {
		log.Warn().Int("want", len(staged)).Int("got", len(outcomes)).Msg("retrieval service 返回了多余的结果，已忽略")
	}

	results := make([]domain.Outcome, len(staged))
	for i := range staged {
		if i >= len(outcomes) {
			results[i] = domain.Outcome{Err: ErrNoOutcome}
			continue
		}
		results[i] = d.commit(log, mapping, outcomes[i])
	}

	// 未被消费的映射项：失败条目、未上报条目、提交失败条目、或提交后 cache 副本删不掉的条目。
	for _, slot := range sortedKeys(mapping) {
		err := removeFunc(slot)
		if err == nil {
			log.Debug().Str("slot", slot).Msg("已删除残留 cache 文件")
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		log.Warn().Err(err).Str("slot", slot).Msg("删除残留 cache 文件失败")
		results = append(results, domain.Outcome{Path: slot, Err: &CleanupError{Path: slot, Op: OpRemoveLeftover, Err: err}})
	}

	// RemoveAll 同时兜底 retrieval service 可能留下的其它临时文件。
	if err := removeAllFunc(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("删除 cache 分区失败")
		results = append(results, domain.Outcome{Path: dir, Err: &CleanupError{Path: dir, Op: OpRemovePartition, Err: err}})
	} else {
		log.Debug().Str("dir", dir).Msg("cache 分区已删除")
	}

	return results, nil
}

// commit 处理单个条目的结果。成功时消费映射项并返回解析后的真实目标路径。
func (d *CachingDownloader) commit(log zerolog.Logger, mapping map[string]string, o domain.Outcome) domain.Outcome {
	if o.Err != nil {
		return domain.Outcome{Err: fmt.Errorf("%w：%w", ErrFetchFailed, o.Err)}
	}

	slot := filepath.Clean(o.Path)
	orig, ok := mapping[slot]
	if !ok {
		return domain.Outcome{Err: fmt.Errorf("%w：%q", ErrUnknownLocation, o.Path)}
	}
	dest := domain.ResolvePath(d.base, orig)

	method, linkErr, err := fsx.LinkOrCopy(slot, dest)
	if err != nil {
		// 映射项保留，cache 文件由残留清理负责删除。
		return domain.Outcome{Err: fmt.Errorf("%w %q：%w", ErrCommitFailed, dest, err)}
	}
	if method == fsx.MethodCopy {
		log.Debug().
			Err(linkErr).
			Bool("exdev", fsx.IsCrossDevice(linkErr)).
			Str("dest", dest).
			Msg("硬链接失败，已回退为复制")
	}

	if err := removeFunc(slot); err != nil {
		// 目标已完整落盘，条目仍算成功；cache 副本交给残留清理再试一次并上报。
		log.Debug().Err(err).Str("slot", slot).Msg("删除 cache 副本失败，转入残留清理")
		return domain.Outcome{Path: dest}
	}
	delete(mapping, slot)
	return domain.Outcome{Path: dest}
}

func validatePartition(p string) error {
	if p == "." || p == ".." || strings.ContainsAny(p, `/\`) || filepath.Base(p) != p {
		return fmt.Errorf("%w：%q", ErrBadPartition, p)
	}
	return nil
}
