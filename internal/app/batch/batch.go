// Package batch 把一个 target list 编排成一次 staging 批次，并产出对外稳定的 BatchReport。
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/infra/fsx"
	"github.com/John-Robertt/dlist/internal/staging"
)

// Downloader 是 staging 引擎的最小接口（*staging.CachingDownloader 实现它）。
type Downloader interface {
	Download(ctx context.Context, downloads []domain.Download, partition string) ([]domain.Outcome, error)
}

// Options 描述一次批次。
type Options struct {
	List    string
	Targets []domain.Target
	// Indices 与 Targets 等长时，给出每个目标在原列表中的下标（用于单条下载）；否则按 0..n-1。
	Indices []int
	// Partition 为空时自动生成。
	Partition string
	// Base 仅用于在报告中展示失败条目的目标路径。
	Base string
}

// Run 执行一次批次。setup 失败会降级为一条合成的失败条目，不返回 error。
func Run(ctx context.Context, opts Options, dl Downloader, obs Observer) domain.BatchReport {
	started := time.Now()

	partition := opts.Partition
	if partition == "" {
		partition = staging.NewPartitionID()
	}

	rep := domain.BatchReport{
		List:      opts.List,
		Partition: partition,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, len(opts.Targets)),
	}
	total := len(opts.Targets)
	if obs != nil {
		obs.OnStart(opts.List, partition, total)
	}

	finish := func() domain.BatchReport {
		rep.FinishedAt = time.Now()
		rep.Finalize()
		if obs != nil {
			obs.OnFinish(rep, time.Since(started))
		}
		return rep
	}

	if total == 0 {
		return finish()
	}

	downloads := make([]domain.Download, total)
	for i, t := range opts.Targets {
		downloads[i] = t.Download()
	}

	outcomes, err := dl.Download(ctx, downloads, partition)
	if err != nil {
		rep.Items = append(rep.Items, syntheticFailed(setupCode(err), err.Error()))
		return finish()
	}

	for i, o := range outcomes {
		var res domain.ItemResult
		if i < total {
			res = positional(opts, i, o)
		} else {
			res = nonPositional(o)
		}
		rep.Items = append(rep.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, total, res)
		}
	}
	return finish()
}

func positional(opts Options, i int, o domain.Outcome) domain.ItemResult {
	t := opts.Targets[i]
	idx := i
	if len(opts.Indices) == len(opts.Targets) {
		idx = opts.Indices[i]
	}

	res := domain.ItemResult{
		Index:   idx,
		File:    t.File,
		Comment: t.Comment,
		Status:  domain.StatusDownloaded,
	}
	if o.OK() {
		res.Dest = o.Path
		return res
	}
	res.Dest = domain.ResolvePath(opts.Base, t.File)
	res.Status = domain.StatusFailed
	res.ErrorCode = itemCode(o.Err)
	res.ErrorMsg = o.Err.Error()
	return res
}

func nonPositional(o domain.Outcome) domain.ItemResult {
	msg := "未知的清理失败"
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return domain.ItemResult{
		Index:     -1,
		Dest:      o.Path,
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeCleanupFailed,
		ErrorMsg:  msg,
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Index:     -1,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// itemCode 把单条失败映射为稳定的 error_code。顺序有意义：提交阶段的错误可能同时包裹路径冲突。
func itemCode(err error) string {
	var ce *staging.CleanupError
	switch {
	case errors.As(err, &ce):
		return domain.ErrCodeCleanupFailed
	case errors.Is(err, staging.ErrUnknownLocation):
		return domain.ErrCodeUnknownLocation
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict
	case errors.Is(err, staging.ErrCommitFailed):
		return domain.ErrCodeCommitFailed
	case errors.Is(err, staging.ErrFetchFailed), errors.Is(err, staging.ErrNoOutcome):
		return domain.ErrCodeFetchFailed
	default:
		return domain.ErrCodeIOFailed
	}
}

func setupCode(err error) string {
	switch {
	case errors.Is(err, staging.ErrAllFailed):
		return domain.ErrCodeFetchFailed
	case errors.Is(err, staging.ErrPartitionExists), errors.Is(err, staging.ErrBadPartition):
		return domain.ErrCodeTargetConflict
	default:
		return domain.ErrCodeIOFailed
	}
}

// Summary 返回一行人类可读的汇总。
func Summary(rep domain.BatchReport) string {
	return fmt.Sprintf("list=%s partition=%s succeeded=%d failed=%d cleanup_errors=%d",
		rep.List, rep.Partition, rep.Summary.Succeeded, rep.Summary.Failed, rep.Summary.Cleanup)
}

// FailedReport 构造只含一条合成失败条目的报告，用于批次开始之前的错误（配置、list 加锁等）。
func FailedReport(list, code string, err error) domain.BatchReport {
	now := time.Now()
	rep := domain.BatchReport{
		List:       list,
		StartedAt:  now,
		FinishedAt: now,
		Items:      []domain.ItemResult{syntheticFailed(code, err.Error())},
	}
	rep.Finalize()
	return rep
}
