package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

const (
	ErrCodeFetchFailed     = "fetch_failed"
	ErrCodeUnknownLocation = "unknown_location"
	ErrCodeCommitFailed    = "commit_failed"
	ErrCodeCleanupFailed   = "cleanup_failed"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeListLocked      = "list_locked"
	ErrCodeListInvalid     = "list_invalid"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
)

// BatchReport 是一次 download 的对外稳定输出（stdout JSON）。
type BatchReport struct {
	List      string `json:"list"`
	Partition string `json:"partition"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary BatchSummary `json:"summary"`
	Items   []ItemResult `json:"items"`
}

type BatchSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cleanup   int `json:"cleanup_errors"`
}

// ItemResult 对应一个输入 Target；Index=-1 表示清理阶段产生的非定位失败。
type ItemResult struct {
	Index   int    `json:"index"`
	File    string `json:"file"`
	Dest    string `json:"dest"`
	Comment string `json:"comment,omitempty"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Positional 表示该条目是否对应某个输入 Target。
func (it ItemResult) Positional() bool { return it.Index >= 0 }

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 index 升序；index<0 的非定位条目排在最后（内部保持原顺序）
// 3) summary 由 items 计算得出
func (r *BatchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i].Index, r.Items[j].Index
		if a < 0 {
			return false
		}
		if b < 0 {
			return true
		}
		return a < b
	})

	var s BatchSummary
	for _, it := range r.Items {
		switch {
		case !it.Positional() && it.ErrorCode == ErrCodeCleanupFailed:
			s.Cleanup++
		case it.Status == StatusDownloaded:
			s.Succeeded++
		default:
			s.Failed++
		}
	}
	r.Summary = s
}

// OK 表示没有任何失败（含清理失败）。
func (r BatchReport) OK() bool {
	return r.Summary.Failed == 0 && r.Summary.Cleanup == 0
}

// MarshalJSON 集中约束输出的稳定性；items 为 nil 时输出 []。
func (r BatchReport) MarshalJSON() ([]byte, error) {
	type Alias BatchReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
