package batch

import (
	"time"

	"github.com/John-Robertt/dlist/internal/domain"
)

// Observer 用于把“批次进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - batch 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件在调用 Run 的 goroutine 上按结果顺序发出
type Observer interface {
	// OnStart 在 Run 开始时调用（尽早，保证用户 1 秒内看到输出）。
	OnStart(list, partition string, total int)
	// OnItemDone 在每条结果确定后调用；非定位的清理失败 res.Index=-1。
	OnItemDone(idx, total int, res domain.ItemResult)
	// OnFinish 在报告定稿后调用。
	OnFinish(rep domain.BatchReport, dur time.Duration)
}
