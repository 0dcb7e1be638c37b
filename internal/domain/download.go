package domain

// Download 是交给 retrieval service 的单条请求：镜像 URL（按优先级）+ 写入路径。
type Download struct {
	URLs []string
	Dest string
}

// Outcome 是单条请求的终态：成功时 Path 为实际写入路径，失败时 Err 非空。
//
// staging 返回的切片中，前 len(input) 个与输入一一对应；之后追加的都是
// 清理阶段的额外失败（不对应任何输入，调用方不得按下标解释）。
type Outcome struct {
	Path string
	Err  error
}

func (o Outcome) OK() bool { return o.Err == nil }
