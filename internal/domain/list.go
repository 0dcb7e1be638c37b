package domain

// TargetList 是一个具名、有序的 Target 集合，对应 Record Store 中的一个文件。
//
// 顺序有意义：`select target <i>` 与 `download --index <i>` 都按下标寻址。
type TargetList struct {
	Name    string   `json:"name"`
	Comment *string  `json:"comment"`
	Targets []Target `json:"targets"`
}

// NewTargetList 构造空列表。comment 为空串时视为“无描述”。
func NewTargetList(name ListName, comment string) TargetList {
	tl := TargetList{Name: string(name), Targets: []Target{}}
	tl.SetComment(comment)
	return tl
}

// RecordName 实现 store.Record：记录内嵌名字必须与文件名一致。
func (l TargetList) RecordName() string { return l.Name }

// Append 追加一个已校验的 Target，返回其下标（即追加前的长度）。
func (l *TargetList) Append(t Target) int {
	idx := len(l.Targets)
	l.Targets = append(l.Targets, t)
	return idx
}

func (l TargetList) Len() int { return len(l.Targets) }

// SetComment 设置描述；空串清除描述。
func (l *TargetList) SetComment(c string) {
	if c == "" {
		l.Comment = nil
		return
	}
	l.Comment = &c
}

func (l TargetList) CommentText() string {
	if l.Comment == nil {
		return ""
	}
	return *l.Comment
}
