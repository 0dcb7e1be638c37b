// Package importer 把外部来源（YAML 清单、HTML 索引页）批量转换为 target 条目。
//
// 这里只产出未校验的 Entry；校验与落盘由调用方通过 domain.NewTarget + lists 完成。
package importer

// Entry 是一个待导入的目标。
type Entry struct {
	URLs    []string `yaml:"urls"`
	File    string   `yaml:"file"`
	Comment string   `yaml:"comment"`
}
