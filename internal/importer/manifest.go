package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest 是 `target import` 读取的 YAML 文档：
//
//	dir: photos/2024        # 可选：相对 file 的公共前缀
//	targets:
//	  - file: a.jpg
//	    urls: [https://a.example/a.jpg, https://b.example/a.jpg]
//	    comment: cover
type Manifest struct {
	Dir     string  `yaml:"dir"`
	Targets []Entry `yaml:"targets"`
}

// FromManifest 严格解析清单：未知字段直接报错；每个条目至少要有 file 与一个 url。
func FromManifest(r io.Reader) ([]Entry, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("清单为空")
		}
		return nil, fmt.Errorf("解析清单失败：%w", err)
	}

	out := make([]Entry, 0, len(m.Targets))
	for i, e := range m.Targets {
		e.File = strings.TrimSpace(e.File)
		if e.File == "" {
			return nil, fmt.Errorf("targets[%d]：缺少 file", i)
		}
		if len(e.URLs) == 0 {
			return nil, fmt.Errorf("targets[%d]（%s）：缺少 urls", i, e.File)
		}
		if m.Dir != "" && !filepath.IsAbs(e.File) {
			e.File = filepath.Join(m.Dir, e.File)
		}
		out = append(out, e)
	}
	return out, nil
}
