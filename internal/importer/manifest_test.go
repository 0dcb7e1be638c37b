package importer

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFromManifest_OK(t *testing.T) {
	src := `
dir: photos
targets:
  - file: a.jpg
    urls:
      - https://a.example/a.jpg
      - https://b.example/a.jpg
    comment: cover
  - file: /abs/b.jpg
    urls: [http://a.example/b.jpg]
`
	got, err := FromManifest(strings.NewReader(src))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].File != filepath.Join("photos", "a.jpg") || len(got[0].URLs) != 2 || got[0].Comment != "cover" {
		t.Fatalf("got[0]=%+v", got[0])
	}
	if got[1].File != "/abs/b.jpg" {
		t.Fatalf("绝对路径不应加前缀：%q", got[1].File)
	}
}

func TestFromManifest_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "targets:\n  - file: a\n    urls: [https://x/a]\n    size: 3\n",
		"missing file":  "targets:\n  - urls: [https://x/a]\n",
		"missing urls":  "targets:\n  - file: a\n",
		"empty":         "",
		"top-level key": "entries: []\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromManifest(strings.NewReader(src)); err == nil {
				t.Fatalf("期望错误，但得到 nil")
			}
		})
	}
}
