package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewTarget_Validation(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "dir"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "exists.bin"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	if _, err := NewTarget(nil, "a.bin", "", base); !errors.Is(err, ErrNoURL) {
		t.Fatalf("期望 ErrNoURL，实际：%v", err)
	}
	if _, err := NewTarget([]string{"ftp://example.test/a"}, "a.bin", "", base); !errors.Is(err, ErrBadScheme) {
		t.Fatalf("期望 ErrBadScheme，实际：%v", err)
	}
	if _, err := NewTarget([]string{"https://example.test/a", "file:///etc/passwd"}, "a.bin", "", base); !errors.Is(err, ErrBadScheme) {
		t.Fatalf("任意一个 url 不是 http(s) 都应失败，实际：%v", err)
	}
	if _, err := NewTarget([]string{"https://example.test/a"}, "  ", "", base); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("期望 ErrEmptyFile，实际：%v", err)
	}
	if _, err := NewTarget([]string{"https://example.test/a"}, "dir", "", base); !errors.Is(err, ErrDestinationNotFile) {
		t.Fatalf("目标是目录时期望 ErrDestinationNotFile，实际：%v", err)
	}

	tg, err := NewTarget([]string{"https://example.test/a", "http://mirror.test/a"}, "exists.bin", " pics ", base)
	if err != nil {
		t.Fatalf("已存在的普通文件应允许：%v", err)
	}
	if len(tg.URLs) != 2 || tg.File != "exists.bin" || tg.Comment != "pics" {
		t.Fatalf("Target 不符合预期：%+v", tg)
	}
	if tg.String() != "pics: exists.bin" {
		t.Fatalf("String() 不符合预期：%q", tg.String())
	}
}

func TestTarget_DownloadCopiesURLs(t *testing.T) {
	tg := Target{URLs: []string{"https://a.test/x"}, File: "x"}
	d := tg.Download()
	d.URLs[0] = "changed"
	if tg.URLs[0] != "https://a.test/x" {
		t.Fatalf("Download() 不应共享 URLs 底层数组")
	}
	if d.Dest != "x" {
		t.Fatalf("Dest 应保持原始路径：%q", d.Dest)
	}
}

func TestTargetList_AppendAndComment(t *testing.T) {
	l := NewTargetList("default", "")
	if l.Comment != nil {
		t.Fatalf("空描述应为 nil")
	}
	if idx := l.Append(Target{File: "a"}); idx != 0 {
		t.Fatalf("第一个下标应为 0，实际 %d", idx)
	}
	if idx := l.Append(Target{File: "b"}); idx != 1 {
		t.Fatalf("第二个下标应为 1，实际 %d", idx)
	}
	if l.Len() != 2 {
		t.Fatalf("Len 应为 2，实际 %d", l.Len())
	}
	l.SetComment("hello")
	if l.CommentText() != "hello" {
		t.Fatalf("CommentText 不一致：%q", l.CommentText())
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/base", "a/../b.txt"); got != filepath.Clean("/base/b.txt") {
		t.Fatalf("相对路径解析不正确：%q", got)
	}
	if got := ResolvePath("/base", "/abs/./c"); got != filepath.Clean("/abs/c") {
		t.Fatalf("绝对路径应直接 Clean：%q", got)
	}
}
