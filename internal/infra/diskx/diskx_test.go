package diskx

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
)

func TestParseBytes(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"4096", 4096, true},
		{"1KiB", 1024, true},
		{"512MiB", 512 << 20, true},
		{"1.5GiB", 3 << 29, true},
		{"512MB", 512_000_000, true},
		{"2 tb", 2_000_000_000_000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-1MB", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"+Inf", 0, false},
		{"1e30GB", 0, false},
		{"99999999999EB", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseBytes(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseBytes(%q) err=%v ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseBytes(%q)=%d want=%d", tc.in, got, tc.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(512); got != "512 B" {
		t.Fatalf("got=%q", got)
	}
	if got := FormatBytes(3 << 29); got != "1.5 GiB" {
		t.Fatalf("got=%q", got)
	}
}

func TestRequireFree_UsesNearestExistingAncestor(t *testing.T) {
	dir := t.TempDir()

	var probed string
	old := usageFunc
	usageFunc = func(path string) (*disk.UsageStat, error) {
		probed = path
		return &disk.UsageStat{Path: path, Free: 100}, nil
	}
	defer func() { usageFunc = old }()

	if err := RequireFree(filepath.Join(dir, "a", "b"), 50); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if probed != dir {
		t.Fatalf("probed=%q want=%q", probed, dir)
	}
	if err := RequireFree(dir, 200); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("期望 ErrInsufficientSpace，实际：%v", err)
	}
	if err := RequireFree(dir, 0); err != nil {
		t.Fatalf("min=0 不应检查：%v", err)
	}
}
