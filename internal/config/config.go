package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/John-Robertt/dlist/internal/infra/diskx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是默认配置文件名（位于 Dirs.Config 下）。
const FileName = "config.toml"

// Version 参与默认 User-Agent。
const Version = "0.1"

const (
	DefaultParallelDownloads = 32
	DefaultRetries           = 3
	DefaultTimeoutConnection = 15
	DefaultTimeoutDownload   = 30

	// 并发与重试的上限；超出截断。
	maxCount = 256
)

// DefaultUserAgent 是未配置 user_agent 时使用的值。
func DefaultUserAgent() string { return AppName + " " + Version }

// FileConfig 对应 config.toml 的解析结构。指针字段用于区分“未设置”和零值。
type FileConfig struct {
	BaseDirectory     string   `toml:"base_directory"`
	CacheDirectory    string   `toml:"cache_directory"`
	ParallelDownloads *int     `toml:"parallel_downloads"`
	Retries           *int     `toml:"retries"`
	TimeoutConnection *int     `toml:"timeout_connection"`
	TimeoutDownload   *int     `toml:"timeout_download"`
	UserAgent         string   `toml:"user_agent"`
	RequestsPerSecond *float64 `toml:"requests_per_second"`
	MinFreeSpace      string   `toml:"min_free_space"`
}

// Effective 是合并默认值并校验后的最终配置，实现层直接消费。
type Effective struct {
	Dirs Dirs

	// ConfigPath 是实际读取（或尝试读取）的配置文件；ConfigLoaded 表示文件存在并已解析。
	ConfigPath   string
	ConfigLoaded bool

	BaseDirectory     string
	CacheDirectory    string
	ParallelDownloads int
	Retries           int
	TimeoutConnection time.Duration
	TimeoutDownload   time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MinFreeSpace      uint64
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取配置文件并与默认值合并。
//
// 发现规则：
// 1) explicit 非空：必须存在（否则 config_not_found），且必须是普通文件
// 2) 否则读取 <Dirs.Config>/config.toml：不存在则全部取默认值；存在但不是普通文件视为 config_invalid
//
// 校验规则：
// - 未知字段直接报错（格式漂移尽早暴露）
// - base_directory 必须是已存在的目录；相对路径相对 home 解析
// - cache_directory 必须是目录或不存在
// - parallel_downloads ∈ [1,256]、retries ∈ [0,256]，超出截断；超时必须为正
func Load(dirs Dirs, explicit string) (Effective, error) {
	path := dirs.ConfigFile()
	if strings.TrimSpace(explicit) != "" {
		path = absCleanFrom(dirs.Home, explicit)
	}

	fc, loaded, err := readFileConfig(path)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	if !loaded && strings.TrimSpace(explicit) != "" {
		return Effective{}, &Error{Code: ErrCodeNotFound, Path: path, Err: os.ErrNotExist}
	}

	eff, err := merge(dirs, fc)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	eff.ConfigPath = path
	eff.ConfigLoaded = loaded
	return eff, nil
}

func merge(dirs Dirs, fc FileConfig) (Effective, error) {
	eff := Effective{
		Dirs:              dirs,
		BaseDirectory:     dirs.Home,
		CacheDirectory:    dirs.PartitionsDir(),
		ParallelDownloads: DefaultParallelDownloads,
		Retries:           DefaultRetries,
		TimeoutConnection: DefaultTimeoutConnection * time.Second,
		TimeoutDownload:   DefaultTimeoutDownload * time.Second,
		UserAgent:         DefaultUserAgent(),
	}

	if s := strings.TrimSpace(fc.BaseDirectory); s != "" {
		eff.BaseDirectory = absCleanFrom(dirs.Home, s)
	}
	if fi, err := os.Stat(eff.BaseDirectory); err != nil || !fi.IsDir() {
		return Effective{}, fmt.Errorf("base_directory 不存在或不是目录：%q", eff.BaseDirectory)
	}

	if s := strings.TrimSpace(fc.CacheDirectory); s != "" {
		eff.CacheDirectory = absCleanFrom(dirs.Home, s)
	}
	if fi, err := os.Stat(eff.CacheDirectory); err == nil && !fi.IsDir() {
		return Effective{}, fmt.Errorf("cache_directory 已存在但不是目录：%q", eff.CacheDirectory)
	}

	if fc.ParallelDownloads != nil {
		eff.ParallelDownloads = clamp(*fc.ParallelDownloads, 1, maxCount)
	}
	if fc.Retries != nil {
		eff.Retries = clamp(*fc.Retries, 0, maxCount)
	}
	if fc.TimeoutConnection != nil {
		if *fc.TimeoutConnection <= 0 {
			return Effective{}, fmt.Errorf("timeout_connection 必须为正数：%d", *fc.TimeoutConnection)
		}
		eff.TimeoutConnection = time.Duration(*fc.TimeoutConnection) * time.Second
	}
	if fc.TimeoutDownload != nil {
		if *fc.TimeoutDownload <= 0 {
			return Effective{}, fmt.Errorf("timeout_download 必须为正数：%d", *fc.TimeoutDownload)
		}
		eff.TimeoutDownload = time.Duration(*fc.TimeoutDownload) * time.Second
	}
	if s := strings.TrimSpace(fc.UserAgent); s != "" {
		eff.UserAgent = s
	}
	if fc.RequestsPerSecond != nil {
		if *fc.RequestsPerSecond < 0 {
			return Effective{}, fmt.Errorf("requests_per_second 不能为负数：%v", *fc.RequestsPerSecond)
		}
		eff.RequestsPerSecond = *fc.RequestsPerSecond
	}
	if s := strings.TrimSpace(fc.MinFreeSpace); s != "" {
		n, err := diskx.ParseBytes(s)
		if err != nil {
			return Effective{}, fmt.Errorf("min_free_space 无效：%w", err)
		}
		eff.MinFreeSpace = n
	}
	return eff, nil
}

func (e Effective) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config file:         %s", e.ConfigPath)
	if !e.ConfigLoaded {
		b.WriteString(" (not found, using defaults)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "base directory:      %s\n", e.BaseDirectory)
	fmt.Fprintf(&b, "cache directory:     %s\n", e.CacheDirectory)
	fmt.Fprintf(&b, "lists directory:     %s\n", e.Dirs.ListsDir())
	fmt.Fprintf(&b, "parallel downloads:  %d\n", e.ParallelDownloads)
	fmt.Fprintf(&b, "retries:             %d\n", e.Retries)
	fmt.Fprintf(&b, "timeout connection:  %ds\n", int(e.TimeoutConnection/time.Second))
	fmt.Fprintf(&b, "timeout download:    %ds\n", int(e.TimeoutDownload/time.Second))
	if e.RequestsPerSecond > 0 {
		fmt.Fprintf(&b, "requests per second: %g\n", e.RequestsPerSecond)
	} else {
		b.WriteString("requests per second: unlimited\n")
	}
	fmt.Fprintf(&b, "min free space:      %s\n", diskx.FormatBytes(e.MinFreeSpace))
	fmt.Fprintf(&b, "user agent:          %s", e.UserAgent)
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；"~/" 前缀按 base（home）展开。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "~" {
		return filepath.Clean(base)
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		p = rest
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并严格解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if !fi.Mode().IsRegular() {
		return FileConfig{}, true, errors.New("配置路径存在但不是普通文件")
	}

	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return FileConfig{}, true, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return FileConfig{}, true, fmt.Errorf("未知字段：%s", strings.Join(keys, ", "))
	}
	return fc, true, nil
}
