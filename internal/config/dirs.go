package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName 决定各平台目录下的子目录名。
const AppName = "dlist"

// HomeEnv 覆盖全部目录：<home>/config、<home>/data、<home>/cache。
const HomeEnv = "DLIST_HOME"

// Dirs 是启动时一次性解析出的目录集合，显式传给需要路径的组件。
type Dirs struct {
	Config string
	Data   string
	Cache  string
	Home   string
}

// DiscoverDirs 按平台约定解析目录。
//
// - Config：os.UserConfigDir()/dlist
// - Data：$XDG_DATA_HOME/dlist，未设置时 ~/.local/share/dlist
// - Cache：os.UserCacheDir()/dlist
// - Home：os.UserHomeDir()（base_directory 默认值）
func DiscoverDirs() (Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("无法确定 home 目录：%w", err)}
	}

	if root := strings.TrimSpace(os.Getenv(HomeEnv)); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return Dirs{}, &Error{Code: ErrCodeInvalid, Path: root, Err: err}
		}
		return Dirs{
			Config: filepath.Join(abs, "config"),
			Data:   filepath.Join(abs, "data"),
			Cache:  filepath.Join(abs, "cache"),
			Home:   home,
		}, nil
	}

	cfg, err := os.UserConfigDir()
	if err != nil {
		return Dirs{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("无法确定配置目录：%w", err)}
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return Dirs{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("无法确定缓存目录：%w", err)}
	}
	data := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if data == "" || !filepath.IsAbs(data) {
		data = filepath.Join(home, ".local", "share")
	}

	return Dirs{
		Config: filepath.Join(cfg, AppName),
		Data:   filepath.Join(data, AppName),
		Cache:  filepath.Join(cache, AppName),
		Home:   home,
	}, nil
}

func (d Dirs) ConfigFile() string    { return filepath.Join(d.Config, FileName) }
func (d Dirs) ListsDir() string      { return filepath.Join(d.Data, "lists") }
func (d Dirs) StateFile() string     { return filepath.Join(d.Config, "persistent_state.json") }
func (d Dirs) PartitionsDir() string { return filepath.Join(d.Cache, "partitions") }
