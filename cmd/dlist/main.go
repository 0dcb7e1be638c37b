package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/dlist/internal/config"
	"github.com/John-Robertt/dlist/internal/infra/logx"
	"github.com/John-Robertt/dlist/internal/lists"
	"github.com/John-Robertt/dlist/internal/selection"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errReported 表示失败详情已经输出过，只需要以退出码 1 结束。
var errReported = errors.New("已报告的失败")

// cli 持有一次进程调用的上下文：目录、配置与输出流。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger

	configPath string
	dirs       config.Dirs
	eff        *config.Effective
}

// run 解析全局参数并分发子命令，返回退出码：0 成功，1 失败，2 用法错误。
func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}

	verbose := false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		a := args[0]
		switch {
		case isHelp(a):
			printUsage(stdout)
			return 0
		case a == "-v" || a == "--verbose":
			verbose = true
			args = args[1:]
		case a == "--config":
			if len(args) < 2 {
				fmt.Fprintf(stderr, "参数错误：--config 需要一个值\n\n")
				printUsage(stderr)
				return 2
			}
			c.configPath = args[1]
			args = args[2:]
		case strings.HasPrefix(a, "--config="):
			c.configPath = strings.TrimPrefix(a, "--config=")
			args = args[1:]
		default:
			fmt.Fprintf(stderr, "参数错误：未知参数 %q\n\n", a)
			printUsage(stderr)
			return 2
		}
	}
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(stdout)
		return 0
	}

	c.log = logx.New(stderr, verbose, isTTY(stderr))

	dirs, err := config.DiscoverDirs()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	c.dirs = dirs

	var (
		cmdErr error
		usage  func(io.Writer)
	)
	switch args[0] {
	case "list", "l":
		cmdErr, usage = c.listCmd(args[1:]), printListUsage
	case "target", "t":
		cmdErr, usage = c.targetCmd(args[1:]), printTargetUsage
	case "select", "s":
		cmdErr, usage = c.selectCmd(args[1:]), printSelectUsage
	case "state":
		cmdErr, usage = c.stateCmd(args[1:]), printUsage
	case "config":
		cmdErr, usage = c.configCmd(args[1:]), printUsage
	case "download", "dl":
		cmdErr, usage = c.downloadCmd(args[1:]), printDownloadUsage
	default:
		fmt.Fprintf(stderr, "未知命令：%q\n\n", args[0])
		printUsage(stderr)
		return 2
	}
	return c.exitCode(cmdErr, usage)
}

func (c *cli) exitCode(err error, usage func(io.Writer)) int {
	if err == nil {
		return 0
	}
	var ue *usageError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", ue)
		usage(c.stderr)
		return 2
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(c.stderr, "错误：%v\n", err)
		return 1
	}
}

// effective 按需加载配置：只有需要 base/cache/网络参数的命令才读取 config.toml。
func (c *cli) effective() (config.Effective, error) {
	if c.eff != nil {
		return *c.eff, nil
	}
	eff, err := config.Load(c.dirs, c.configPath)
	if err != nil {
		return config.Effective{}, err
	}
	c.log.Debug().Str("config", eff.ConfigPath).Bool("loaded", eff.ConfigLoaded).Msg("配置已加载")
	c.eff = &eff
	return eff, nil
}

func (c *cli) repo() *lists.Repo { return lists.NewRepo(c.dirs.ListsDir()) }

func (c *cli) loadState() (selection.State, error) {
	return selection.Load(c.dirs.StateFile())
}

func (c *cli) saveState(st selection.State) error {
	return st.Save(c.dirs.StateFile())
}

// resolveList 返回显式指定的 list；未指定时使用当前选择。
func (c *cli) resolveList(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	st, err := c.loadState()
	if err != nil {
		return "", err
	}
	name, ok := st.List()
	if !ok {
		return "", errors.New("未选择 list：请使用 --list NAME 或先执行 `dlist select list NAME`")
	}
	return name, nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  dlist [--config PATH] [-v] <命令> [参数]

命令：
  list      管理 target list（create/delete/info/ls/update）
  target    管理 list 中的目标（add/ls/import/scrape）
  select    选择当前 list / target
  state     显示当前选择
  config    显示生效配置与磁盘空间
  download  下载 list 中的目标（全有或全无地落盘）

全局参数：
  --config PATH  使用指定配置文件（默认 <配置目录>/config.toml）
  -v, --verbose  输出 debug 日志到 stderr
  -h, --help     显示帮助

使用 "dlist <命令> --help" 查看详细说明。
`)
}
