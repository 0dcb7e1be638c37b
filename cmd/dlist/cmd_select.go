package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/John-Robertt/dlist/internal/domain"
	"github.com/John-Robertt/dlist/internal/infra/diskx"
)

func (c *cli) selectCmd(args []string) error {
	if len(args) == 0 {
		return usagef("缺少 select 子命令")
	}
	if hasHelp(args) || isHelp(args[0]) {
		printSelectUsage(c.stdout)
		return nil
	}
	if len(args) != 2 {
		return usagef("select %s 需要且仅需要一个参数", args[0])
	}

	st, err := c.loadState()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list", "l":
		name := args[1]
		if name == domain.NoneName {
			st.ClearList()
			break
		}
		// 打开一次以确认 list 存在且文档有效。
		l, err := c.openList(name)
		if err != nil {
			return err
		}
		_ = l.Close()
		st.SetList(name)
	case "target", "t":
		i, err := strconv.ParseUint(args[1], 10, 0)
		if err != nil {
			return usagef("target 下标必须是非负整数：%q", args[1])
		}
		name, ok := st.List()
		if !ok {
			return fmt.Errorf("未选择 list：请先执行 `dlist select list NAME`")
		}
		l, err := c.openList(name)
		if err != nil {
			return err
		}
		n := l.Len()
		_ = l.Close()
		if i >= uint64(n) {
			return fmt.Errorf("target 下标越界：%d（list %s 共 %d 个目标）", i, name, n)
		}
		st.SetTarget(uint(i))
	default:
		return usagef("未知的 select 子命令 %q", args[0])
	}

	if err := c.saveState(st); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, st.String())
	return nil
}

func (c *cli) stateCmd(args []string) error {
	if hasHelp(args) {
		printUsage(c.stdout)
		return nil
	}
	if len(args) != 0 {
		return usagef("state 不接受参数")
	}
	st, err := c.loadState()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, st.String())
	return nil
}

func (c *cli) configCmd(args []string) error {
	if hasHelp(args) {
		printUsage(c.stdout)
		return nil
	}
	if len(args) != 0 {
		return usagef("config 不接受参数")
	}
	eff, err := c.effective()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, eff.String())
	c.printFree("cache free space", eff.CacheDirectory)
	c.printFree("base free space", eff.BaseDirectory)
	return nil
}

func (c *cli) printFree(label, path string) {
	free, err := diskx.Free(path)
	if err != nil {
		fmt.Fprintf(c.stdout, "%-20s unknown (%v)\n", label+":", err)
		return
	}
	fmt.Fprintf(c.stdout, "%-20s %s\n", label+":", diskx.FormatBytes(free))
}

func printSelectUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  dlist select list <name>|none
  dlist select target <index>

说明：
  选择 list 会清除当前 target；"none" 取消选择。
  select target 要求已选择 list，且下标在范围内。
`)
}
