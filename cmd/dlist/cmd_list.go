package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/John-Robertt/dlist/internal/lists"
	"github.com/John-Robertt/dlist/internal/store"
)

func (c *cli) listCmd(args []string) error {
	if len(args) == 0 {
		return usagef("缺少 list 子命令")
	}
	if hasHelp(args) || isHelp(args[0]) {
		printListUsage(c.stdout)
		return nil
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "create", "c", "new":
		return c.listCreate(rest)
	case "delete", "d", "rm":
		return c.listDelete(rest)
	case "info", "i", "show":
		return c.listInfo(rest)
	case "ls", "l", "list":
		return c.listLs(rest)
	case "update", "u":
		return c.listUpdate(rest)
	default:
		return usagef("未知的 list 子命令 %q", sub)
	}
}

func (c *cli) listCreate(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.value("desc", "-d", "--description"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 1 {
		return usagef("list create 需要且仅需要一个名称")
	}
	desc, _ := pa.get("desc")

	l, err := c.repo().Create(pa.pos[0], desc)
	if err != nil {
		return err
	}
	defer l.Close()
	fmt.Fprintf(c.stdout, "已创建 list %s\n", l.Name())
	return nil
}

func (c *cli) listDelete(args []string) error {
	pa, err := parseArgs(args, flagSpec{})
	if err != nil {
		return err
	}
	if len(pa.pos) != 1 {
		return usagef("list delete 需要且仅需要一个名称")
	}
	name := pa.pos[0]
	if err := c.repo().Delete(name); err != nil {
		return err
	}

	st, err := c.loadState()
	if err != nil {
		return err
	}
	if cur, ok := st.List(); ok && cur == name {
		st.ClearList()
		if err := c.saveState(st); err != nil {
			return fmt.Errorf("list 已删除，但清除当前选择失败：%w", err)
		}
	}
	fmt.Fprintf(c.stdout, "已删除 list %s\n", name)
	return nil
}

func (c *cli) listInfo(args []string) error {
	pa, err := parseArgs(args, flagSpec{})
	if err != nil {
		return err
	}
	if len(pa.pos) > 1 {
		return usagef("list info 最多接受一个名称")
	}
	explicit := ""
	if len(pa.pos) == 1 {
		explicit = pa.pos[0]
	}
	name, err := c.resolveList(explicit)
	if err != nil {
		return err
	}

	l, err := c.openList(name)
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Fprintf(c.stdout, "name:    %s\n", l.Name())
	fmt.Fprintf(c.stdout, "comment: %s\n", l.Comment())
	fmt.Fprintf(c.stdout, "targets: %d\n", l.Len())
	return nil
}

func (c *cli) listLs(args []string) error {
	pa, err := parseArgs(args, flagSpec{})
	if err != nil {
		return err
	}
	if len(pa.pos) != 0 {
		return usagef("list ls 不接受位置参数")
	}
	names, err := c.repo().Names()
	if err != nil {
		return err
	}
	st, err := c.loadState()
	if err != nil {
		return err
	}
	cur, _ := st.List()

	if len(names) == 0 {
		fmt.Fprintln(c.stdout, "（没有 list）")
		return nil
	}
	for _, n := range names {
		mark := " "
		if n == cur {
			mark = "*"
		}
		fmt.Fprintf(c.stdout, "%s %s\n", mark, n)
	}
	return nil
}

func (c *cli) listUpdate(args []string) error {
	pa, err := parseArgs(args, flagSpec{}.value("desc", "-d", "--description"))
	if err != nil {
		return err
	}
	if len(pa.pos) != 1 {
		return usagef("list update 需要且仅需要一个名称")
	}
	desc, ok := pa.get("desc")
	if !ok {
		return usagef("list update 需要 -d/--description")
	}

	l, err := c.openList(pa.pos[0])
	if err != nil {
		return err
	}
	defer l.Close()

	l.SetComment(desc)
	if err := l.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "已更新 list %s\n", l.Name())
	return nil
}

// openList 打开 list；锁冲突给出更明确的提示。
func (c *cli) openList(name string) (*lists.List, error) {
	l, err := c.repo().Open(name)
	if errors.Is(err, store.ErrLocked) {
		return nil, fmt.Errorf("list %s 正被另一个进程使用：%w", name, err)
	}
	return l, err
}

func printListUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  dlist list create|c|new <name> [-d DESC]
  dlist list delete|d|rm <name>
  dlist list info|i|show [name]
  dlist list ls|l
  dlist list update|u <name> -d DESC

说明：
  name 需匹配 ^[a-z](_?[a-z0-9])+$，"none" 为保留字。
  info 省略 name 时使用当前选择的 list。
  删除当前选择的 list 会同时清除选择。
`)
}
