package main

import (
	"fmt"
	"strings"
)

// usageError 表示参数错误（退出码 2，并打印对应命令的用法）。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

type flagDef struct {
	name       string
	takesValue bool
	repeatable bool
}

// flagSpec 描述一个命令接受的 flag：拼写 -> 定义。
type flagSpec map[string]flagDef

func (s flagSpec) value(name string, spellings ...string) flagSpec {
	for _, sp := range spellings {
		s[sp] = flagDef{name: name, takesValue: true}
	}
	return s
}

func (s flagSpec) multi(name string, spellings ...string) flagSpec {
	for _, sp := range spellings {
		s[sp] = flagDef{name: name, takesValue: true, repeatable: true}
	}
	return s
}

func (s flagSpec) boolean(name string, spellings ...string) flagSpec {
	for _, sp := range spellings {
		s[sp] = flagDef{name: name}
	}
	return s
}

// parsedArgs 是 parseArgs 的结果。
type parsedArgs struct {
	values map[string][]string
	pos    []string
}

func (p parsedArgs) get(name string) (string, bool) {
	v, ok := p.values[name]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[len(v)-1], true
}

func (p parsedArgs) all(name string) []string { return p.values[name] }

func (p parsedArgs) has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// parseArgs 解析 "--flag value"、"--flag=value"、布尔 flag 与位置参数；"--" 之后全部视为位置参数。
func parseArgs(args []string, spec flagSpec) (parsedArgs, error) {
	out := parsedArgs{values: map[string][]string{}}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			out.pos = append(out.pos, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			out.pos = append(out.pos, a)
			continue
		}

		key, val, hasVal := strings.Cut(a, "=")
		fs, ok := spec[key]
		if !ok {
			return parsedArgs{}, usagef("未知参数 %q", a)
		}
		if !fs.takesValue {
			if hasVal {
				return parsedArgs{}, usagef("%s 不接受值", key)
			}
			out.values[fs.name] = append(out.values[fs.name], "true")
			continue
		}
		if !hasVal {
			if i+1 >= len(args) {
				return parsedArgs{}, usagef("%s 需要一个值", key)
			}
			i++
			val = args[i]
		}
		if !fs.repeatable && len(out.values[fs.name]) > 0 {
			return parsedArgs{}, usagef("重复的参数 %s", key)
		}
		out.values[fs.name] = append(out.values[fs.name], val)
	}
	return out, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func hasHelp(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if isHelp(a) && a != "help" {
			return true
		}
	}
	return false
}
