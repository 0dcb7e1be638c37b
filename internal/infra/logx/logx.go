// Package logx 构造诊断日志用的 zerolog.Logger。
//
// 诊断日志只写 stderr；面向用户的结果输出（逐条结果、汇总、JSON 报告）不走日志。
package logx

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New 返回写到 w 的 logger：verbose 时为 debug 级别，否则 info。
// color 控制 ConsoleWriter 是否输出 ANSI 颜色（非 TTY 时应关闭）。
func New(w io.Writer, verbose, color bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !color,
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
