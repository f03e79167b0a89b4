// Package log 提供 go-tcppubsub 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，提供简洁的日志 API。
// 除标准级别外额外定义 DebugVerbose 级别，用于逐缓冲区的高频日志。
//
// 库的所有组件通过 Func 类型的日志接收器输出日志；默认接收器
// 将日志转发给 slog.Default()，宿主程序也可以在构造 Executor 时
// 注入自定义接收器，把日志接入自己的日志系统。
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 日志级别常量（从 slog 导出，方便使用）
//
// LevelDebugVerbose 低于 slog.LevelDebug，默认配置下不输出。
const (
	LevelDebugVerbose = slog.Level(-8)
	LevelDebug        = slog.LevelDebug
	LevelInfo         = slog.LevelInfo
	LevelError        = slog.LevelError
)

// Func 日志接收器
//
// 库内所有日志最终都经过一个 Func。msg 为已格式化的完整日志行，
// 包含组件名与键值对上下文。
type Func func(level slog.Level, msg string)

// 默认 logger
var defaultLogger = slog.Default()

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}

// New 创建新的 logger
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLevel 设置日志级别
//
// 重新创建默认 logger，使用指定的日志级别。
// 传入 LevelDebugVerbose 可以打开逐缓冲区的高频日志。
func SetLevel(level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(defaultLogger)
}

// DefaultSink 返回转发到 slog.Default() 的日志接收器
func DefaultSink() Func {
	return func(level slog.Level, msg string) {
		slog.Default().Log(context.Background(), level, msg)
	}
}

// LevelName 返回级别的显示名称
func LevelName(level slog.Level) string {
	switch {
	case level <= LevelDebugVerbose:
		return "DEBUG_VERBOSE"
	case level <= LevelDebug:
		return "DEBUG"
	case level < LevelError:
		return "INFO"
	default:
		return "ERROR"
	}
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 绑定组件名与接收器的 logger
//
// 每次日志调用时把键值对参数格式化进消息，再交给接收器。
// sink 为 nil 时使用 DefaultSink，因此支持在运行时切换默认输出目标。
//
// 使用方式：
//
//	var myLog = log.Logger("publisher")
//	myLog.Info("订阅者已连接", "remote", addr)
type LazyLogger struct {
	component string
	sink      Func
}

// Logger 返回带组件名的 LazyLogger，使用默认接收器
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// LoggerWithSink 返回带组件名的 LazyLogger，日志交给指定接收器
func LoggerWithSink(component string, sink Func) *LazyLogger {
	return &LazyLogger{component: component, sink: sink}
}

// Sink 返回 logger 当前使用的接收器
func (l *LazyLogger) Sink() Func {
	if l.sink != nil {
		return l.sink
	}
	return DefaultSink()
}

// DebugVerbose 输出 DebugVerbose 级别日志
func (l *LazyLogger) DebugVerbose(msg string, args ...any) {
	l.emit(LevelDebugVerbose, msg, args)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.emit(LevelDebug, msg, args)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.emit(LevelInfo, msg, args)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.emit(LevelError, msg, args)
}

func (l *LazyLogger) emit(level slog.Level, msg string, args []any) {
	var b strings.Builder
	b.WriteString(l.component)
	b.WriteString(": ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.Sink()(level, b.String())
}
