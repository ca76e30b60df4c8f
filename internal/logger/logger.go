// Package logger 是进程级的 slog 日志门面：统一级别、输出与格式，
// 并提供携带 run/symbol 等固定字段的 Scoped 日志器。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	levelVar slog.LevelVar

	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	format            = FormatText
	handler slog.Handler
)

func init() {
	levelVar.Set(slog.LevelInfo)
	rebuild()
}

// rebuild 需在持有写锁或 init 时调用。
func rebuild() {
	opts := &slog.HandlerOptions{Level: &levelVar}
	if format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
		return
	}
	handler = slog.NewTextHandler(out, opts)
}

func current() slog.Handler {
	mu.RLock()
	defer mu.RUnlock()
	return handler
}

// SetOutput 替换输出；nil 回到 stdout。已创建的 Scoped 日志器随之切换。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	out = w
	rebuild()
	mu.Unlock()
}

// SetFormat 切换 text / json 输出，未知值按 text 处理。
func SetFormat(f string) {
	f = strings.ToLower(strings.TrimSpace(f))
	if f != FormatJSON {
		f = FormatText
	}
	mu.Lock()
	format = f
	rebuild()
	mu.Unlock()
}

// ParseLevel 解析级别名，空串为 info。
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// SetLevel 设置全局级别，无法识别时回落到 info。
func SetLevel(level string) {
	lvl, _ := ParseLevel(level)
	levelVar.Set(lvl)
}

// Enabled 报告该级别当前是否输出，热路径可据此跳过昂贵的参数准备。
func Enabled(level slog.Level) bool {
	return level >= levelVar.Level()
}

// emit 在级别关闭时不做格式化。
func emit(h slog.Handler, attrs []slog.Attr, level slog.Level, format string, v []any) {
	ctx := context.Background()
	if !h.Enabled(ctx, level) {
		return
	}
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}
	slog.New(h).Log(ctx, level, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { emit(current(), nil, slog.LevelDebug, format, v) }
func Infof(format string, v ...any)  { emit(current(), nil, slog.LevelInfo, format, v) }
func Warnf(format string, v ...any)  { emit(current(), nil, slog.LevelWarn, format, v) }
func Errorf(format string, v ...any) { emit(current(), nil, slog.LevelError, format, v) }

// InfoBlock 逐行输出多行文本（启动摘要等）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}

// Scoped 携带固定字段（run、symbol 等），每次输出时使用当时的全局 handler。
type Scoped struct {
	attrs []slog.Attr
}

// With 以 key/value 对创建 Scoped 日志器。
func With(args ...any) *Scoped {
	return (&Scoped{}).With(args...)
}

func (s *Scoped) With(args ...any) *Scoped {
	attrs := append([]slog.Attr(nil), s.attrs...)
	for len(args) > 0 {
		switch key := args[0].(type) {
		case slog.Attr:
			attrs = append(attrs, key)
			args = args[1:]
		case string:
			if len(args) < 2 {
				attrs = append(attrs, slog.String("!BADKEY", key))
				args = nil
				continue
			}
			attrs = append(attrs, slog.Any(key, args[1]))
			args = args[2:]
		default:
			attrs = append(attrs, slog.Any("!BADKEY", key))
			args = args[1:]
		}
	}
	return &Scoped{attrs: attrs}
}

func (s *Scoped) Debugf(format string, v ...any) { emit(current(), s.attrs, slog.LevelDebug, format, v) }
func (s *Scoped) Infof(format string, v ...any)  { emit(current(), s.attrs, slog.LevelInfo, format, v) }
func (s *Scoped) Warnf(format string, v ...any)  { emit(current(), s.attrs, slog.LevelWarn, format, v) }
func (s *Scoped) Errorf(format string, v ...any) { emit(current(), s.attrs, slog.LevelError, format, v) }
