package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	levelVar slog.LevelVar
	current  atomic.Pointer[slog.Logger]

	sinkMu sync.Mutex
	sink   io.Writer = os.Stdout
	asJSON bool
)

func init() {
	levelVar.Set(slog.LevelInfo)
	rebuild()
}

// rebuild 按当前输出与格式重建 handler，调用方持有 sinkMu 或处于 init。
func rebuild() {
	opts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(sink, opts)
	} else {
		h = slog.NewTextHandler(sink, opts)
	}
	current.Store(slog.New(h))
}

// SetOutput 替换日志输出目标（例如 stdout + 文件），nil 回退 stdout。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	rebuild()
}

// SetFormat 接受 text/json，未知值按 text 处理。
func SetFormat(format string) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	asJSON = strings.EqualFold(strings.TrimSpace(format), "json")
	rebuild()
}

// SetLevel 接受 debug/info/warn/error，未知值回退为 info。
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func Level() slog.Level { return levelVar.Level() }

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logf(slog.LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logf(slog.LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

func logf(level slog.Level, format string, v ...any) {
	ctx := context.Background()
	l := current.Load()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, fmt.Sprintf(format, v...))
}
