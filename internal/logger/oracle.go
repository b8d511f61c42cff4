package logger

import (
	"io"
	"log"
	"strings"
	"sync"

	"tradepilot/internal/pkg/jsonutil"
)

var (
	oracleMu   sync.Mutex
	oracleLog  *log.Logger
	oracleDump bool
)

// SetOracleWriter 设置分析 oracle 原始请求/响应的落盘目标，nil 表示关闭。
func SetOracleWriter(w io.Writer) {
	oracleMu.Lock()
	defer oracleMu.Unlock()
	if w == nil {
		oracleLog = nil
		return
	}
	oracleLog = log.New(w, "", log.LstdFlags)
}

func EnableOracleDump(enabled bool) {
	oracleMu.Lock()
	oracleDump = enabled
	oracleMu.Unlock()
}

// LogOracleExchange 记录一次 oracle 调用：kind 为 request/response，symbol 为标的。
func LogOracleExchange(kind, provider, symbol, body string) {
	oracleMu.Lock()
	l := oracleLog
	enabled := oracleDump
	oracleMu.Unlock()
	if l == nil || !enabled {
		return
	}
	var b strings.Builder
	b.WriteString("[ORACLE][")
	b.WriteString(kind)
	b.WriteString("]")
	if provider != "" {
		b.WriteString("[" + provider + "]")
	}
	if symbol != "" {
		b.WriteString("[" + symbol + "]")
	}
	b.WriteString("\n")
	b.WriteString(jsonutil.Pretty(body))
	b.WriteString("\n=====\n")
	l.Print(b.String())
}
