package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Pretty 缩进合法的 JSON 并保留键顺序，非 JSON 原样返回（去首尾空白）。
func Pretty(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return trimmed
	}
	return buf.String()
}
