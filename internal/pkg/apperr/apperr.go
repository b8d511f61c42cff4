// Package apperr 定义可直接映射到 API 响应的错误类型。
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError 表示调用方输入不合法。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FromConfig 将配置校验错误包装为 ValidationError，字段名取错误信息的首个词。
func FromConfig(err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	msg := err.Error()
	field, rest, ok := strings.Cut(msg, " ")
	if !ok || !strings.Contains(field, ".") {
		return &ValidationError{Message: msg}
	}
	return &ValidationError{Field: field, Message: rest}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
