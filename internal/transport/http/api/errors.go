package api

import (
	"errors"
	"net/http"

	"tradepilot/internal/agent"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/store"

	"github.com/gin-gonic/gin"
)

// statusFor 把领域错误映射为 HTTP 状态码。ErrAlreadyClosed 包裹了 ErrNotFound，需先判断。
func statusFor(err error) int {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrAlreadyClosed), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Errorf("[api] %s failed ip=%s err=%v", op, c.ClientIP(), err)
	} else {
		logger.Warnf("[api] %s rejected ip=%s status=%d err=%v", op, c.ClientIP(), code, err)
	}
	body := gin.H{"error": err.Error()}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	c.JSON(code, body)
}
