// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/interfaces/http/dto"
	"z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
)

// respondError 按错误链中的 AppError 返回；未分类错误统一为 500
func respondError(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()
	if !errors.IsAppError(err) {
		logger.Error(ctx, msg, err)
		dto.InternalError(c, msg)
		return
	}
	appErr := errors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(ctx, msg, err, "code", appErr.Code)
	} else {
		logger.Warn(ctx, msg, "code", appErr.Code, "error", appErr.Error())
	}
	dto.AppError(c, appErr)
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}
