package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/interfaces/http/dto"
	"z-script-ai-api/pkg/logger"
)

// Recovery 捕获 handler 中的 panic；响应已开始写出时只中止后续 handler
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(logger.WithSession(c.Request.Context(), sessionParam(c)), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"method", c.Request.Method,
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			dto.InternalError(c, "internal server error")
		}()

		c.Next()
	}
}
