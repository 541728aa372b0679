package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/pkg/logger"
)

// TraceIDHeader 追踪 ID 响应头
const TraceIDHeader = "X-Trace-ID"

const sessionRoutePrefix = "/api/v1/sessions/:id"

// Tracing 返回 otelgin 与 span 上下文注入两个中间件，按顺序注册
func Tracing(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), spanContext}
}

// spanContext 把 trace_id/span_id 写入 Gin Context、日志 Context 与响应头；
// 会话路由额外在 span 与日志上标记 session_id
func spanContext(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		c.Set("span_id", sc.SpanID().String())
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
		c.Header(TraceIDHeader, traceID)
	}

	if id := sessionParam(c); id != "" {
		span.SetAttributes(attribute.String("session_id", id))
		ctx = logger.WithSession(ctx, id)
	}
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func sessionParam(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), sessionRoutePrefix) {
		return ""
	}
	return c.Param("id")
}
