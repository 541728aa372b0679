package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/pkg/metrics"
)

const unmatchedRoute = "unknown"

// Metrics 按路由模板统计请求量、耗时、并发数与响应大小
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		inFlight := metrics.HTTPRequestsInFlight.WithLabelValues(method, route)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
		if n := c.Writer.Size(); n > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}
