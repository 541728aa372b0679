package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/infrastructure/persistence/redis"
	"z-script-ai-api/internal/interfaces/http/dto"
	"z-script-ai-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerSecond 每个客户端 IP 每秒允许的请求数
	RequestsPerSecond int
}

// RateLimiter 限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按客户端 IP 的滑动窗口限流
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}

	return func(c *gin.Context) {
		key := redis.BuildRateLimitKey("api", c.ClientIP())
		allowed, err := limiter.Allow(c.Request.Context(), key, cfg.RequestsPerSecond, time.Second)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			dto.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
