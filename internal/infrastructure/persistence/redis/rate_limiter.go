package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"z-script-ai-api/pkg/tracer"
)

// slidingWindowScript 在一次往返内完成清理、计数与记录
//
// KEYS[1] 限流键；ARGV: now_ms, window_ms, limit, member。返回 1 表示放行。
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window * 2)
return 1
`)

// RateLimiter 基于 ZSET 的滑动窗口限流器
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow 窗口内请求数未达 limit 时放行并记录本次请求
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	defer span.End()
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
	)

	now := time.Now().UnixMilli()
	// member 需唯一，同一毫秒内的多次请求不能互相覆盖
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	allowed, err := slidingWindowScript.Run(ctx, l.client.rdb, []string{key},
		now, window.Milliseconds(), limit, member).Int()
	if err != nil {
		tracer.RecordError(span, err)
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed == 1))
	return allowed == 1, nil
}

// BuildRateLimitKey 构建限流键
func BuildRateLimitKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}
