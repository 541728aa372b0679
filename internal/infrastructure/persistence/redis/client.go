// Package redis 剧本配置缓存、API 限流与任务队列共用的 Redis 客户端
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/pkg/tracer"
)

const defaultPingTimeout = 5 * time.Second

// Client Redis 客户端
type Client struct {
	rdb *redis.Client
}

func optionsFrom(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// NewClient 创建客户端并确认连通
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(optionsFrom(cfg))

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", rdb.Options().Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Redis 底层客户端，供 Stream 生产者/消费者使用
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close 关闭连接池
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 就绪检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// IsNil 键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
