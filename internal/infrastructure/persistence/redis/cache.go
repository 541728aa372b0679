package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

// absentMarker 记录“数据源中不存在”，避免不存在的键反复穿透到数据库
var absentMarker = []byte("null")

// absentTTLDivisor 不存在标记的 TTL 为正常 TTL 的 1/absentTTLDivisor
const absentTTLDivisor = 10

// Cache JSON 读穿缓存；name 只用于指标标签
type Cache struct {
	client *Client
	name   string
	group  singleflight.Group
}

// NewCache 创建缓存
func NewCache(client *Client, name string) *Cache {
	return &Cache{client: client, name: name}
}

func (c *Cache) observe(result string) {
	metrics.CacheRequests.WithLabelValues(c.name, result).Inc()
}

// GetOrLoadSafe 命中直接返回；未命中时同一个键只有一个 loader 在运行，结果写回缓存。
// loader 返回 nil 表示数据不存在，此时返回 nil 字节并短暂缓存不存在标记。
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "redis.Cache.GetOrLoadSafe", trace.WithAttributes(
		attribute.String("cache.name", c.name),
		attribute.String("cache.key", key),
	))
	defer span.End()

	cached, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.observe("hit")
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return present(cached), nil
	case !IsNil(err):
		c.observe("error")
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	c.observe("miss")
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.load(ctx, key, ttl, loader)
	})
	span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("cache.shared", shared))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return present(v.([]byte)), nil
}

func (c *Cache) load(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error) {
	data, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	raw := absentMarker
	expire := ttl / absentTTLDivisor
	if data != nil {
		if raw, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("failed to encode cache value: %w", err)
		}
		expire = ttl
	}
	// 写缓存失败不影响本次读取
	if err := c.client.rdb.Set(ctx, key, raw, expire).Err(); err != nil {
		c.observe("error")
	}
	return raw, nil
}

func present(raw []byte) []byte {
	if bytes.Equal(raw, absentMarker) {
		return nil
	}
	return raw
}

// Delete 删除缓存键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "redis.Cache.Delete", trace.WithAttributes(
		attribute.String("cache.name", c.name),
		attribute.Int("cache.key_count", len(keys)),
	))
	defer span.End()

	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}
