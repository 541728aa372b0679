package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/pkg/logger"
)

const scriptConfigKeyPrefix = "script_config:"

// ReadThroughCache 配置缓存所需的最小能力
type ReadThroughCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// CachedScriptConfigRepository 带读穿缓存的剧本配置仓储
type CachedScriptConfigRepository struct {
	next  repository.ScriptConfigRepository
	cache ReadThroughCache
	ttl   time.Duration
}

// NewCachedScriptConfigRepository 包装底层仓储
func NewCachedScriptConfigRepository(next repository.ScriptConfigRepository, cache ReadThroughCache, ttl time.Duration) *CachedScriptConfigRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedScriptConfigRepository{next: next, cache: cache, ttl: ttl}
}

// ScriptConfigKey 缓存键
func ScriptConfigKey(id string) string {
	return scriptConfigKeyPrefix + id
}

// Create 写库后清除旧缓存
func (r *CachedScriptConfigRepository) Create(ctx context.Context, cfg *entity.ScriptConfig) error {
	if err := r.next.Create(ctx, cfg); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, ScriptConfigKey(cfg.ID)); err != nil {
		logger.Warn(ctx, "failed to invalidate script config cache", "config_id", cfg.ID, "error", err.Error())
	}
	return nil
}

// GetByID 优先读缓存；缓存异常时降级直接读库
func (r *CachedScriptConfigRepository) GetByID(ctx context.Context, id string) (*entity.ScriptConfig, error) {
	raw, err := r.cache.GetOrLoadSafe(ctx, ScriptConfigKey(id), r.ttl, func(ctx context.Context) (any, error) {
		cfg, err := r.next.GetByID(ctx, id)
		if err != nil || cfg == nil {
			return nil, err
		}
		return cfg, nil
	})
	if err != nil {
		logger.Warn(ctx, "script config cache unavailable, reading from database", "config_id", id, "error", err.Error())
		return r.next.GetByID(ctx, id)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var cfg entity.ScriptConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode cached script config: %w", err)
	}
	return &cfg, nil
}
