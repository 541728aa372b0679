package repository

import (
	"context"

	"z-script-ai-api/internal/domain/entity"
)

// ScriptConfigRepository 剧本配置仓储接口
type ScriptConfigRepository interface {
	// Create 创建配置
	Create(ctx context.Context, cfg *entity.ScriptConfig) error

	// GetByID 根据 ID 获取配置，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.ScriptConfig, error)
}
