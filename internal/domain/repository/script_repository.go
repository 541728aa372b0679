package repository

import (
	"context"

	"z-script-ai-api/internal/domain/entity"
)

// ScriptRepository 最终剧本仓储接口
type ScriptRepository interface {
	// Store 保存剧本
	Store(ctx context.Context, script *entity.Script) error

	// GetByID 根据 ID 获取剧本，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Script, error)
}
