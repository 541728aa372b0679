package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/pkg/tracer"
)

// ScriptConfigRepository 剧本配置仓储实现
type ScriptConfigRepository struct {
	client *Client
}

// NewScriptConfigRepository 创建剧本配置仓储
func NewScriptConfigRepository(client *Client) *ScriptConfigRepository {
	return &ScriptConfigRepository{client: client}
}

// Create 创建配置
func (r *ScriptConfigRepository) Create(ctx context.Context, cfg *entity.ScriptConfig) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptConfigRepository.Create")
	defer span.End()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(cfg).Error; err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("failed to create script config: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取配置
func (r *ScriptConfigRepository) GetByID(ctx context.Context, id string) (*entity.ScriptConfig, error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptConfigRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var cfg entity.ScriptConfig
	if err := db.First(&cfg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to get script config: %w", err)
	}
	return &cfg, nil
}
