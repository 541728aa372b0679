package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/pkg/tracer"
)

// SessionRepository 创作会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Insert 新建会话
func (r *SessionRepository) Insert(ctx context.Context, record *entity.SessionRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Insert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(record).Error; err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.SessionRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var record entity.SessionRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &record, nil
}

// List 获取会话列表
func (r *SessionRepository) List(ctx context.Context, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.SessionRecord], error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.SessionRecord{})
	if filter != nil {
		if filter.ConfigID != "" {
			query = query.Where("config_id = ?", filter.ConfigID)
		}
		if filter.Mode != "" {
			query = query.Where("mode = ?", filter.Mode)
		}
		if len(filter.States) > 0 {
			states := make([]string, 0, len(filter.States))
			for _, s := range filter.States {
				states = append(states, string(s))
			}
			query = query.Where("state = ANY(?)", pq.Array(states))
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	var records []*entity.SessionRecord
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&records).Error; err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return repository.NewPagedResult(records, total, pagination), nil
}

// Update 覆盖写入会话
func (r *SessionRepository) Update(ctx context.Context, record *entity.SessionRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	record.UpdatedAt = time.Now().UTC()
	res := db.Model(&entity.SessionRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"config_id":  record.ConfigID,
			"mode":       record.Mode,
			"state":      record.State,
			"payload":    record.Payload,
			"updated_at": record.UpdatedAt,
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update session %s: %w", record.ID, gorm.ErrRecordNotFound)
	}
	return nil
}
