package repository

import (
	"context"

	"z-script-ai-api/internal/domain/entity"
)

// SessionFilter 会话过滤条件
type SessionFilter struct {
	ConfigID string
	Mode     entity.SessionMode
	// States 非空时按状态集合过滤
	States []entity.SessionState
}

// SessionRepository 创作会话仓储接口
//
// 载荷由编排层编码，仓储只负责按原样存取。
type SessionRepository interface {
	// Insert 新建会话
	Insert(ctx context.Context, record *entity.SessionRecord) error

	// GetByID 根据 ID 获取会话，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.SessionRecord, error)

	// List 获取会话列表（按更新时间倒序）
	List(ctx context.Context, filter *SessionFilter, pagination Pagination) (*PagedResult[*entity.SessionRecord], error)

	// Update 覆盖写入会话
	Update(ctx context.Context, record *entity.SessionRecord) error
}
