package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/pkg/tracer"
)

// scriptRow scripts 表的行结构；正文整体存为 jsonb
type scriptRow struct {
	ID           string          `gorm:"primaryKey;type:uuid"`
	SessionID    string          `gorm:"index"`
	ConfigID     string          `gorm:"index"`
	Title        string
	CharacterIDs pq.StringArray  `gorm:"type:text[]"`
	Body         json.RawMessage `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

func (scriptRow) TableName() string {
	return "scripts"
}

type scriptBody struct {
	DMHandbook      json.RawMessage         `json:"dmHandbook"`
	PlayerHandbooks []entity.PlayerHandbook `json:"playerHandbooks"`
	Materials       []json.RawMessage       `json:"materials"`
	BranchStructure json.RawMessage         `json:"branchStructure"`
}

func toScriptRow(s *entity.Script) (*scriptRow, error) {
	body, err := json.Marshal(scriptBody{
		DMHandbook:      s.DMHandbook,
		PlayerHandbooks: s.PlayerHandbooks,
		Materials:       s.Materials,
		BranchStructure: s.BranchStructure,
	})
	if err != nil {
		return nil, err
	}
	return &scriptRow{
		ID:           s.ID,
		SessionID:    s.SessionID,
		ConfigID:     s.ConfigID,
		Title:        s.Title,
		CharacterIDs: pq.StringArray(s.CharacterIDs()),
		Body:         body,
		CreatedAt:    s.CreatedAt,
	}, nil
}

func (row *scriptRow) toEntity() (*entity.Script, error) {
	var body scriptBody
	if len(row.Body) > 0 {
		if err := json.Unmarshal(row.Body, &body); err != nil {
			return nil, err
		}
	}
	return &entity.Script{
		ID:              row.ID,
		SessionID:       row.SessionID,
		ConfigID:        row.ConfigID,
		Title:           row.Title,
		DMHandbook:      body.DMHandbook,
		PlayerHandbooks: body.PlayerHandbooks,
		Materials:       body.Materials,
		BranchStructure: body.BranchStructure,
		CreatedAt:       row.CreatedAt,
	}, nil
}

// ScriptRepository 最终剧本仓储实现
type ScriptRepository struct {
	client *Client
}

// NewScriptRepository 创建剧本仓储
func NewScriptRepository(client *Client) *ScriptRepository {
	return &ScriptRepository{client: client}
}

// Store 保存剧本
func (r *ScriptRepository) Store(ctx context.Context, script *entity.Script) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.Store")
	defer span.End()

	if script.ID == "" {
		script.ID = uuid.NewString()
	}
	if script.CreatedAt.IsZero() {
		script.CreatedAt = time.Now().UTC()
	}
	row, err := toScriptRow(script)
	if err != nil {
		return fmt.Errorf("failed to encode script: %w", err)
	}

	db := getDB(ctx, r.client.db)
	if err := db.Create(row).Error; err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("failed to store script: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取剧本
func (r *ScriptRepository) GetByID(ctx context.Context, id string) (*entity.Script, error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var row scriptRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	script, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	return script, nil
}
