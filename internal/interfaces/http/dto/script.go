package dto

import (
	"encoding/json"
	"time"

	"z-script-ai-api/internal/domain/entity"
)

// CreateScriptConfigRequest 创建剧本配置请求
type CreateScriptConfigRequest struct {
	Title       string          `json:"title" binding:"required,max=200"`
	PlayerCount int             `json:"playerCount" binding:"required,min=1,max=20"`
	Theme       string          `json:"theme" binding:"max=100"`
	Era         string          `json:"era" binding:"max=100"`
	GameType    string          `json:"gameType" binding:"max=50"`
	Tone        string          `json:"tone" binding:"max=100"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// ToScriptConfigEntity 转为实体
func (r *CreateScriptConfigRequest) ToScriptConfigEntity(id string) *entity.ScriptConfig {
	cfg := entity.NewScriptConfig(r.Title, r.PlayerCount, r.Theme, r.Era, r.GameType)
	cfg.ID = id
	cfg.Tone = r.Tone
	cfg.Extra = r.Extra
	return cfg
}

// ScriptConfigResponse 剧本配置
type ScriptConfigResponse struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	PlayerCount   int             `json:"playerCount"`
	TotalChapters int             `json:"totalChapters"`
	Theme         string          `json:"theme"`
	Era           string          `json:"era"`
	GameType      string          `json:"gameType"`
	Tone          string          `json:"tone,omitempty"`
	Extra         json.RawMessage `json:"extra,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ToScriptConfigResponse 实体转响应
func ToScriptConfigResponse(c *entity.ScriptConfig) *ScriptConfigResponse {
	return &ScriptConfigResponse{
		ID:            c.ID,
		Title:         c.Title,
		PlayerCount:   c.PlayerCount,
		TotalChapters: entity.TotalChaptersFor(c.PlayerCount),
		Theme:         c.Theme,
		Era:           c.Era,
		GameType:      c.GameType,
		Tone:          c.Tone,
		Extra:         c.Extra,
		CreatedAt:     c.CreatedAt,
	}
}

// ScriptResponse 组装完成的剧本
type ScriptResponse struct {
	ID              string                  `json:"id"`
	SessionID       string                  `json:"sessionId"`
	ConfigID        string                  `json:"configId"`
	Title           string                  `json:"title"`
	DMHandbook      json.RawMessage         `json:"dmHandbook"`
	PlayerHandbooks []entity.PlayerHandbook `json:"playerHandbooks"`
	Materials       []json.RawMessage       `json:"materials"`
	BranchStructure json.RawMessage         `json:"branchStructure"`
	CharacterIDs    []string                `json:"characterIds"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// ToScriptResponse 实体转响应
func ToScriptResponse(s *entity.Script) *ScriptResponse {
	return &ScriptResponse{
		ID:              s.ID,
		SessionID:       s.SessionID,
		ConfigID:        s.ConfigID,
		Title:           s.Title,
		DMHandbook:      s.DMHandbook,
		PlayerHandbooks: s.PlayerHandbooks,
		Materials:       s.Materials,
		BranchStructure: s.BranchStructure,
		CharacterIDs:    s.CharacterIDs(),
		CreatedAt:       s.CreatedAt,
	}
}
