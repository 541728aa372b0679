package entity

import (
	"encoding/json"
	"time"
)

// ScriptConfig 剧本配置（创作会话的输入）
type ScriptConfig struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string          `json:"title"`
	PlayerCount int             `json:"player_count"`
	Theme       string          `json:"theme"`
	Era         string          `json:"era"`
	GameType    string          `json:"game_type"`
	Tone        string          `json:"tone,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName GORM 表名
func (ScriptConfig) TableName() string {
	return "script_configs"
}

// NewScriptConfig 创建剧本配置
func NewScriptConfig(title string, playerCount int, theme, era, gameType string) *ScriptConfig {
	now := time.Now().UTC()
	return &ScriptConfig{
		Title:       title,
		PlayerCount: playerCount,
		Theme:       theme,
		Era:         era,
		GameType:    gameType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ExtraMap 解析扩展字段，解析失败时返回空
func (c *ScriptConfig) ExtraMap() map[string]any {
	if c == nil || len(c.Extra) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(c.Extra, &out); err != nil {
		return nil
	}
	return out
}
