package entity

import (
	"encoding/json"
	"time"
)

// SessionRecord 会话的持久化形态：检索列 + 编排层编码后的不透明载荷
type SessionRecord struct {
	ID        string          `json:"id" gorm:"primaryKey;type:uuid"`
	ConfigID  string          `json:"config_id" gorm:"index"`
	Mode      SessionMode     `json:"mode"`
	State     SessionState    `json:"state" gorm:"index"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName GORM 表名
func (SessionRecord) TableName() string {
	return "authoring_sessions"
}
