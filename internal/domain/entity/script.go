package entity

import (
	"encoding/json"
	"time"
)

// PlayerHandbook 玩家手册
type PlayerHandbook struct {
	Index       int             `json:"index"`
	CharacterID string          `json:"characterId"`
	Content     json.RawMessage `json:"content"`
}

// Script 组装完成的最终剧本
type Script struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"sessionId"`
	ConfigID        string            `json:"configId"`
	Title           string            `json:"title"`
	DMHandbook      json.RawMessage   `json:"dmHandbook"`
	PlayerHandbooks []PlayerHandbook  `json:"playerHandbooks"`
	Materials       []json.RawMessage `json:"materials"`
	BranchStructure json.RawMessage   `json:"branchStructure"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// CharacterIDs 玩家角色 ID 列表
func (s *Script) CharacterIDs() []string {
	out := make([]string, 0, len(s.PlayerHandbooks))
	for _, p := range s.PlayerHandbooks {
		out = append(out, p.CharacterID)
	}
	return out
}
