package model

import (
	"encoding/json"
	"time"
)

// PlanCharacter 策划阶段的角色草图
type PlanCharacter struct {
	Name               string `json:"name"`
	Role               string `json:"role"`
	RelationshipSketch string `json:"relationshipSketch"`
}

// PlanContent 策划阶段产物
type PlanContent struct {
	WorldOverview string          `json:"worldOverview"`
	Characters    []PlanCharacter `json:"characters"`
	CoreTrick     string          `json:"coreTrick"`
	Tone          string          `json:"tone"`
	Era           string          `json:"era"`
}

// OutlineContent 大纲阶段产物
type OutlineContent struct {
	Timeline       []json.RawMessage `json:"timeline"`
	CharacterArcs  []json.RawMessage `json:"characterArcs"`
	Clues          []json.RawMessage `json:"clues"`
	Branches       []json.RawMessage `json:"branches"`
	Endings        []json.RawMessage `json:"endings"`
	TrickMechanism string            `json:"trickMechanism"`
}

// ChapterContent 章节产物：任意合法 JSON 值加上调用方给定的类型
type ChapterContent struct {
	Type        string          `json:"type"`
	Content     json.RawMessage `json:"content"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// VibeScript 一次性生成的整本剧本
type VibeScript struct {
	Title           string            `json:"title,omitempty"`
	DMHandbook      json.RawMessage   `json:"dmHandbook"`
	PlayerHandbooks []json.RawMessage `json:"playerHandbooks"`
	Materials       []json.RawMessage `json:"materials,omitempty"`
	BranchStructure json.RawMessage   `json:"branchStructure"`
}

// ScriptSettings 提示词构建所需的剧本配置快照
type ScriptSettings struct {
	Title       string
	PlayerCount int
	Theme       string
	Era         string
	GameType    string
	Tone        string
	Extra       map[string]any
}

// ChapterBrief 章节生成的上下文
type ChapterBrief struct {
	Index       int
	Type        string
	CharacterID string
	// Plan/Outline 为作者确认后的有效内容
	Plan    json.RawMessage
	Outline json.RawMessage
	// Previous 序号更小的已生成章节（有效内容）
	Previous []PreviousChapter
}

// PreviousChapter 作为上下文的前序章节
type PreviousChapter struct {
	Index   int             `json:"index"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// PhasePrompt 提示词构建结果
type PhasePrompt struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    *int
	Temperature  *float32
}
