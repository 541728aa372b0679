package dto

import (
	"encoding/json"
	"time"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/port"
)

// AiConfigRequest 会话级模型凭据，只存在于请求与进程内存中
type AiConfigRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ToCredential 转为临时凭据
func (r *AiConfigRequest) ToCredential() port.EphemeralCredential {
	return port.EphemeralCredential{
		Provider: r.Provider,
		APIKey:   r.APIKey,
		BaseURL:  r.BaseURL,
		Model:    r.Model,
	}
}

// CreateSessionRequest 创建创作会话请求
type CreateSessionRequest struct {
	ConfigID string           `json:"configId" binding:"required"`
	Mode     string           `json:"mode" binding:"required"`
	AiConfig *AiConfigRequest `json:"aiConfig,omitempty"`
}

// EditPhaseRequest 编辑阶段内容请求
type EditPhaseRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// ApprovePhaseRequest 审阅通过请求
type ApprovePhaseRequest struct {
	Notes string `json:"notes,omitempty"`
}

// PhaseOutputResponse plan/outline 阶段产物
type PhaseOutputResponse struct {
	Content      json.RawMessage `json:"content"`
	AuthorEdited json.RawMessage `json:"authorEdited,omitempty"`
	Effective    json.RawMessage `json:"effective"`
	EditCount    int             `json:"editCount"`
	Approved     bool            `json:"approved"`
	ApprovedAt   *time.Time      `json:"approvedAt,omitempty"`
	AuthorNotes  string          `json:"authorNotes,omitempty"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// ChapterResponse 章节，content 为有效内容
type ChapterResponse struct {
	Index       int                `json:"index"`
	Type        entity.ChapterType `json:"type"`
	CharacterID string             `json:"characterId,omitempty"`
	Content     json.RawMessage    `json:"content"`
	EditCount   int                `json:"editCount"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// SessionResponse 创作会话
type SessionResponse struct {
	ID                  string                `json:"id"`
	ConfigID            string                `json:"configId"`
	Mode                entity.SessionMode    `json:"mode"`
	State               entity.SessionState   `json:"state"`
	Plan                *PhaseOutputResponse  `json:"plan,omitempty"`
	Outline             *PhaseOutputResponse  `json:"outline,omitempty"`
	Chapters            []ChapterResponse     `json:"chapters"`
	CurrentChapterIndex int                   `json:"currentChapterIndex"`
	TotalChapters       int                   `json:"totalChapters"`
	ParallelBatch       *entity.ParallelBatch `json:"parallelBatch,omitempty"`
	ScriptID            string                `json:"scriptId,omitempty"`
	AiConfig            *entity.AiConfigMeta  `json:"aiConfigMeta,omitempty"`
	Failure             *entity.FailureInfo   `json:"failureInfo,omitempty"`
	LastStepUsage       *entity.StepUsage     `json:"lastStepUsage,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// SessionListResponse 会话列表
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

// JobAcceptedResponse 异步任务已受理
type JobAcceptedResponse struct {
	SessionID string              `json:"sessionId"`
	State     entity.SessionState `json:"state"`
	Status    string              `json:"status"`
}

func toPhaseOutputResponse(p *entity.PhaseOutput) *PhaseOutputResponse {
	if p == nil {
		return nil
	}
	return &PhaseOutputResponse{
		Content:      p.Content,
		AuthorEdited: p.AuthorEdited,
		Effective:    p.Effective(),
		EditCount:    len(p.Edits),
		Approved:     p.Approved,
		ApprovedAt:   p.ApprovedAt,
		AuthorNotes:  p.AuthorNotes,
		GeneratedAt:  p.GeneratedAt,
	}
}

// ToSessionResponse 实体转响应
func ToSessionResponse(s *entity.AuthoringSession) *SessionResponse {
	if s == nil {
		return nil
	}
	chapters := make([]ChapterResponse, 0, len(s.Chapters))
	for _, ch := range s.Chapters {
		content, _ := s.EffectiveChapterContent(ch.Index)
		chapters = append(chapters, ChapterResponse{
			Index:       ch.Index,
			Type:        ch.Type,
			CharacterID: ch.CharacterID,
			Content:     content,
			EditCount:   len(s.ChapterEdits[ch.Index]),
			GeneratedAt: ch.GeneratedAt,
		})
	}
	return &SessionResponse{
		ID:                  s.ID,
		ConfigID:            s.ConfigID,
		Mode:                s.Mode,
		State:               s.State,
		Plan:                toPhaseOutputResponse(s.Plan),
		Outline:             toPhaseOutputResponse(s.Outline),
		Chapters:            chapters,
		CurrentChapterIndex: s.CurrentChapterIndex,
		TotalChapters:       s.TotalChapters,
		ParallelBatch:       s.Batch,
		ScriptID:            s.ScriptID,
		AiConfig:            s.AiConfig,
		Failure:             s.Failure,
		LastStepUsage:       s.LastStepUsage,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// ToSessionListResponse 实体列表转响应
func ToSessionListResponse(items []*entity.AuthoringSession) *SessionListResponse {
	out := make([]*SessionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, ToSessionResponse(s))
	}
	return &SessionListResponse{Sessions: out}
}

// ToJobAcceptedResponse 异步受理响应
func ToJobAcceptedResponse(s *entity.AuthoringSession) *JobAcceptedResponse {
	return &JobAcceptedResponse{SessionID: s.ID, State: s.State, Status: "queued"}
}
