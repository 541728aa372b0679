// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"sort"
	"time"
)

// SessionMode 创作模式
type SessionMode string

const (
	SessionModeStaged SessionMode = "staged"
	SessionModeVibe   SessionMode = "vibe"
)

// Valid 是否为已知模式
func (m SessionMode) Valid() bool {
	return m == SessionModeStaged || m == SessionModeVibe
}

// SessionState 会话状态
type SessionState string

const (
	StateDraft         SessionState = "draft"
	StatePlanning      SessionState = "planning"
	StatePlanReview    SessionState = "plan_review"
	StateDesigning     SessionState = "designing"
	StateDesignReview  SessionState = "design_review"
	StateExecuting     SessionState = "executing"
	StateChapterReview SessionState = "chapter_review"
	StateGenerating    SessionState = "generating"
	StateCompleted     SessionState = "completed"
	StateFailed        SessionState = "failed"
)

// AllSessionStates 全部状态（用于枚举测试与参数校验）
var AllSessionStates = []SessionState{
	StateDraft, StatePlanning, StatePlanReview, StateDesigning, StateDesignReview,
	StateExecuting, StateChapterReview, StateGenerating, StateCompleted, StateFailed,
}

// IsTerminal 终态会销毁会话级临时凭据
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AiConfigMeta 会话使用的模型信息，永不包含凭据
type AiConfigMeta struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// FailureInfo 失败记录，retry 据此恢复
type FailureInfo struct {
	Phase     string       `json:"phase"`
	Error     string       `json:"error"`
	FailedAt  time.Time    `json:"failedAt"`
	RetryFrom SessionState `json:"retryFrom"`
}

// StepUsage 最近一步的 Token 消耗
type StepUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AuthoringSession 创作会话
type AuthoringSession struct {
	ID                  string               `json:"id"`
	ConfigID            string               `json:"configId"`
	Mode                SessionMode          `json:"mode"`
	State               SessionState         `json:"state"`
	Plan                *PhaseOutput         `json:"plan,omitempty"`
	Outline             *PhaseOutput         `json:"outline,omitempty"`
	Chapters            []Chapter            `json:"chapters"`
	ChapterEdits        map[int][]AuthorEdit `json:"chapterEdits,omitempty"`
	CurrentChapterIndex int                  `json:"currentChapterIndex"`
	TotalChapters       int                  `json:"totalChapters"`
	Batch               *ParallelBatch       `json:"parallelBatch,omitempty"`
	ScriptID            string               `json:"scriptId,omitempty"`
	AiConfig            *AiConfigMeta        `json:"aiConfigMeta,omitempty"`
	Failure             *FailureInfo         `json:"failureInfo,omitempty"`
	LastStepUsage       *StepUsage           `json:"lastStepUsage,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// NewAuthoringSession 创建 draft 会话
func NewAuthoringSession(id, configID string, mode SessionMode) *AuthoringSession {
	now := time.Now().UTC()
	return &AuthoringSession{
		ID:        id,
		ConfigID:  configID,
		Mode:      mode,
		State:     StateDraft,
		Chapters:  []Chapter{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch 更新修改时间
func (s *AuthoringSession) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// PhaseOutputFor 返回 plan/outline 阶段产物
func (s *AuthoringSession) PhaseOutputFor(phase Phase) *PhaseOutput {
	switch phase {
	case PhasePlan:
		return s.Plan
	case PhaseOutline:
		return s.Outline
	default:
		return nil
	}
}

// EffectiveContent 当前审阅单元的有效内容；chapter 取当前序号
func (s *AuthoringSession) EffectiveContent(phase Phase) (json.RawMessage, bool) {
	if phase == PhaseChapter {
		return s.EffectiveChapterContent(s.CurrentChapterIndex)
	}
	out := s.PhaseOutputFor(phase)
	if out == nil {
		return nil, false
	}
	return out.Effective(), true
}

// Chapter 按序号查找章节
func (s *AuthoringSession) Chapter(index int) (*Chapter, bool) {
	for i := range s.Chapters {
		if s.Chapters[i].Index == index {
			return &s.Chapters[i], true
		}
	}
	return nil, false
}

// PutChapter 插入或替换章节，保持按序号有序
func (s *AuthoringSession) PutChapter(ch Chapter) {
	if existing, ok := s.Chapter(ch.Index); ok {
		*existing = ch
		return
	}
	s.Chapters = append(s.Chapters, ch)
	sort.Slice(s.Chapters, func(i, j int) bool { return s.Chapters[i].Index < s.Chapters[j].Index })
}

// EffectiveChapterContent 章节的有效内容：有编辑历史时取最后一次编辑的 after
func (s *AuthoringSession) EffectiveChapterContent(index int) (json.RawMessage, bool) {
	ch, ok := s.Chapter(index)
	if !ok {
		return nil, false
	}
	if edits := s.ChapterEdits[index]; len(edits) > 0 {
		return edits[len(edits)-1].After, true
	}
	return ch.Content, true
}

// AppendChapterEdit 追加章节编辑历史
func (s *AuthoringSession) AppendChapterEdit(index int, edit AuthorEdit) {
	if s.ChapterEdits == nil {
		s.ChapterEdits = make(map[int][]AuthorEdit)
	}
	s.ChapterEdits[index] = append(s.ChapterEdits[index], edit)
}

// Fail 记录失败信息
func (s *AuthoringSession) Fail(phase string, err error, retryFrom SessionState) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Failure = &FailureInfo{
		Phase:     phase,
		Error:     msg,
		FailedAt:  time.Now().UTC(),
		RetryFrom: retryFrom,
	}
}
