package entity

import (
	"encoding/json"
	"time"
)

// Phase 可审阅的生成单元
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseOutline Phase = "outline"
	PhaseChapter Phase = "chapter"
)

// ReviewState 阶段对应的审阅状态
func (p Phase) ReviewState() (SessionState, bool) {
	switch p {
	case PhasePlan:
		return StatePlanReview, true
	case PhaseOutline:
		return StateDesignReview, true
	case PhaseChapter:
		return StateChapterReview, true
	default:
		return "", false
	}
}

// AuthorEdit 作者编辑记录，只追加不修改
type AuthorEdit struct {
	EditedAt time.Time       `json:"editedAt"`
	Before   json.RawMessage `json:"before"`
	After    json.RawMessage `json:"after"`
}

// PhaseOutput plan/outline 阶段产物
type PhaseOutput struct {
	Phase        Phase           `json:"phase"`
	Content      json.RawMessage `json:"content"`
	AuthorEdited json.RawMessage `json:"authorEdited,omitempty"`
	Edits        []AuthorEdit    `json:"edits,omitempty"`
	Approved     bool            `json:"approved"`
	ApprovedAt   *time.Time      `json:"approvedAt,omitempty"`
	AuthorNotes  string          `json:"authorNotes,omitempty"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// NewPhaseOutput 新生成的阶段产物
func NewPhaseOutput(phase Phase, content json.RawMessage) *PhaseOutput {
	return &PhaseOutput{
		Phase:       phase,
		Content:     content,
		GeneratedAt: time.Now().UTC(),
	}
}

// Effective 作者编辑内容优先
func (p *PhaseOutput) Effective() json.RawMessage {
	if p == nil {
		return nil
	}
	if len(p.AuthorEdited) > 0 {
		return p.AuthorEdited
	}
	return p.Content
}

// ApplyEdit 记录编辑并设置新的权威内容
func (p *PhaseOutput) ApplyEdit(content json.RawMessage) {
	p.Edits = append(p.Edits, AuthorEdit{
		EditedAt: time.Now().UTC(),
		Before:   p.Effective(),
		After:    content,
	})
	p.AuthorEdited = content
}

// Approve 标记已审阅通过
func (p *PhaseOutput) Approve(notes string) {
	now := time.Now().UTC()
	p.Approved = true
	p.ApprovedAt = &now
	if notes != "" {
		p.AuthorNotes = notes
	}
}
