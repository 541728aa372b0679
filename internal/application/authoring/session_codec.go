package authoring

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"z-script-ai-api/internal/domain/entity"
)

const sessionPayloadVersion = 1

// sessionPayload 会话载荷的持久化形态；检索列（id/config/mode/state/时间）不重复存储
type sessionPayload struct {
	Version             int                            `json:"v"`
	Plan                *entity.PhaseOutput            `json:"plan,omitempty"`
	Outline             *entity.PhaseOutput            `json:"outline,omitempty"`
	Chapters            []entity.Chapter               `json:"chapters"`
	ChapterEdits        map[string][]entity.AuthorEdit `json:"chapterEdits,omitempty"`
	CurrentChapterIndex int                            `json:"currentChapterIndex"`
	TotalChapters       int                            `json:"totalChapters"`
	Batch               *entity.ParallelBatch          `json:"parallelBatch,omitempty"`
	ScriptID            string                         `json:"scriptId,omitempty"`
	AiConfig            *entity.AiConfigMeta           `json:"aiConfigMeta,omitempty"`
	Failure             *entity.FailureInfo            `json:"failureInfo,omitempty"`
	LastStepUsage       *entity.StepUsage              `json:"lastStepUsage,omitempty"`
}

// encodeSession 编码为仓储记录
func encodeSession(s *entity.AuthoringSession) (*entity.SessionRecord, error) {
	p := sessionPayload{
		Version:             sessionPayloadVersion,
		Plan:                s.Plan,
		Outline:             s.Outline,
		Chapters:            s.Chapters,
		CurrentChapterIndex: s.CurrentChapterIndex,
		TotalChapters:       s.TotalChapters,
		Batch:               s.Batch,
		ScriptID:            s.ScriptID,
		AiConfig:            s.AiConfig,
		Failure:             s.Failure,
		LastStepUsage:       s.LastStepUsage,
	}
	if p.Chapters == nil {
		p.Chapters = []entity.Chapter{}
	}
	if len(s.ChapterEdits) > 0 {
		p.ChapterEdits = make(map[string][]entity.AuthorEdit, len(s.ChapterEdits))
		for idx, edits := range s.ChapterEdits {
			p.ChapterEdits[strconv.Itoa(idx)] = edits
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	return &entity.SessionRecord{
		ID:        s.ID,
		ConfigID:  s.ConfigID,
		Mode:      s.Mode,
		State:     s.State,
		Payload:   data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

// decodeSession 从仓储记录还原会话，未知字段被丢弃
func decodeSession(rec *entity.SessionRecord) (*entity.AuthoringSession, error) {
	var p sessionPayload
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", rec.ID, err)
		}
	}
	if p.Version > sessionPayloadVersion {
		return nil, fmt.Errorf("session %s has unsupported payload version %d", rec.ID, p.Version)
	}

	s := &entity.AuthoringSession{
		ID:                  rec.ID,
		ConfigID:            rec.ConfigID,
		Mode:                rec.Mode,
		State:               rec.State,
		Plan:                p.Plan,
		Outline:             p.Outline,
		Chapters:            p.Chapters,
		CurrentChapterIndex: p.CurrentChapterIndex,
		TotalChapters:       p.TotalChapters,
		Batch:               p.Batch,
		ScriptID:            p.ScriptID,
		AiConfig:            p.AiConfig,
		Failure:             p.Failure,
		LastStepUsage:       p.LastStepUsage,
		CreatedAt:           rec.CreatedAt.UTC(),
		UpdatedAt:           rec.UpdatedAt.UTC(),
	}
	if s.Chapters == nil {
		s.Chapters = []entity.Chapter{}
	}
	sort.Slice(s.Chapters, func(i, j int) bool { return s.Chapters[i].Index < s.Chapters[j].Index })

	if len(p.ChapterEdits) > 0 {
		s.ChapterEdits = make(map[int][]entity.AuthorEdit, len(p.ChapterEdits))
		for key, edits := range p.ChapterEdits {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("session %s has invalid chapter edit key %q", rec.ID, key)
			}
			s.ChapterEdits[idx] = edits
		}
	}
	return s, nil
}
