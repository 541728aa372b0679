package authoring

import (
	"context"
	"fmt"
	"time"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/parser"
	"z-script-ai-api/internal/workflow/port"
	wfmodel "z-script-ai-api/internal/workflow/model"
)

// 路由任务名，对应 llm.routes 中的键
const (
	TaskPlan    = "plan"
	TaskOutline = "outline"
	TaskChapter = "chapter"
	TaskVibe    = "vibe"
)

func settingsOf(cfg *entity.ScriptConfig) wfmodel.ScriptSettings {
	return wfmodel.ScriptSettings{
		Title:       cfg.Title,
		PlayerCount: cfg.PlayerCount,
		Theme:       cfg.Theme,
		Era:         cfg.Era,
		GameType:    cfg.GameType,
		Tone:        cfg.Tone,
		Extra:       cfg.ExtraMap(),
	}
}

// send 按任务路由发送提示词
func (o *Orchestrator) send(ctx context.Context, gen port.Generator, task string, p *wfmodel.PhasePrompt) (*wfmodel.GenerationResult, error) {
	return gen.Send(ctx, wfmodel.GenerationRequest{
		Prompt:       p.Prompt,
		SystemPrompt: p.SystemPrompt,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		Task:         task,
		Locale:       o.locale,
	})
}

func stepUsage(u wfmodel.TokenUsage) *entity.StepUsage {
	return &entity.StepUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// chapterJob 一个待生成章节及其上下文快照
type chapterJob struct {
	index       int
	chapterType entity.ChapterType
	characterID string
	brief       wfmodel.ChapterBrief
}

// chapterResult 单个章节的生成结果
type chapterResult struct {
	chapter entity.Chapter
	usage   wfmodel.TokenUsage
	err     error
}

// newChapterJob 以作者确认后的策划、大纲以及序号更小的已有章节为上下文
func newChapterJob(s *entity.AuthoringSession, playerCount, index int) (chapterJob, error) {
	chType, charID, err := entity.ChapterTypeAt(index, playerCount)
	if err != nil {
		return chapterJob{}, err
	}
	brief := wfmodel.ChapterBrief{
		Index:       index,
		Type:        string(chType),
		CharacterID: charID,
		Plan:        s.Plan.Effective(),
		Outline:     s.Outline.Effective(),
	}
	for _, ch := range s.Chapters {
		if ch.Index >= index {
			break
		}
		content, _ := s.EffectiveChapterContent(ch.Index)
		brief.Previous = append(brief.Previous, wfmodel.PreviousChapter{
			Index:   ch.Index,
			Type:    string(ch.Type),
			Content: content,
		})
	}
	return chapterJob{index: index, chapterType: chType, characterID: charID, brief: brief}, nil
}

// generateChapter 只读取快照，可并发调用
func (o *Orchestrator) generateChapter(ctx context.Context, gen port.Generator, settings wfmodel.ScriptSettings, job chapterJob) chapterResult {
	p, err := o.prompts.ChapterPrompt(ctx, settings, job.brief)
	if err != nil {
		return chapterResult{err: fmt.Errorf("failed to build chapter %d prompt: %w", job.index, err)}
	}
	res, err := o.send(ctx, gen, TaskChapter, p)
	if err != nil {
		return chapterResult{err: err}
	}
	parsed, err := parser.ParseChapter(res.Content, string(job.chapterType))
	if err != nil {
		return chapterResult{err: err}
	}
	return chapterResult{
		chapter: entity.Chapter{
			Index:       job.index,
			Type:        job.chapterType,
			Content:     parsed.Content,
			CharacterID: job.characterID,
			GeneratedAt: parsed.GeneratedAt,
		},
		usage: res.Usage,
	}
}

// storeChapter 写入新生成的章节；已有编辑历史时追加一条记录，使新内容成为有效内容
func storeChapter(s *entity.AuthoringSession, ch entity.Chapter) {
	if edits := s.ChapterEdits[ch.Index]; len(edits) > 0 {
		s.AppendChapterEdit(ch.Index, entity.AuthorEdit{
			EditedAt: time.Now().UTC(),
			Before:   edits[len(edits)-1].After,
			After:    ch.Content,
		})
	}
	s.PutChapter(ch)
	if s.Batch != nil && s.Batch.Contains(ch.Index) {
		s.Batch.MarkCompleted(ch.Index)
	}
}
