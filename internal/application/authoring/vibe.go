package authoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/parser"
	"z-script-ai-api/internal/workflow/port"
	wfmodel "z-script-ai-api/internal/workflow/model"
	"z-script-ai-api/pkg/logger"
)

// runVibe 在 generating 状态下一次性生成整本剧本，成功后直接组装
func (o *Orchestrator) runVibe(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig) (*entity.AuthoringSession, error) {
	start := time.Now()
	logger.Info(ctx, "generating whole script")

	script, usage, err := o.generateVibe(ctx, gen, cfg)
	observePhase(s.Mode, parser.PhaseVibe, start, err)
	if err != nil {
		return o.fail(ctx, s, parser.PhaseVibe, err, entity.StateGenerating)
	}

	chapters, err := vibeChapters(script)
	if err != nil {
		return o.fail(ctx, s, parser.PhaseVibe, err, entity.StateGenerating)
	}
	for _, ch := range chapters {
		s.PutChapter(ch)
	}
	s.TotalChapters = len(chapters)
	s.CurrentChapterIndex = len(chapters) - 1
	s.LastStepUsage = stepUsage(usage)
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}

	// completed 先落盘；组装失败时可通过 AssembleScript 重新组装
	if err := o.transition(ctx, s, entity.StateCompleted); err != nil {
		return nil, err
	}
	if _, err := o.assemble(ctx, s, cfg); err != nil {
		return nil, err
	}
	logger.Info(ctx, "script generated", "chapters", len(chapters), "total_tokens", usage.TotalTokens)
	return s, nil
}

func (o *Orchestrator) generateVibe(ctx context.Context, gen port.Generator, cfg *entity.ScriptConfig) (*wfmodel.VibeScript, wfmodel.TokenUsage, error) {
	p, err := o.prompts.VibePrompt(ctx, settingsOf(cfg))
	if err != nil {
		return nil, wfmodel.TokenUsage{}, err
	}
	res, err := o.send(ctx, gen, TaskVibe, p)
	if err != nil {
		return nil, wfmodel.TokenUsage{}, err
	}
	script, err := parser.ParseVibeScript(res.Content)
	if err != nil {
		return nil, wfmodel.TokenUsage{}, err
	}
	return script, res.Usage, nil
}

// vibeChapters 将整本剧本拆成与分阶段模式相同的章节序号布局
func vibeChapters(script *wfmodel.VibeScript) ([]entity.Chapter, error) {
	players := len(script.PlayerHandbooks)
	now := time.Now().UTC()

	materials := script.Materials
	if materials == nil {
		materials = []json.RawMessage{}
	}
	materialsContent, err := json.Marshal(materials)
	if err != nil {
		return nil, fmt.Errorf("failed to encode materials: %w", err)
	}

	contents := make([]json.RawMessage, 0, players+3)
	contents = append(contents, script.DMHandbook)
	contents = append(contents, script.PlayerHandbooks...)
	contents = append(contents, materialsContent, script.BranchStructure)

	out := make([]entity.Chapter, 0, len(contents))
	for i, content := range contents {
		chType, charID, err := entity.ChapterTypeAt(i, players)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.Chapter{
			Index:       i,
			Type:        chType,
			Content:     content,
			CharacterID: charID,
			GeneratedAt: now,
		})
	}
	return out, nil
}
