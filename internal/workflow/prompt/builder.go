// Package prompt 负责各阶段提示词的构建
package prompt

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	wfmodel "z-script-ai-api/internal/workflow/model"
)

// 各阶段默认生成参数
var (
	planMaxTokens    = 4096
	outlineMaxTokens = 8192
	chapterMaxTokens = 8192
	vibeMaxTokens    = 16000

	creativeTemperature   float32 = 0.8
	structuredTemperature float32 = 0.7
)

// Builder 基于 eino ChatTemplate 的 PromptBuilder 实现
type Builder struct {
	registry *Registry
}

// NewBuilder 创建提示词构建器
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{registry: registry}
}

func settingsVars(s wfmodel.ScriptSettings) map[string]any {
	return map[string]any{
		"title":        orDefault(s.Title, "未命名剧本"),
		"player_count": s.PlayerCount,
		"theme":        orDefault(s.Theme, "不限"),
		"era":          orDefault(s.Era, "不限"),
		"game_type":    orDefault(s.GameType, "推理"),
		"tone":         orDefault(s.Tone, "不限"),
		"extra_block":  buildExtraBlock(s.Extra),
	}
}

// PlanPrompt 策划阶段
func (b *Builder) PlanPrompt(ctx context.Context, settings wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error) {
	return b.render(ctx, PromptPlanV1, settingsVars(settings), planMaxTokens, creativeTemperature)
}

// OutlinePrompt 大纲阶段，plan 为作者确认后的策划内容
func (b *Builder) OutlinePrompt(ctx context.Context, settings wfmodel.ScriptSettings, plan []byte) (*wfmodel.PhasePrompt, error) {
	vars := settingsVars(settings)
	vars["plan"] = rawOrPlaceholder(plan)
	return b.render(ctx, PromptOutlineV1, vars, outlineMaxTokens, structuredTemperature)
}

// ChapterPrompt 单章生成
func (b *Builder) ChapterPrompt(ctx context.Context, settings wfmodel.ScriptSettings, brief wfmodel.ChapterBrief) (*wfmodel.PhasePrompt, error) {
	vars := settingsVars(settings)
	vars["index"] = brief.Index
	vars["chapter_type"] = brief.Type
	vars["character_block"] = buildCharacterBlock(brief.CharacterID)
	vars["plan"] = rawOrPlaceholder(brief.Plan)
	vars["outline"] = rawOrPlaceholder(brief.Outline)
	vars["previous_block"] = buildPreviousBlock(brief.Previous)
	return b.render(ctx, PromptChapterV1, vars, chapterMaxTokens, structuredTemperature)
}

// VibePrompt 整本一次性生成
func (b *Builder) VibePrompt(ctx context.Context, settings wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error) {
	return b.render(ctx, PromptVibeV1, settingsVars(settings), vibeMaxTokens, creativeTemperature)
}

func (b *Builder) render(ctx context.Context, id PromptID, vars map[string]any, maxTokens int, temperature float32) (*wfmodel.PhasePrompt, error) {
	tpl, err := b.registry.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt %s: %w", id, err)
	}

	out := &wfmodel.PhasePrompt{}
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			out.SystemPrompt = m.Content
		case schema.User:
			out.Prompt = m.Content
		}
	}
	if out.Prompt == "" {
		return nil, fmt.Errorf("prompt %s rendered an empty user message", id)
	}
	mt := maxTokens
	temp := temperature
	out.MaxTokens = &mt
	out.Temperature = &temp
	return out, nil
}
