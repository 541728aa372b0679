package port

import (
	"context"

	wfmodel "z-script-ai-api/internal/workflow/model"
)

// Generator 编排层对 LLM 的最小依赖（port），单 Provider 适配器与多 Provider 路由均实现该接口
type Generator interface {
	Send(ctx context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error)
	// ValidateCredential 不发起网络请求，仅校验凭据形态
	ValidateCredential() error
}

// EphemeralCredential 调用方为单个会话提供的临时凭据
type EphemeralCredential struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// GeneratorInfo 临时 Generator 解析后的 Provider 与模型，不含凭据
type GeneratorInfo struct {
	Provider string
	Model    string
}

// GeneratorFactory 为临时凭据构建专属 Generator
type GeneratorFactory interface {
	NewEphemeral(ctx context.Context, cred EphemeralCredential) (Generator, GeneratorInfo, error)
}

// PromptBuilder 按阶段构建提示词，编排层将其视为黑盒
type PromptBuilder interface {
	PlanPrompt(ctx context.Context, settings wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error)
	OutlinePrompt(ctx context.Context, settings wfmodel.ScriptSettings, plan []byte) (*wfmodel.PhasePrompt, error)
	ChapterPrompt(ctx context.Context, settings wfmodel.ScriptSettings, brief wfmodel.ChapterBrief) (*wfmodel.PhasePrompt, error)
	VibePrompt(ctx context.Context, settings wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error)
}
