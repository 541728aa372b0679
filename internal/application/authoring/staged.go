package authoring

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/parser"
	"z-script-ai-api/internal/workflow/port"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/tracer"
)

// Advance 推进会话：vibe 模式一次性生成整本；staged 模式按当前状态生成下一阶段
//
// 生成阶段的失败记录在返回的会话上（state=failed），error 只用于状态/配置/存储错误。
func (o *Orchestrator) Advance(ctx context.Context, id string) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.Advance", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	gen, err := o.activeGenerator(id)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.mode", string(s.Mode)), attribute.String("session.state", string(s.State)))

	if s.Mode == entity.SessionModeVibe {
		switch s.State {
		case entity.StateDraft:
			if err := o.transition(ctx, s, entity.StateGenerating); err != nil {
				return nil, err
			}
			return o.runVibe(ctx, s, gen, cfg)
		case entity.StateGenerating:
			return o.runVibe(ctx, s, gen, cfg)
		default:
			return nil, apperrors.StateError("cannot advance vibe session in state %s", s.State)
		}
	}

	switch s.State {
	case entity.StateDraft:
		if err := o.transition(ctx, s, entity.StatePlanning); err != nil {
			return nil, err
		}
		return o.runPlan(ctx, s, gen, cfg)
	case entity.StatePlanning:
		return o.runPlan(ctx, s, gen, cfg)
	case entity.StateDesigning:
		return o.runOutline(ctx, s, gen, cfg)
	case entity.StateExecuting:
		// 批次落盘后中断、整批失败经 retry 回到 executing、重试失败章节时中断：
		// 只补生成批次内尚未成功的序号，已有章节与作者编辑保持不变
		if pending := pendingBatchIndices(s.Batch); len(pending) > 0 {
			retryFrom := entity.StateExecuting
			if len(s.Batch.CompletedIndices) > 0 {
				retryFrom = entity.StateChapterReview
			}
			logger.Info(ctx, "resuming chapter batch", "pending", pending)
			return o.dispatchBatch(ctx, s, gen, cfg, pending, retryFrom)
		}
		return o.runChapter(ctx, s, gen, cfg, s.CurrentChapterIndex)
	default:
		return nil, apperrors.StateError("cannot advance staged session in state %s", s.State)
	}
}

// runPlan 在 planning 状态下生成策划
func (o *Orchestrator) runPlan(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig) (*entity.AuthoringSession, error) {
	start := time.Now()
	logger.Info(ctx, "generating plan")

	content, usage, err := o.generatePlan(ctx, gen, cfg)
	observePhase(s.Mode, parser.PhasePlan, start, err)
	if err != nil {
		return o.fail(ctx, s, parser.PhasePlan, err, entity.StatePlanning)
	}

	s.Plan = entity.NewPhaseOutput(entity.PhasePlan, content)
	s.LastStepUsage = usage
	// 先落盘产物再迁移状态
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, s, entity.StatePlanReview); err != nil {
		return nil, err
	}
	logger.Info(ctx, "plan generated", "total_tokens", usage.TotalTokens)
	return s, nil
}

func (o *Orchestrator) generatePlan(ctx context.Context, gen port.Generator, cfg *entity.ScriptConfig) ([]byte, *entity.StepUsage, error) {
	p, err := o.prompts.PlanPrompt(ctx, settingsOf(cfg))
	if err != nil {
		return nil, nil, err
	}
	res, err := o.send(ctx, gen, TaskPlan, p)
	if err != nil {
		return nil, nil, err
	}
	_, body, err := parser.ParsePlan(res.Content)
	if err != nil {
		return nil, nil, err
	}
	return body, stepUsage(res.Usage), nil
}

// runOutline 在 designing 状态下生成大纲
func (o *Orchestrator) runOutline(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig) (*entity.AuthoringSession, error) {
	start := time.Now()
	logger.Info(ctx, "generating outline")

	content, usage, err := o.generateOutline(ctx, gen, cfg, s.Plan.Effective())
	observePhase(s.Mode, parser.PhaseOutline, start, err)
	if err != nil {
		return o.fail(ctx, s, parser.PhaseOutline, err, entity.StateDesigning)
	}

	s.Outline = entity.NewPhaseOutput(entity.PhaseOutline, content)
	s.LastStepUsage = usage
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, s, entity.StateDesignReview); err != nil {
		return nil, err
	}
	logger.Info(ctx, "outline generated", "total_tokens", usage.TotalTokens)
	return s, nil
}

func (o *Orchestrator) generateOutline(ctx context.Context, gen port.Generator, cfg *entity.ScriptConfig, plan []byte) ([]byte, *entity.StepUsage, error) {
	p, err := o.prompts.OutlinePrompt(ctx, settingsOf(cfg), plan)
	if err != nil {
		return nil, nil, err
	}
	res, err := o.send(ctx, gen, TaskOutline, p)
	if err != nil {
		return nil, nil, err
	}
	_, body, err := parser.ParseOutline(res.Content)
	if err != nil {
		return nil, nil, err
	}
	return body, stepUsage(res.Usage), nil
}

// runChapter 在 executing 状态下顺序生成单个章节
func (o *Orchestrator) runChapter(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig, index int) (*entity.AuthoringSession, error) {
	start := time.Now()
	logger.Info(ctx, "generating chapter", "index", index)

	job, err := newChapterJob(s, cfg.PlayerCount, index)
	if err != nil {
		return nil, apperrors.StateError("%v", err)
	}
	res := o.generateChapter(ctx, gen, settingsOf(cfg), job)
	observePhase(s.Mode, parser.PhaseChapter, start, res.err)
	if res.err != nil {
		return o.fail(ctx, s, parser.PhaseChapter, res.err, entity.StateExecuting)
	}

	storeChapter(s, res.chapter)
	s.CurrentChapterIndex = index
	s.LastStepUsage = stepUsage(res.usage)
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, s, entity.StateChapterReview); err != nil {
		return nil, err
	}
	logger.Info(ctx, "chapter generated", "index", index, "type", res.chapter.Type)
	return s, nil
}

// ApprovePhase 审阅通过当前阶段；plan/outline 的通过会触发下一阶段生成
func (o *Orchestrator) ApprovePhase(ctx context.Context, id string, phase entity.Phase, notes string) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.ApprovePhase", trace.WithAttributes(
		attribute.String("session_id", id),
		attribute.String("phase", string(phase)),
	))
	defer span.End()
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireReviewState(s, phase); err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return nil, err
	}

	switch phase {
	case entity.PhasePlan:
		gen, err := o.activeGenerator(id)
		if err != nil {
			return nil, err
		}
		s.Plan.Approve(notes)
		if err := o.transition(ctx, s, entity.StateDesigning); err != nil {
			return nil, err
		}
		return o.runOutline(ctx, s, gen, cfg)

	case entity.PhaseOutline:
		gen, err := o.activeGenerator(id)
		if err != nil {
			return nil, err
		}
		s.Outline.Approve(notes)
		s.TotalChapters = entity.TotalChaptersFor(cfg.PlayerCount)
		s.CurrentChapterIndex = 0
		if err := o.transition(ctx, s, entity.StateExecuting); err != nil {
			return nil, err
		}
		return o.runChapter(ctx, s, gen, cfg, 0)

	default:
		return o.approveChapter(ctx, s, cfg)
	}
}

// ApprovalNeedsGeneration 审阅通过后是否会触发生成（批次内仍有待审章节时只做记账）
func (o *Orchestrator) ApprovalNeedsGeneration(ctx context.Context, id string, phase entity.Phase) (bool, error) {
	s, err := o.load(ctx, id)
	if err != nil {
		return false, err
	}
	if err := requireReviewState(s, phase); err != nil {
		return false, err
	}
	if phase != entity.PhaseChapter {
		return true, nil
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return false, err
	}
	step, err := planApproval(s, cfg.PlayerCount)
	if err != nil {
		return false, err
	}
	return step.kind == stepBatch || step.kind == stepSequential, nil
}

func (o *Orchestrator) approveChapter(ctx context.Context, s *entity.AuthoringSession, cfg *entity.ScriptConfig) (*entity.AuthoringSession, error) {
	step, err := planApproval(s, cfg.PlayerCount)
	if err != nil {
		return nil, err
	}

	var gen port.Generator
	if step.kind == stepBatch || step.kind == stepSequential {
		if gen, err = o.activeGenerator(s.ID); err != nil {
			return nil, err
		}
	}

	s.Batch = step.batch
	logger.Info(ctx, "chapter approved", "index", s.CurrentChapterIndex, "next", step.kind.String())

	switch step.kind {
	case stepReview:
		s.CurrentChapterIndex = step.index
		if err := o.save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	case stepSequential:
		s.CurrentChapterIndex = step.index
		if err := o.transition(ctx, s, entity.StateExecuting); err != nil {
			return nil, err
		}
		return o.runChapter(ctx, s, gen, cfg, step.index)
	case stepBatch:
		return o.startBatch(ctx, s, gen, cfg, step.indices)
	default:
		if err := o.transition(ctx, s, entity.StateCompleted); err != nil {
			return nil, err
		}
		if _, err := o.assemble(ctx, s, cfg); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func requireReviewState(s *entity.AuthoringSession, phase entity.Phase) error {
	if s.Mode != entity.SessionModeStaged {
		return apperrors.StateError("phase %s is not reviewable in %s mode", phase, s.Mode)
	}
	want, ok := phase.ReviewState()
	if !ok {
		return apperrors.Newf(apperrors.CodeInvalidParam, "unknown phase %q", phase)
	}
	if s.State != want {
		return apperrors.StateError("phase %s requires state %s, session is in %s", phase, want, s.State)
	}
	switch phase {
	case entity.PhasePlan:
		if s.Plan == nil {
			return apperrors.StateError("session has no plan")
		}
	case entity.PhaseOutline:
		if s.Outline == nil {
			return apperrors.StateError("session has no outline")
		}
	}
	return nil
}
