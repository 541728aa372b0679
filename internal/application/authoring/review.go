package authoring

import (
	"context"
	"encoding/json"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/state"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/tracer"
)

// EditPhase 作者编辑当前审阅阶段的内容；追加编辑历史，不迁移状态，不调用模型
func (o *Orchestrator) EditPhase(ctx context.Context, id string, phase entity.Phase, content json.RawMessage) (*entity.AuthoringSession, error) {
	ctx = logger.WithSession(ctx, id)
	if !json.Valid(content) {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "content must be valid JSON")
	}

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireReviewState(s, phase); err != nil {
		return nil, err
	}

	switch phase {
	case entity.PhasePlan:
		s.Plan.ApplyEdit(content)
	case entity.PhaseOutline:
		s.Outline.ApplyEdit(content)
	default:
		before, ok := s.EffectiveChapterContent(s.CurrentChapterIndex)
		if !ok {
			return nil, apperrors.StateError("chapter %d has not been generated", s.CurrentChapterIndex)
		}
		s.AppendChapterEdit(s.CurrentChapterIndex, entity.AuthorEdit{
			EditedAt: time.Now().UTC(),
			Before:   before,
			After:    content,
		})
	}

	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	logger.Info(ctx, "phase edited", "phase", phase, "chapter_index", s.CurrentChapterIndex)
	return s, nil
}

// PatchPhase 将 RFC 6902 JSON Patch 应用到当前有效内容上，结果按 EditPhase 记录
func (o *Orchestrator) PatchPhase(ctx context.Context, id string, phase entity.Phase, patch []byte) (*entity.AuthoringSession, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid json patch")
	}

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireReviewState(s, phase); err != nil {
		return nil, err
	}
	base, ok := s.EffectiveContent(phase)
	if !ok {
		return nil, apperrors.StateError("%s has no content to patch", phase)
	}
	out, err := p.Apply(base)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "failed to apply json patch")
	}
	return o.EditPhase(ctx, id, phase, out)
}

// RegenerateChapter 重新生成当前审阅的章节
func (o *Orchestrator) RegenerateChapter(ctx context.Context, id string, index int) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.RegenerateChapter", trace.WithAttributes(
		attribute.String("session_id", id),
		attribute.Int("chapter_index", index),
	))
	defer span.End()
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireReviewState(s, entity.PhaseChapter); err != nil {
		return nil, err
	}
	if index != s.CurrentChapterIndex {
		return nil, apperrors.StateError("can only regenerate the chapter under review (%d), got %d", s.CurrentChapterIndex, index)
	}
	gen, err := o.activeGenerator(id)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return nil, err
	}

	// 当前内容作为自引用记录写入历史，标记即将被替换
	if current, ok := s.EffectiveChapterContent(index); ok {
		s.AppendChapterEdit(index, entity.AuthorEdit{
			EditedAt: time.Now().UTC(),
			Before:   current,
			After:    current,
		})
	}
	if err := o.transition(ctx, s, entity.StateExecuting); err != nil {
		return nil, err
	}
	return o.runChapter(ctx, s, gen, cfg, index)
}

// RetryFailedChapters 重新并发生成当前批次中失败的章节
func (o *Orchestrator) RetryFailedChapters(ctx context.Context, id string) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.RetryFailedChapters", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State != entity.StateChapterReview {
		return nil, apperrors.StateError("retrying failed chapters requires state %s, session is in %s", entity.StateChapterReview, s.State)
	}
	if s.Batch == nil || len(s.Batch.FailedIndices) == 0 {
		return nil, apperrors.StateError("session has no failed chapters to retry")
	}
	gen, err := o.activeGenerator(id)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return nil, err
	}

	failed := append([]int{}, s.Batch.FailedIndices...)
	if err := o.transition(ctx, s, entity.StateExecuting); err != nil {
		return nil, err
	}
	return o.dispatchBatch(ctx, s, gen, cfg, failed, entity.StateChapterReview)
}

// Retry 从 failed 恢复到失败记录中的 retryFrom 状态；不做任何生成
func (o *Orchestrator) Retry(ctx context.Context, id string) (*entity.AuthoringSession, error) {
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State != entity.StateFailed {
		return nil, apperrors.StateError("retry requires state %s, session is in %s", entity.StateFailed, s.State)
	}
	if s.Failure == nil {
		return nil, apperrors.StateError("session has no failure record")
	}

	// 状态机不允许 failed 直接回到 chapter_review，此时经 executing 两步迁移，只在最后一次落盘
	path, ok := recoveryPath(s.Failure.RetryFrom, s.Mode)
	if !ok {
		return nil, apperrors.StateError("cannot recover from failed to %s in %s mode", s.Failure.RetryFrom, s.Mode)
	}
	for _, target := range path {
		if err := moveTo(s, target); err != nil {
			return nil, err
		}
	}
	s.Failure = nil
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	logger.Info(ctx, "session recovered", "state", s.State)
	return s, nil
}

// recoveryPath failed 到 target 的迁移路径
//
// target 本身可直接恢复时一步到位；否则经由一个可恢复的中间状态（如 executing -> chapter_review）。
func recoveryPath(target entity.SessionState, mode entity.SessionMode) ([]entity.SessionState, bool) {
	if state.Allowed(entity.StateFailed, target, mode) {
		return []entity.SessionState{target}, true
	}
	for _, via := range entity.AllSessionStates {
		if via == entity.StateFailed || !state.CanFail(via, mode) {
			continue
		}
		if state.Allowed(via, target, mode) {
			return []entity.SessionState{via, target}, true
		}
	}
	return nil, false
}
