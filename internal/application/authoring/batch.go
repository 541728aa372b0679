package authoring

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/workflow/parser"
	"z-script-ai-api/internal/workflow/port"
	wfmodel "z-script-ai-api/internal/workflow/model"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
)

type stepKind int

const (
	// stepReview 批次内仍有待审章节，只做记账
	stepReview stepKind = iota
	stepSequential
	stepBatch
	stepComplete
)

func (k stepKind) String() string {
	switch k {
	case stepReview:
		return "review"
	case stepSequential:
		return "sequential"
	case stepBatch:
		return "batch"
	default:
		return "complete"
	}
}

// approvalStep 审阅通过当前章节后的下一步
type approvalStep struct {
	kind    stepKind
	index   int
	indices []int
	// batch 审阅记账后的批次，批次审阅完毕时为 nil
	batch *entity.ParallelBatch
}

// planApproval 计算通过当前章节后的下一步，不修改会话
func planApproval(s *entity.AuthoringSession, playerCount int) (approvalStep, error) {
	idx := s.CurrentChapterIndex
	if _, ok := s.Chapter(idx); !ok {
		return approvalStep{}, apperrors.StateError("chapter %d has not been generated", idx)
	}

	if s.Batch != nil && s.Batch.Contains(idx) {
		b := cloneBatch(s.Batch)
		b.MarkReviewed(idx)
		if !b.FullyReviewed() {
			if next, ok := b.NextUnreviewed(); ok {
				return approvalStep{kind: stepReview, index: next, batch: b}, nil
			}
			// 剩余的都是失败章节，停在第一个失败序号等待 retryFailedChapters
			return approvalStep{kind: stepReview, index: b.FailedIndices[0], batch: b}, nil
		}
	}

	missing := missingIndices(s, playerCount)
	if len(missing) == 0 {
		return approvalStep{kind: stepComplete}, nil
	}
	first := missing[0]
	switch {
	case first == 0:
		return approvalStep{kind: stepSequential, index: 0}, nil
	case first <= playerCount:
		var players []int
		for _, i := range missing {
			if i <= playerCount {
				players = append(players, i)
			}
		}
		return approvalStep{kind: stepBatch, indices: players}, nil
	default:
		return approvalStep{kind: stepBatch, indices: missing}, nil
	}
}

// missingIndices 尚未生成的章节序号（升序）
func missingIndices(s *entity.AuthoringSession, playerCount int) []int {
	var out []int
	for i := 0; i < entity.TotalChaptersFor(playerCount); i++ {
		if _, ok := s.Chapter(i); !ok {
			out = append(out, i)
		}
	}
	return out
}

// pendingBatchIndices 批次内尚未成功生成的序号（含失败序号），无批次时为 nil
func pendingBatchIndices(b *entity.ParallelBatch) []int {
	if b == nil {
		return nil
	}
	done := make(map[int]bool, len(b.CompletedIndices))
	for _, idx := range b.CompletedIndices {
		done[idx] = true
	}
	var out []int
	for _, idx := range b.Indices {
		if !done[idx] {
			out = append(out, idx)
		}
	}
	return out
}

func cloneBatch(b *entity.ParallelBatch) *entity.ParallelBatch {
	return &entity.ParallelBatch{
		Indices:          append([]int{}, b.Indices...),
		CompletedIndices: append([]int{}, b.CompletedIndices...),
		FailedIndices:    append([]int{}, b.FailedIndices...),
		ReviewedIndices:  append([]int{}, b.ReviewedIndices...),
	}
}

// startBatch 记录新批次并立即落盘，随后并行生成
func (o *Orchestrator) startBatch(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig, indices []int) (*entity.AuthoringSession, error) {
	if err := moveTo(s, entity.StateExecuting); err != nil {
		return nil, err
	}
	s.Batch = entity.NewParallelBatch(indices)
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	return o.dispatchBatch(ctx, s, gen, cfg, s.Batch.Indices, entity.StateExecuting)
}

// dispatchBatch 并发生成 indices 中的每个章节，互不取消，全部结束后统一归集
//
// 全部失败时会话进入 failed（retryFrom 由调用方给定），已有章节保持不变；
// 任一成功即回到 chapter_review，并指向第一个待审章节。
func (o *Orchestrator) dispatchBatch(ctx context.Context, s *entity.AuthoringSession, gen port.Generator, cfg *entity.ScriptConfig, indices []int, retryFrom entity.SessionState) (*entity.AuthoringSession, error) {
	start := time.Now()
	settings := settingsOf(cfg)
	logger.Info(ctx, "dispatching chapter batch", "indices", indices)

	jobs := make([]chapterJob, len(indices))
	for i, idx := range indices {
		job, err := newChapterJob(s, cfg.PlayerCount, idx)
		if err != nil {
			return nil, apperrors.StateError("%v", err)
		}
		jobs[i] = job
	}

	results := make([]chapterResult, len(jobs))
	var g errgroup.Group
	for i := range jobs {
		g.Go(func() error {
			results[i] = o.generateChapter(ctx, gen, settings, jobs[i])
			return nil
		})
	}
	_ = g.Wait()

	var (
		usage     wfmodel.TokenUsage
		succeeded int
		lastErr   error
	)
	for i, res := range results {
		if res.err != nil {
			lastErr = res.err
			s.Batch.MarkFailed(jobs[i].index)
			logger.Warn(ctx, "batch chapter failed", "index", jobs[i].index, "error", res.err.Error())
			continue
		}
		succeeded++
		usage = usage.Add(res.usage)
		storeChapter(s, res.chapter)
	}
	observePhase(s.Mode, parser.PhaseChapter, start, lastErrIfAllFailed(succeeded, lastErr))

	if succeeded == 0 {
		metrics.BatchOutcomeTotal.WithLabelValues("all_failed").Inc()
		return o.fail(ctx, s, parser.PhaseChapter, lastErr, retryFrom)
	}
	if succeeded == len(results) {
		metrics.BatchOutcomeTotal.WithLabelValues("all_success").Inc()
	} else {
		metrics.BatchOutcomeTotal.WithLabelValues("partial").Inc()
	}

	s.LastStepUsage = stepUsage(usage)
	if next, ok := s.Batch.NextUnreviewed(); ok {
		s.CurrentChapterIndex = next
	}
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, s, entity.StateChapterReview); err != nil {
		return nil, err
	}
	logger.Info(ctx, "chapter batch finished",
		"completed", s.Batch.CompletedIndices,
		"failed", s.Batch.FailedIndices,
		"total_tokens", usage.TotalTokens,
	)
	return s, nil
}

func lastErrIfAllFailed(succeeded int, err error) error {
	if succeeded == 0 {
		return err
	}
	return nil
}
