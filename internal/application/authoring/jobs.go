package authoring

import (
	"context"
	"fmt"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/infrastructure/messaging"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
)

// JobPublisher 创作任务投递
type JobPublisher interface {
	PublishAuthoringJob(ctx context.Context, jobType string, job *messaging.AuthoringJobMessage) (string, error)
}

// HandlerRegistry 消费者的处理器注册能力
type HandlerRegistry interface {
	RegisterHandler(msgType string, handler messaging.MessageHandler)
}

// Dispatcher 决定 advance/approve 同步执行还是投递给 job-worker
//
// 临时 Generator 只存在于当前进程内，持有临时凭据的会话始终同步执行。
type Dispatcher struct {
	orch      *Orchestrator
	publisher JobPublisher
	async     bool
}

// NewDispatcher 创建分发器；publisher 为空时退化为同步执行
func NewDispatcher(orch *Orchestrator, publisher JobPublisher, async bool) *Dispatcher {
	return &Dispatcher{orch: orch, publisher: publisher, async: async}
}

func (d *Dispatcher) useAsync(id string) bool {
	return d.async && d.publisher != nil && !d.orch.HasEphemeralAdapter(id)
}

// Advance 推进会话；accepted 为 true 表示已投递异步任务，返回的是投递前的会话
func (d *Dispatcher) Advance(ctx context.Context, id, requestID string) (*entity.AuthoringSession, bool, error) {
	if !d.useAsync(id) {
		s, err := d.orch.Advance(ctx, id)
		return s, false, err
	}

	s, err := d.orch.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if _, err := d.orch.activeGenerator(id); err != nil {
		return nil, false, err
	}
	if err := d.publish(ctx, messaging.JobTypeAdvance, &messaging.AuthoringJobMessage{
		SessionID: id,
		RequestID: requestID,
	}); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Approve 审阅通过；批次内的纯记账审阅总是同步执行
func (d *Dispatcher) Approve(ctx context.Context, id string, phase entity.Phase, notes, requestID string) (*entity.AuthoringSession, bool, error) {
	if !d.useAsync(id) {
		s, err := d.orch.ApprovePhase(ctx, id, phase, notes)
		return s, false, err
	}

	needsGeneration, err := d.orch.ApprovalNeedsGeneration(ctx, id, phase)
	if err != nil {
		return nil, false, err
	}
	if !needsGeneration {
		s, err := d.orch.ApprovePhase(ctx, id, phase, notes)
		return s, false, err
	}

	s, err := d.orch.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if _, err := d.orch.activeGenerator(id); err != nil {
		return nil, false, err
	}
	if err := d.publish(ctx, messaging.JobTypeApprove, &messaging.AuthoringJobMessage{
		SessionID: id,
		Phase:     string(phase),
		Notes:     notes,
		RequestID: requestID,
	}); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (d *Dispatcher) publish(ctx context.Context, jobType string, job *messaging.AuthoringJobMessage) error {
	streamID, err := d.publisher.PublishAuthoringJob(ctx, jobType, job)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to enqueue authoring job")
	}
	logger.Info(ctx, "authoring job enqueued", "type", jobType, "job_id", job.JobID, "stream_id", streamID)
	return nil
}

// RegisterJobHandlers 注册 job-worker 的任务处理器
func (o *Orchestrator) RegisterJobHandlers(r HandlerRegistry) {
	r.RegisterHandler(messaging.JobTypeAdvance, o.handleAdvanceJob)
	r.RegisterHandler(messaging.JobTypeApprove, o.handleApproveJob)
}

func (o *Orchestrator) handleAdvanceJob(ctx context.Context, msg *messaging.Message) error {
	var job messaging.AuthoringJobMessage
	if err := msg.UnmarshalPayload(&job); err != nil {
		return fmt.Errorf("failed to decode advance job: %w", err)
	}
	s, err := o.Advance(ctx, job.SessionID)
	return jobOutcome(ctx, s, err)
}

func (o *Orchestrator) handleApproveJob(ctx context.Context, msg *messaging.Message) error {
	var job messaging.AuthoringJobMessage
	if err := msg.UnmarshalPayload(&job); err != nil {
		return fmt.Errorf("failed to decode approve job: %w", err)
	}
	s, err := o.ApprovePhase(ctx, job.SessionID, entity.Phase(job.Phase), job.Notes)
	return jobOutcome(ctx, s, err)
}

// jobOutcome 状态/配置类错误重投也不会成功，直接确认；其余错误交给消费者重试
func jobOutcome(ctx context.Context, s *entity.AuthoringSession, err error) error {
	if err == nil {
		logger.Info(ctx, "authoring job finished", "state", s.State)
		return nil
	}
	for _, code := range []apperrors.ErrorCode{
		apperrors.CodeInvalidState,
		apperrors.CodeConfiguration,
		apperrors.CodeInvalidParam,
		apperrors.CodeSessionNotFound,
	} {
		if apperrors.HasCode(err, code) {
			logger.Warn(ctx, "authoring job rejected", "code", code, "error", err.Error())
			return nil
		}
	}
	return err
}
