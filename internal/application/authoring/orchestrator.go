// Package authoring 创作编排：会话生命周期、阶段推进、并行批次与审阅操作
package authoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/workflow/port"
	"z-script-ai-api/internal/workflow/state"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

// CreateSessionInput 创建会话参数
type CreateSessionInput struct {
	ConfigID string
	Mode     entity.SessionMode
	// Credential 会话级临时凭据，可选
	Credential *port.EphemeralCredential
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithLocale 设置生成内容的语言
func WithLocale(locale string) Option {
	return func(o *Orchestrator) {
		o.locale = strings.TrimSpace(locale)
	}
}

// WithTransactor 剧本落库与会话回写在同一事务中完成
func WithTransactor(tx repository.Transactor) Option {
	return func(o *Orchestrator) {
		o.tx = tx
	}
}

// Orchestrator 创作编排器
//
// 同一会话的阶段操作由调用方串行化；编排器内唯一的共享可变状态是会话到临时 Generator 的映射。
type Orchestrator struct {
	sessions repository.SessionRepository
	configs  repository.ScriptConfigRepository
	scripts  repository.ScriptRepository
	prompts  port.PromptBuilder
	factory  port.GeneratorFactory
	// fallback 服务端配置的默认 Generator，可为空
	fallback port.Generator
	tx       repository.Transactor
	locale   string

	mu       sync.RWMutex
	adapters map[string]port.Generator
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	sessions repository.SessionRepository,
	configs repository.ScriptConfigRepository,
	scripts repository.ScriptRepository,
	prompts port.PromptBuilder,
	factory port.GeneratorFactory,
	fallback port.Generator,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		configs:  configs,
		scripts:  scripts,
		prompts:  prompts,
		factory:  factory,
		fallback: fallback,
		adapters: make(map[string]port.Generator),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create 创建 draft 会话；提供临时凭据时构建会话专属 Generator，会话中只保留 provider/model
func (o *Orchestrator) Create(ctx context.Context, in CreateSessionInput) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.Create")
	defer span.End()

	if !in.Mode.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "unknown session mode %q", in.Mode)
	}
	if _, err := o.loadConfig(ctx, in.ConfigID); err != nil {
		return nil, err
	}

	var (
		gen  port.Generator
		meta *entity.AiConfigMeta
	)
	if in.Credential != nil {
		g, info, err := o.newEphemeral(ctx, *in.Credential)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		gen = g
		meta = &entity.AiConfigMeta{Provider: info.Provider, Model: info.Model}
	}

	s := entity.NewAuthoringSession(uuid.NewString(), in.ConfigID, in.Mode)
	s.AiConfig = meta
	ctx = logger.WithSession(ctx, s.ID)

	rec, err := encodeSession(s)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.Insert(ctx, rec); err != nil {
		tracer.RecordError(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	if gen != nil {
		o.setAdapter(s.ID, gen)
	}

	logger.Info(ctx, "authoring session created", "mode", s.Mode, "config_id", s.ConfigID, "ephemeral", gen != nil)
	return s, nil
}

// Get 获取会话
func (o *Orchestrator) Get(ctx context.Context, id string) (*entity.AuthoringSession, error) {
	return o.load(ctx, id)
}

// List 分页列出会话
func (o *Orchestrator) List(ctx context.Context, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.AuthoringSession], error) {
	page, err := o.sessions.List(ctx, filter, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sessions")
	}
	out, err := repository.MapPaged(page, decodeSession)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to decode session")
	}
	return out, nil
}

// GetAdapterForSession 会话专属 Generator > 服务端默认 Generator > 错误
func (o *Orchestrator) GetAdapterForSession(id string) (port.Generator, error) {
	o.mu.RLock()
	gen, ok := o.adapters[id]
	o.mu.RUnlock()
	if ok {
		return gen, nil
	}
	if o.fallback != nil {
		return o.fallback, nil
	}
	return nil, apperrors.ConfigurationError("no AI configuration available for session %s", id)
}

// HasEphemeralAdapter 会话是否持有进程内的临时 Generator
func (o *Orchestrator) HasEphemeralAdapter(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.adapters[id]
	return ok
}

// UpdateAiConfig 替换会话的临时凭据，仅允许在 draft、各审阅状态与 failed 下进行
func (o *Orchestrator) UpdateAiConfig(ctx context.Context, id string, cred port.EphemeralCredential) (*entity.AuthoringSession, error) {
	ctx, span := tracer.Start(ctx, "authoring.UpdateAiConfig")
	defer span.End()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !aiConfigMutable(s.State) {
		return nil, apperrors.StateError("cannot update AI config in state %s", s.State)
	}

	gen, info, err := o.newEphemeral(ctx, cred)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	s.AiConfig = &entity.AiConfigMeta{Provider: info.Provider, Model: info.Model}
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	o.setAdapter(s.ID, gen)

	logger.Info(ctx, "session AI config updated", "provider", info.Provider, "model", info.Model)
	return s, nil
}

func aiConfigMutable(s entity.SessionState) bool {
	switch s {
	case entity.StateDraft, entity.StatePlanReview, entity.StateDesignReview, entity.StateChapterReview, entity.StateFailed:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) newEphemeral(ctx context.Context, cred port.EphemeralCredential) (port.Generator, port.GeneratorInfo, error) {
	if o.factory == nil {
		return nil, port.GeneratorInfo{}, apperrors.ConfigurationError("session-scoped AI configuration is not supported")
	}
	gen, info, err := o.factory.NewEphemeral(ctx, cred)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, port.GeneratorInfo{}, err
		}
		return nil, port.GeneratorInfo{}, apperrors.ConfigurationError("invalid AI configuration: %v", err)
	}
	return gen, info, nil
}

func (o *Orchestrator) setAdapter(id string, gen port.Generator) {
	o.mu.Lock()
	o.adapters[id] = gen
	n := len(o.adapters)
	o.mu.Unlock()
	metrics.EphemeralAdapters.Set(float64(n))
}

func (o *Orchestrator) releaseAdapter(id string) {
	o.mu.Lock()
	delete(o.adapters, id)
	n := len(o.adapters)
	o.mu.Unlock()
	metrics.EphemeralAdapters.Set(float64(n))
}

// activeGenerator 取得会话 Generator 并在任何生成前校验凭据
func (o *Orchestrator) activeGenerator(id string) (port.Generator, error) {
	gen, err := o.GetAdapterForSession(id)
	if err != nil {
		return nil, err
	}
	if err := gen.ValidateCredential(); err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.ConfigurationError("invalid AI credential: %v", err)
	}
	return gen, nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (*entity.AuthoringSession, error) {
	rec, err := o.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if rec == nil {
		return nil, apperrors.Newf(apperrors.CodeSessionNotFound, "session %s not found", id)
	}
	s, err := decodeSession(rec)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to decode session")
	}
	return s, nil
}

func (o *Orchestrator) loadConfig(ctx context.Context, configID string) (*entity.ScriptConfig, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "config id is required")
	}
	cfg, err := o.configs.GetByID(ctx, configID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load script config")
	}
	if cfg == nil {
		return nil, apperrors.ConfigurationError("script config %s not found", configID)
	}
	return cfg, nil
}

// save 编码并覆盖写入；终态会销毁会话的临时 Generator
func (o *Orchestrator) save(ctx context.Context, s *entity.AuthoringSession) error {
	s.Touch()
	rec, err := encodeSession(s)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode session")
	}
	if err := o.sessions.Update(ctx, rec); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save session")
	}
	if s.State.IsTerminal() {
		o.releaseAdapter(s.ID)
	}
	return nil
}

// moveTo 经状态机校验后迁移
func moveTo(s *entity.AuthoringSession, target entity.SessionState) error {
	next, err := state.Transition(s.State, target, s.Mode)
	if err != nil {
		return apperrors.StateError("%v", err).WithError(err)
	}
	s.State = next
	return nil
}

// transition 迁移并立即持久化
func (o *Orchestrator) transition(ctx context.Context, s *entity.AuthoringSession, target entity.SessionState) error {
	if err := moveTo(s, target); err != nil {
		return err
	}
	return o.save(ctx, s)
}

// fail 将生成失败记录到会话，调用方以会话作为结果返回
func (o *Orchestrator) fail(ctx context.Context, s *entity.AuthoringSession, phase string, cause error, retryFrom entity.SessionState) (*entity.AuthoringSession, error) {
	logger.Error(ctx, "authoring phase failed", cause, "phase", phase, "state", s.State, "retry_from", retryFrom)
	s.Fail(phase, cause, retryFrom)
	if err := o.transition(ctx, s, entity.StateFailed); err != nil {
		return nil, err
	}
	return s, nil
}

func observePhase(mode entity.SessionMode, phase string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.PhaseGenerationTotal.WithLabelValues(string(mode), phase, status).Inc()
	metrics.PhaseGenerationDuration.WithLabelValues(string(mode), phase).Observe(time.Since(start).Seconds())
}
