package handler

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/application/authoring"
	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/interfaces/http/dto"
	"z-script-ai-api/internal/workflow/port"
	"z-script-ai-api/pkg/logger"
)

// SessionService 会话处理器依赖的编排能力
type SessionService interface {
	Create(ctx context.Context, in authoring.CreateSessionInput) (*entity.AuthoringSession, error)
	Get(ctx context.Context, id string) (*entity.AuthoringSession, error)
	List(ctx context.Context, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.AuthoringSession], error)
	EditPhase(ctx context.Context, id string, phase entity.Phase, content json.RawMessage) (*entity.AuthoringSession, error)
	PatchPhase(ctx context.Context, id string, phase entity.Phase, patch []byte) (*entity.AuthoringSession, error)
	RegenerateChapter(ctx context.Context, id string, index int) (*entity.AuthoringSession, error)
	RetryFailedChapters(ctx context.Context, id string) (*entity.AuthoringSession, error)
	Retry(ctx context.Context, id string) (*entity.AuthoringSession, error)
	UpdateAiConfig(ctx context.Context, id string, cred port.EphemeralCredential) (*entity.AuthoringSession, error)
	AssembleScript(ctx context.Context, id string) (*entity.Script, error)
}

// SessionDispatcher advance/approve 的同步或异步执行
type SessionDispatcher interface {
	Advance(ctx context.Context, id, requestID string) (*entity.AuthoringSession, bool, error)
	Approve(ctx context.Context, id string, phase entity.Phase, notes, requestID string) (*entity.AuthoringSession, bool, error)
}

// SessionHandler 创作会话处理器
type SessionHandler struct {
	sessions   SessionService
	dispatcher SessionDispatcher
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions SessionService, dispatcher SessionDispatcher) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		dispatcher: dispatcher,
	}
}

// CreateSession 创建创作会话
// @Summary 创建创作会话
// @Tags Sessions
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest true "会话参数"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	in := authoring.CreateSessionInput{
		ConfigID: req.ConfigID,
		Mode:     entity.SessionMode(req.Mode),
	}
	if req.AiConfig != nil {
		cred := req.AiConfig.ToCredential()
		in.Credential = &cred
	}

	s, err := h.sessions.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, "failed to create session", err)
		return
	}
	dto.Created(c, dto.ToSessionResponse(s))
}

// ListSessions 获取会话列表
// @Summary 获取会话列表
// @Tags Sessions
// @Produce json
// @Param mode query string false "创作模式"
// @Param config_id query string false "剧本配置 ID"
// @Param state query []string false "状态过滤"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	pageReq := dto.BindPage(c)
	result, err := h.sessions.List(c.Request.Context(), dto.BindSessionFilter(c), pageReq.Pagination())
	if err != nil {
		respondError(c, "failed to list sessions", err)
		return
	}
	dto.Page(c, dto.ToSessionListResponse(result.Items), result)
}

// GetSession 获取会话详情
// @Summary 获取会话详情
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, "failed to get session", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// Advance 推进会话
// @Summary 推进会话到下一个生成阶段
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/advance [post]
func (h *SessionHandler) Advance(c *gin.Context) {
	s, accepted, err := h.dispatcher.Advance(c.Request.Context(), dto.BindID(c), requestID(c))
	if err != nil {
		respondError(c, "failed to advance session", err)
		return
	}
	h.respondStep(c, s, accepted)
}

// ApprovePhase 审阅通过
// @Summary 审阅通过当前阶段
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param phase path string true "阶段 plan|outline|chapter"
// @Param body body dto.ApprovePhaseRequest false "审阅备注"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/phases/{phase}/approve [post]
func (h *SessionHandler) ApprovePhase(c *gin.Context) {
	var req dto.ApprovePhaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	phase, ok := bindPhase(c)
	if !ok {
		return
	}

	s, accepted, err := h.dispatcher.Approve(c.Request.Context(), dto.BindID(c), phase, req.Notes, requestID(c))
	if err != nil {
		respondError(c, "failed to approve phase", err)
		return
	}
	h.respondStep(c, s, accepted)
}

// EditPhase 编辑阶段内容
// @Summary 以新内容替换当前审阅单元的有效内容
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param phase path string true "阶段 plan|outline|chapter"
// @Param body body dto.EditPhaseRequest true "新内容"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/phases/{phase} [put]
func (h *SessionHandler) EditPhase(c *gin.Context) {
	var req dto.EditPhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	phase, ok := bindPhase(c)
	if !ok {
		return
	}

	s, err := h.sessions.EditPhase(c.Request.Context(), dto.BindID(c), phase, req.Content)
	if err != nil {
		respondError(c, "failed to edit phase", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// PatchPhase 以 JSON Patch 编辑阶段内容
// @Summary 对当前审阅单元的有效内容应用 RFC 6902 JSON Patch
// @Tags Sessions
// @Accept json-patch+json
// @Produce json
// @Param id path string true "会话 ID"
// @Param phase path string true "阶段 plan|outline|chapter"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/phases/{phase} [patch]
func (h *SessionHandler) PatchPhase(c *gin.Context) {
	phase, ok := bindPhase(c)
	if !ok {
		return
	}
	patch, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		dto.BadRequest(c, "failed to read request body")
		return
	}

	s, err := h.sessions.PatchPhase(c.Request.Context(), dto.BindID(c), phase, patch)
	if err != nil {
		respondError(c, "failed to patch phase", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// RegenerateChapter 重新生成章节
// @Summary 重新生成当前审阅的章节
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Param index path int true "章节序号"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/chapters/{index}/regenerate [post]
func (h *SessionHandler) RegenerateChapter(c *gin.Context) {
	index, ok := dto.BindChapterIndex(c)
	if !ok {
		dto.BadRequest(c, "chapter index must be a non-negative integer")
		return
	}
	s, err := h.sessions.RegenerateChapter(c.Request.Context(), dto.BindID(c), index)
	if err != nil {
		respondError(c, "failed to regenerate chapter", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// RetryFailedChapters 重试批次中失败的章节
// @Summary 重新并发生成失败章节
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/chapters/retry-failed [post]
func (h *SessionHandler) RetryFailedChapters(c *gin.Context) {
	s, err := h.sessions.RetryFailedChapters(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, "failed to retry failed chapters", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// Retry 从失败状态恢复
// @Summary 从 failed 恢复到失败前的状态
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/retry [post]
func (h *SessionHandler) Retry(c *gin.Context) {
	s, err := h.sessions.Retry(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, "failed to retry session", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// UpdateAiConfig 更换会话级模型凭据
// @Summary 更换会话级模型凭据
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param body body dto.AiConfigRequest true "模型凭据"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/ai-config [put]
func (h *SessionHandler) UpdateAiConfig(c *gin.Context) {
	var req dto.AiConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	s, err := h.sessions.UpdateAiConfig(c.Request.Context(), dto.BindID(c), req.ToCredential())
	if err != nil {
		respondError(c, "failed to update ai config", err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

// AssembleScript 组装剧本
// @Summary 组装已完成会话的剧本
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.ScriptResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/sessions/{id}/assemble [post]
func (h *SessionHandler) AssembleScript(c *gin.Context) {
	script, err := h.sessions.AssembleScript(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, "failed to assemble script", err)
		return
	}
	dto.Success(c, dto.ToScriptResponse(script))
}

func (h *SessionHandler) respondStep(c *gin.Context, s *entity.AuthoringSession, accepted bool) {
	if accepted {
		logger.Info(c.Request.Context(), "authoring step queued", "session_id", s.ID)
		dto.Accepted(c, dto.ToJobAcceptedResponse(s))
		return
	}
	dto.Success(c, dto.ToSessionResponse(s))
}

func bindPhase(c *gin.Context) (entity.Phase, bool) {
	phase := dto.BindPhase(c)
	if _, ok := phase.ReviewState(); !ok {
		dto.BadRequest(c, "unknown phase: "+string(phase))
		return "", false
	}
	return phase, true
}
