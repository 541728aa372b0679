package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/interfaces/http/dto"
	"z-script-ai-api/pkg/errors"
)

// ScriptConfigHandler 剧本配置处理器
type ScriptConfigHandler struct {
	configs repository.ScriptConfigRepository
}

// NewScriptConfigHandler 创建剧本配置处理器
func NewScriptConfigHandler(configs repository.ScriptConfigRepository) *ScriptConfigHandler {
	return &ScriptConfigHandler{configs: configs}
}

// CreateScriptConfig 创建剧本配置
// @Summary 创建剧本配置
// @Tags ScriptConfigs
// @Accept json
// @Produce json
// @Param body body dto.CreateScriptConfigRequest true "剧本配置"
// @Success 201 {object} dto.Response[dto.ScriptConfigResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/script-configs [post]
func (h *ScriptConfigHandler) CreateScriptConfig(c *gin.Context) {
	var req dto.CreateScriptConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	cfg := req.ToScriptConfigEntity(uuid.NewString())
	if err := h.configs.Create(c.Request.Context(), cfg); err != nil {
		respondError(c, "failed to create script config", err)
		return
	}
	dto.Created(c, dto.ToScriptConfigResponse(cfg))
}

// GetScriptConfig 获取剧本配置
// @Summary 获取剧本配置
// @Tags ScriptConfigs
// @Produce json
// @Param id path string true "配置 ID"
// @Success 200 {object} dto.Response[dto.ScriptConfigResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/script-configs/{id} [get]
func (h *ScriptConfigHandler) GetScriptConfig(c *gin.Context) {
	id := dto.BindID(c)
	cfg, err := h.configs.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to get script config", err)
		return
	}
	if cfg == nil {
		respondError(c, "failed to get script config", errors.Newf(errors.CodeScriptConfigNotFound, "script config %s not found", id))
		return
	}
	dto.Success(c, dto.ToScriptConfigResponse(cfg))
}

// ScriptReader 已组装剧本的读取能力
type ScriptReader interface {
	GetScript(ctx context.Context, id string) (*entity.Script, error)
}

// ScriptHandler 剧本处理器
type ScriptHandler struct {
	scripts ScriptReader
}

// NewScriptHandler 创建剧本处理器
func NewScriptHandler(scripts ScriptReader) *ScriptHandler {
	return &ScriptHandler{scripts: scripts}
}

// GetScript 获取剧本
// @Summary 获取组装完成的剧本
// @Tags Scripts
// @Produce json
// @Param id path string true "剧本 ID"
// @Success 200 {object} dto.Response[dto.ScriptResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/scripts/{id} [get]
func (h *ScriptHandler) GetScript(c *gin.Context) {
	script, err := h.scripts.GetScript(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, "failed to get script", err)
		return
	}
	dto.Success(c, dto.ToScriptResponse(script))
}
