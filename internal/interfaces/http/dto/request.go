package dto

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// Pagination 转为仓储分页参数
func (r PageRequest) Pagination() repository.Pagination {
	return repository.NewPagination(r.Page, r.PageSize)
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(c.Query("page_size"), 20),
	}
	req.Normalize()
	return req
}

// BindSessionFilter 从查询参数绑定会话过滤条件
//
// state 可重复或以逗号分隔。
func BindSessionFilter(c *gin.Context) *repository.SessionFilter {
	filter := &repository.SessionFilter{
		ConfigID: strings.TrimSpace(c.Query("config_id")),
		Mode:     entity.SessionMode(strings.TrimSpace(c.Query("mode"))),
	}
	for _, raw := range c.QueryArray("state") {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.States = append(filter.States, entity.SessionState(st))
			}
		}
	}
	return filter
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindID 从 URI 绑定资源 ID
func BindID(c *gin.Context) string {
	return c.Param("id")
}

// BindPhase 从 URI 绑定阶段
func BindPhase(c *gin.Context) entity.Phase {
	return entity.Phase(c.Param("phase"))
}

// BindChapterIndex 从 URI 绑定章节序号
func BindChapterIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
