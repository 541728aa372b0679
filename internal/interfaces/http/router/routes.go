package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 剧本配置
	configs := v1.Group("/script-configs")
	{
		configs.POST("", h.ScriptConfig.CreateScriptConfig)
		configs.GET("/:id", h.ScriptConfig.GetScriptConfig)
	}

	// 创作会话
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", h.Session.CreateSession)
		sessions.GET("", h.Session.ListSessions)
		sessions.GET("/:id", h.Session.GetSession)
		sessions.POST("/:id/advance", h.Session.Advance)
		sessions.POST("/:id/retry", h.Session.Retry)
		sessions.PUT("/:id/ai-config", h.Session.UpdateAiConfig)
		sessions.POST("/:id/assemble", h.Session.AssembleScript)

		// 阶段审阅与编辑
		sessions.PUT("/:id/phases/:phase", h.Session.EditPhase)
		sessions.PATCH("/:id/phases/:phase", h.Session.PatchPhase)
		sessions.POST("/:id/phases/:phase/approve", h.Session.ApprovePhase)

		// 章节
		sessions.POST("/:id/chapters/retry-failed", h.Session.RetryFailedChapters)
		sessions.POST("/:id/chapters/:index/regenerate", h.Session.RegenerateChapter)
	}

	// 剧本
	scripts := v1.Group("/scripts")
	{
		scripts.GET("/:id", h.Script.GetScript)
	}
}
