package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/config"
)

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions}
	defaultCORSHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
)

// CORS 跨域中间件；未配置的字段使用编辑器前端所需的默认值
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := orDefault(cfg.AllowedOrigins, []string{"*"})
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  orDefault(cfg.AllowedMethods, defaultCORSMethods),
		AllowHeaders:  orDefault(cfg.AllowedHeaders, defaultCORSHeaders),
		ExposeHeaders: []string{RequestIDHeader, TraceIDHeader},
		// 通配来源不能与 credentials 同时开启
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	})
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
