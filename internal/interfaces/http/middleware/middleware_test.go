package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRecoveryWritesErrorEnvelope(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/api/v1/sessions/:id", func(*gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, `"error_code":"1007"`) || !strings.Contains(body, "internal server error") {
		t.Fatalf("body = %s", body)
	}
}

func TestRecoveryKeepsStartedResponse(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/stream", func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("late")
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Code != http.StatusAccepted || w.Body.String() != "partial" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestCORSCredentialsOnlyForExplicitOrigins(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		want    string
	}{
		{"wildcard", nil, ""},
		{"explicit", []string{"https://editor.example"}, "true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(CORS(config.CORSConfig{AllowedOrigins: tc.origins}))
			engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", "https://editor.example")
			w := serve(engine, req)
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tc.want {
				t.Fatalf("allow credentials = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTracingTagsSessionRoutes(t *testing.T) {
	engine := gin.New()
	engine.Use(Tracing("z-script-test")...)

	var sessionID any
	record := func(c *gin.Context) {
		sessionID = c.Request.Context().Value(logger.SessionIDKey)
		c.Status(http.StatusOK)
	}
	engine.POST("/api/v1/sessions/:id/advance", record)
	engine.GET("/api/v1/scripts/:id", record)

	serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s-9/advance", nil))
	if sessionID != "s-9" {
		t.Fatalf("session id = %v", sessionID)
	}

	sessionID = nil
	serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/scripts/sc-1", nil))
	if sessionID != nil {
		t.Fatalf("script route tagged as session: %v", sessionID)
	}
}
