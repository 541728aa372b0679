package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/application/authoring"
	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/interfaces/http/handler"
	"z-script-ai-api/internal/workflow/port"
	apperrors "z-script-ai-api/pkg/errors"
)

type fakeSessions struct {
	sessions  map[string]*entity.AuthoringSession
	created   []authoring.CreateSessionInput
	patches   [][]byte
	async     bool
	requestID string
	notes     string
}

func newFakeSessions() *fakeSessions {
	s := entity.NewAuthoringSession("s-1", "cfg-1", entity.SessionModeStaged)
	s.State = entity.StatePlanReview
	s.Plan = entity.NewPhaseOutput(entity.PhasePlan, json.RawMessage(`{"tone":"悬疑"}`))
	return &fakeSessions{sessions: map[string]*entity.AuthoringSession{s.ID: s}}
}

func (f *fakeSessions) find(id string) (*entity.AuthoringSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

func (f *fakeSessions) Create(_ context.Context, in authoring.CreateSessionInput) (*entity.AuthoringSession, error) {
	if !in.Mode.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "unknown mode")
	}
	f.created = append(f.created, in)
	s := entity.NewAuthoringSession("s-new", in.ConfigID, in.Mode)
	if in.Credential != nil {
		s.AiConfig = &entity.AiConfigMeta{Provider: in.Credential.Provider, Model: in.Credential.Model}
	}
	return s, nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*entity.AuthoringSession, error) {
	return f.find(id)
}

func (f *fakeSessions) List(_ context.Context, filter *repository.SessionFilter, p repository.Pagination) (*repository.PagedResult[*entity.AuthoringSession], error) {
	var items []*entity.AuthoringSession
	for _, s := range f.sessions {
		if filter.Mode == "" || s.Mode == filter.Mode {
			items = append(items, s)
		}
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (f *fakeSessions) EditPhase(_ context.Context, id string, _ entity.Phase, content json.RawMessage) (*entity.AuthoringSession, error) {
	s, err := f.find(id)
	if err != nil {
		return nil, err
	}
	s.Plan.ApplyEdit(content)
	return s, nil
}

func (f *fakeSessions) PatchPhase(_ context.Context, id string, _ entity.Phase, patch []byte) (*entity.AuthoringSession, error) {
	f.patches = append(f.patches, patch)
	return f.find(id)
}

func (f *fakeSessions) RegenerateChapter(_ context.Context, id string, index int) (*entity.AuthoringSession, error) {
	return nil, apperrors.StateError("cannot regenerate chapter %d", index)
}

func (f *fakeSessions) RetryFailedChapters(_ context.Context, id string) (*entity.AuthoringSession, error) {
	return f.find(id)
}

func (f *fakeSessions) Retry(_ context.Context, id string) (*entity.AuthoringSession, error) {
	return f.find(id)
}

func (f *fakeSessions) UpdateAiConfig(_ context.Context, id string, cred port.EphemeralCredential) (*entity.AuthoringSession, error) {
	s, err := f.find(id)
	if err != nil {
		return nil, err
	}
	s.AiConfig = &entity.AiConfigMeta{Provider: cred.Provider, Model: cred.Model}
	return s, nil
}

func (f *fakeSessions) AssembleScript(_ context.Context, _ string) (*entity.Script, error) {
	return nil, apperrors.New(apperrors.CodeAssemblyFailed, "script is missing the dm handbook")
}

func (f *fakeSessions) Advance(_ context.Context, id, requestID string) (*entity.AuthoringSession, bool, error) {
	f.requestID = requestID
	s, err := f.find(id)
	return s, f.async, err
}

func (f *fakeSessions) Approve(_ context.Context, id string, _ entity.Phase, notes, requestID string) (*entity.AuthoringSession, bool, error) {
	f.requestID = requestID
	f.notes = notes
	s, err := f.find(id)
	return s, f.async, err
}

func (f *fakeSessions) GetScript(_ context.Context, id string) (*entity.Script, error) {
	if id != "sc-1" {
		return nil, apperrors.Newf(apperrors.CodeScriptNotFound, "script %s not found", id)
	}
	return &entity.Script{
		ID:              "sc-1",
		Title:           "雾港疑案",
		DMHandbook:      json.RawMessage(`{}`),
		PlayerHandbooks: []entity.PlayerHandbook{{Index: 1, CharacterID: "player-1", Content: json.RawMessage(`{}`)}},
		BranchStructure: json.RawMessage(`{}`),
	}, nil
}

type fakeConfigs map[string]*entity.ScriptConfig

func (f fakeConfigs) Create(_ context.Context, cfg *entity.ScriptConfig) error {
	f[cfg.ID] = cfg
	return nil
}

func (f fakeConfigs) GetByID(_ context.Context, id string) (*entity.ScriptConfig, error) {
	return f[id], nil
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, nil
}

type fakeChecker struct{ err error }

func (c fakeChecker) HealthCheck(context.Context) error { return c.err }

type testServer struct {
	engine   *gin.Engine
	sessions *fakeSessions
	configs  fakeConfigs
	limiter  *fakeLimiter
}

func newTestServer(t *testing.T, checks map[string]handler.HealthChecker) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.RequestsPerSecond = 10

	ts := &testServer{
		sessions: newFakeSessions(),
		configs:  fakeConfigs{},
		limiter:  &fakeLimiter{allow: true},
	}
	r := New(cfg, Handlers{
		Health:       handler.NewHealthHandler("test", checks),
		Session:      handler.NewSessionHandler(ts.sessions, ts.sessions),
		ScriptConfig: handler.NewScriptConfigHandler(ts.configs),
		Script:       handler.NewScriptHandler(ts.sessions),
	}, ts.limiter)
	ts.engine = r.Engine()
	return ts
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page       int `json:"page"`
		PageSize   int `json:"page_size"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
	Error *struct {
		ErrorCode string `json:"error_code"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.ErrorCode
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodPost, "/api/v1/sessions", `{"mode":"staged"}`)
	if w.Code != http.StatusBadRequest || errorCode(env) != string(apperrors.CodeInvalidParam) {
		t.Fatalf("missing configId: status=%d body=%s", w.Code, w.Body)
	}

	body := `{"configId":"cfg-1","mode":"vibe","aiConfig":{"provider":"openai","apiKey":"sk-secret-123456","model":"gpt-4o"}}`
	w, env = ts.do(t, http.MethodPost, "/api/v1/sessions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	if strings.Contains(w.Body.String(), "sk-secret") {
		t.Fatal("credential echoed in response")
	}
	var s struct {
		ID       string `json:"id"`
		Mode     string `json:"mode"`
		AiConfig struct {
			Provider string `json:"provider"`
		} `json:"aiConfigMeta"`
	}
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if s.ID != "s-new" || s.Mode != "vibe" || s.AiConfig.Provider != "openai" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if in := ts.sessions.created[0]; in.Credential == nil || in.Credential.APIKey != "sk-secret-123456" {
		t.Fatalf("credential not forwarded: %+v", in)
	}

	w, env = ts.do(t, http.MethodPost, "/api/v1/sessions", `{"configId":"cfg-1","mode":"freestyle"}`)
	if w.Code != http.StatusBadRequest || errorCode(env) != string(apperrors.CodeInvalidParam) {
		t.Fatalf("unknown mode: status=%d body=%s", w.Code, w.Body)
	}
}

func TestListSessionsPageMeta(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodGet, "/api/v1/sessions?mode=staged&page_size=5", "")
	if w.Code != http.StatusOK || env.Meta == nil {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if env.Meta.Page != 1 || env.Meta.PageSize != 5 || env.Meta.Total != 1 || env.Meta.TotalPages != 1 {
		t.Fatalf("meta = %+v", *env.Meta)
	}
	var list struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list.Sessions) != 1 || list.Sessions[0].ID != "s-1" {
		t.Fatalf("sessions = %s (%v)", env.Data, err)
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/sessions?mode=vibe", "")
	if env.Meta == nil || env.Meta.Total != 0 || env.Meta.TotalPages != 0 {
		t.Fatalf("empty list meta = %+v", env.Meta)
	}
}

func TestGetSessionErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodGet, "/api/v1/sessions/missing", "")
	if w.Code != http.StatusNotFound || errorCode(env) != string(apperrors.CodeSessionNotFound) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}

	w, env = ts.do(t, http.MethodGet, "/api/v1/sessions/s-1", "")
	if w.Code != http.StatusOK || env.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}

	w, _ = ts.do(t, http.MethodGet, "/api/v1/sessions?mode=vibe", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Fatalf("filtered list: status=%d body=%s", w.Code, w.Body)
	}
}

func TestAdvanceSyncAndAsync(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/advance", "", "X-Request-ID", "req-42")
	if w.Code != http.StatusOK || ts.sessions.requestID != "req-42" {
		t.Fatalf("sync advance: status=%d request id=%q", w.Code, ts.sessions.requestID)
	}
	if w.Header().Get("X-Request-ID") != "req-42" {
		t.Fatal("request id not echoed")
	}

	ts.sessions.async = true
	w, env := ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/advance", "")
	if w.Code != http.StatusAccepted || !strings.Contains(string(env.Data), `"status":"queued"`) {
		t.Fatalf("async advance: status=%d body=%s", w.Code, w.Body)
	}
}

func TestApproveAndEditPhase(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/phases/epilogue/approve", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown phase: status=%d", w.Code)
	}

	w, _ = ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/phases/plan/approve", `{"notes":"好"}`)
	if w.Code != http.StatusOK || ts.sessions.notes != "好" {
		t.Fatalf("approve: status=%d notes=%q", w.Code, ts.sessions.notes)
	}

	w, env := ts.do(t, http.MethodPut, "/api/v1/sessions/s-1/phases/plan", `{"content":{"tone":"轻松"}}`)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"effective":{"tone":"轻松"}`) {
		t.Fatalf("edit: status=%d body=%s", w.Code, w.Body)
	}

	patch := `[{"op":"replace","path":"/tone","value":"暗黑"}]`
	w, _ = ts.do(t, http.MethodPatch, "/api/v1/sessions/s-1/phases/plan", patch)
	if w.Code != http.StatusOK || len(ts.sessions.patches) != 1 || string(ts.sessions.patches[0]) != patch {
		t.Fatalf("patch: status=%d patches=%q", w.Code, ts.sessions.patches)
	}
}

func TestChapterRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/chapters/abc/regenerate", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad index: status=%d", w.Code)
	}
	w, env := ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/chapters/2/regenerate", "")
	if w.Code != http.StatusConflict || errorCode(env) != string(apperrors.CodeInvalidState) {
		t.Fatalf("state error: status=%d body=%s", w.Code, w.Body)
	}
	w, _ = ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/chapters/retry-failed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("retry-failed: status=%d", w.Code)
	}
	w, env = ts.do(t, http.MethodPost, "/api/v1/sessions/s-1/assemble", "")
	if w.Code != http.StatusUnprocessableEntity || errorCode(env) != string(apperrors.CodeAssemblyFailed) {
		t.Fatalf("assemble: status=%d body=%s", w.Code, w.Body)
	}
}

func TestScriptConfigAndScriptRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/script-configs", `{"title":"雾港疑案","playerCount":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid player count: status=%d", w.Code)
	}

	w, env := ts.do(t, http.MethodPost, "/api/v1/script-configs", `{"title":"雾港疑案","playerCount":4,"theme":"悬疑"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create config: status=%d body=%s", w.Code, w.Body)
	}
	var cfg struct {
		ID            string `json:"id"`
		TotalChapters int    `json:"totalChapters"`
	}
	if err := json.Unmarshal(env.Data, &cfg); err != nil || cfg.TotalChapters != 7 || ts.configs[cfg.ID] == nil {
		t.Fatalf("config = %+v err=%v", cfg, err)
	}

	w, _ = ts.do(t, http.MethodGet, "/api/v1/script-configs/"+cfg.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get config: status=%d", w.Code)
	}
	w, env = ts.do(t, http.MethodGet, "/api/v1/script-configs/nope", "")
	if w.Code != http.StatusNotFound || errorCode(env) != string(apperrors.CodeScriptConfigNotFound) {
		t.Fatalf("missing config: status=%d body=%s", w.Code, w.Body)
	}

	w, env = ts.do(t, http.MethodGet, "/api/v1/scripts/sc-1", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"characterIds":["player-1"]`) {
		t.Fatalf("get script: status=%d body=%s", w.Code, w.Body)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.limiter.allow = false

	w, env := ts.do(t, http.MethodGet, "/api/v1/sessions/s-1", "")
	if w.Code != http.StatusTooManyRequests || errorCode(env) != string(apperrors.CodeTooManyRequests) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if len(ts.limiter.keys) != 1 || !strings.HasPrefix(ts.limiter.keys[0], "ratelimit:api:") {
		t.Fatalf("keys = %v", ts.limiter.keys)
	}

	// 系统端点不限流
	if w, _ := ts.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health limited: %d", w.Code)
	}
}

func TestReadiness(t *testing.T) {
	ts := newTestServer(t, map[string]handler.HealthChecker{
		"postgres": fakeChecker{},
		"redis":    fakeChecker{err: errors.New("connection refused")},
	})
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}

	ts = newTestServer(t, map[string]handler.HealthChecker{"postgres": fakeChecker{}})
	w = httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
}
