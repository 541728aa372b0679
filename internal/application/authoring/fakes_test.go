package authoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/workflow/port"
	wfmodel "z-script-ai-api/internal/workflow/model"
)

const (
	validPlan    = `{"worldOverview":"雾港","characters":[{"name":"甲","role":"侦探","relationshipSketch":"旧识"}],"coreTrick":"镜像","tone":"悬疑","era":"民国"}`
	validOutline = `{"timeline":["t"],"characterArcs":["a"],"clues":["c"],"branches":["b"],"endings":["e"],"trickMechanism":"镜像"}`
	validVibe    = `{"title":"雾港","dmHandbook":{"intro":"dm"},"playerHandbooks":[{"p":1},{"p":2}],"materials":[{"m":1},{"m":2}],"branchStructure":{"b":1}}`
)

var errProviderDown = errors.New("provider down")

// memSessionRepo 内存会话仓储，记录每次写入的快照
type memSessionRepo struct {
	mu      sync.Mutex
	records map[string]entity.SessionRecord
	writes  []entity.SessionRecord
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{records: make(map[string]entity.SessionRecord)}
}

func (r *memSessionRepo) Insert(_ context.Context, rec *entity.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("duplicate session %s", rec.ID)
	}
	r.records[rec.ID] = copyRecord(rec)
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*entity.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	out := copyRecord(&rec)
	return &out, nil
}

func (r *memSessionRepo) List(_ context.Context, filter *repository.SessionFilter, p repository.Pagination) (*repository.PagedResult[*entity.SessionRecord], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*entity.SessionRecord
	for _, rec := range r.records {
		if filter != nil && filter.Mode != "" && rec.Mode != filter.Mode {
			continue
		}
		out := copyRecord(&rec)
		items = append(items, &out)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (r *memSessionRepo) Update(_ context.Context, rec *entity.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return fmt.Errorf("session %s not found", rec.ID)
	}
	r.records[rec.ID] = copyRecord(rec)
	r.writes = append(r.writes, copyRecord(rec))
	return nil
}

func (r *memSessionRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func (r *memSessionRepo) rawPayload(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.records[id].Payload)
}

func copyRecord(rec *entity.SessionRecord) entity.SessionRecord {
	out := *rec
	out.Payload = append(json.RawMessage(nil), rec.Payload...)
	return out
}

type memConfigRepo struct {
	configs map[string]*entity.ScriptConfig
}

func (r *memConfigRepo) Create(_ context.Context, cfg *entity.ScriptConfig) error {
	r.configs[cfg.ID] = cfg
	return nil
}

func (r *memConfigRepo) GetByID(_ context.Context, id string) (*entity.ScriptConfig, error) {
	return r.configs[id], nil
}

type memScriptRepo struct {
	mu      sync.Mutex
	scripts map[string]*entity.Script
	stores  int
	err     error
}

func (r *memScriptRepo) Store(_ context.Context, s *entity.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.scripts[s.ID] = s
	r.stores++
	return nil
}

func (r *memScriptRepo) GetByID(_ context.Context, id string) (*entity.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scripts[id], nil
}

// stubPrompts 把阶段与章节序号编码进提示词，供 fakeGenerator 识别
type stubPrompts struct{}

func (stubPrompts) PlanPrompt(context.Context, wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error) {
	return &wfmodel.PhasePrompt{Prompt: "plan"}, nil
}

func (stubPrompts) OutlinePrompt(_ context.Context, _ wfmodel.ScriptSettings, plan []byte) (*wfmodel.PhasePrompt, error) {
	return &wfmodel.PhasePrompt{Prompt: "outline", SystemPrompt: string(plan)}, nil
}

func (stubPrompts) ChapterPrompt(_ context.Context, _ wfmodel.ScriptSettings, brief wfmodel.ChapterBrief) (*wfmodel.PhasePrompt, error) {
	prev := make([]string, 0, len(brief.Previous))
	for _, p := range brief.Previous {
		prev = append(prev, strconv.Itoa(p.Index))
	}
	return &wfmodel.PhasePrompt{
		Prompt:       fmt.Sprintf("chapter:%d", brief.Index),
		SystemPrompt: "previous:" + strings.Join(prev, ","),
	}, nil
}

func (stubPrompts) VibePrompt(context.Context, wfmodel.ScriptSettings) (*wfmodel.PhasePrompt, error) {
	return &wfmodel.PhasePrompt{Prompt: "vibe"}, nil
}

// fakeGenerator 按任务返回合法内容；failTasks/failChapters 中的请求返回错误
type fakeGenerator struct {
	mu           sync.Mutex
	name         string
	credErr      error
	failTasks    map[string]bool
	failChapters map[int]bool
	calls        []wfmodel.GenerationRequest
	chapterCalls map[int]int
}

func newFakeGenerator(name string) *fakeGenerator {
	return &fakeGenerator{
		name:         name,
		failTasks:    map[string]bool{},
		failChapters: map[int]bool{},
		chapterCalls: map[int]int{},
	}
}

func (g *fakeGenerator) Send(_ context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)

	if g.failTasks[req.Task] {
		return nil, errProviderDown
	}
	content := ""
	switch req.Task {
	case TaskPlan:
		content = "```json\n" + validPlan + "\n```"
	case TaskOutline:
		content = validOutline
	case TaskVibe:
		content = validVibe
	case TaskChapter:
		idx, err := strconv.Atoi(strings.TrimPrefix(req.Prompt, "chapter:"))
		if err != nil {
			return nil, err
		}
		if g.failChapters[idx] {
			return nil, errProviderDown
		}
		g.chapterCalls[idx]++
		content = fmt.Sprintf(`{"chapter":%d,"version":%d}`, idx, g.chapterCalls[idx])
	default:
		return nil, fmt.Errorf("unexpected task %q", req.Task)
	}
	return &wfmodel.GenerationResult{
		Content:  content,
		Usage:    wfmodel.NewTokenUsage(10, 5),
		Provider: g.name,
	}, nil
}

func (g *fakeGenerator) ValidateCredential() error { return g.credErr }

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGenerator) setChapterFailures(indices ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failChapters = map[int]bool{}
	for _, i := range indices {
		g.failChapters[i] = true
	}
}

// fakeFactory 为临时凭据返回预置 Generator
type fakeFactory struct {
	gen   *fakeGenerator
	creds []port.EphemeralCredential
}

func (f *fakeFactory) NewEphemeral(_ context.Context, cred port.EphemeralCredential) (port.Generator, port.GeneratorInfo, error) {
	f.creds = append(f.creds, cred)
	model := cred.Model
	if model == "" {
		model = "default-model"
	}
	return f.gen, port.GeneratorInfo{Provider: cred.Provider, Model: model}, nil
}

type testEnv struct {
	orch     *Orchestrator
	sessions *memSessionRepo
	scripts  *memScriptRepo
	gen      *fakeGenerator
	eph      *fakeGenerator
}

func newTestEnv(t *testing.T, playerCount int, withDefault bool) *testEnv {
	t.Helper()
	env := &testEnv{
		sessions: newMemSessionRepo(),
		scripts:  &memScriptRepo{scripts: map[string]*entity.Script{}},
		gen:      newFakeGenerator("server"),
		eph:      newFakeGenerator("ephemeral"),
	}
	cfg := entity.NewScriptConfig("雾港疑案", playerCount, "悬疑", "民国", "hardcore")
	cfg.ID = "cfg-1"
	configs := &memConfigRepo{configs: map[string]*entity.ScriptConfig{cfg.ID: cfg}}

	var fallback port.Generator
	if withDefault {
		fallback = env.gen
	}
	env.orch = NewOrchestrator(env.sessions, configs, env.scripts, stubPrompts{}, &fakeFactory{gen: env.eph}, fallback, WithLocale("zh"))
	return env
}

func (e *testEnv) create(t *testing.T, mode entity.SessionMode) *entity.AuthoringSession {
	t.Helper()
	s, err := e.orch.Create(context.Background(), CreateSessionInput{ConfigID: "cfg-1", Mode: mode})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

// put 直接写入任意状态的会话
func (e *testEnv) put(t *testing.T, s *entity.AuthoringSession) {
	t.Helper()
	rec, err := encodeSession(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := e.sessions.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func (e *testEnv) reload(t *testing.T, id string) *entity.AuthoringSession {
	t.Helper()
	s, err := e.orch.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return s
}

func chapterJSON(idx int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"chapter":%d,"version":0}`, idx))
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
