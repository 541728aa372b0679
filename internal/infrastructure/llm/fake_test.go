package llm

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-script-ai-api/internal/config"
	wfmodel "z-script-ai-api/internal/workflow/model"
	"z-script-ai-api/internal/workflow/port"
)

type scriptedReply struct {
	content string
	err     error
}

// fakeChatModel 按顺序返回预设结果，并记录收到的消息与选项
type fakeChatModel struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   int
	inputs  [][]*schema.Message
	options []*model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	f.options = append(f.options, model.GetCommonOptions(&model.Options{}, opts...))
	idx := f.calls
	f.calls++
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	r := f.replies[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: r.content,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18},
		},
	}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (f *fakeChatModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

// fakeSender 路由测试用的 Provider
type fakeSender struct {
	name    string
	result  *wfmodel.GenerationResult
	err     error
	credErr error

	mu   sync.Mutex
	reqs []wfmodel.GenerationRequest
}

func (f *fakeSender) Send(_ context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSender) ValidateCredential() error { return f.credErr }

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func intPtr(v int) *int { return &v }

func float32Ptr(v float32) *float32 { return &v }

func testProvider(name string) config.ProviderConfig {
	return config.ProviderConfig{Name: name, APIKey: "sk-test-" + name, BaseURL: "http://localhost", Model: name + "-model"}
}

func testEphemeral() port.EphemeralCredential {
	return port.EphemeralCredential{Provider: "p2", APIKey: "sk-session-key"}
}
