// Package llm 封装对 LLM Provider 的调用、重试与多 Provider 路由
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-script-ai-api/internal/config"
	llmctx "z-script-ai-api/internal/domain/service"
	wfmodel "z-script-ai-api/internal/workflow/model"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
)

// 可重试的 HTTP 状态码
var retryableStatus = map[int]struct{}{
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// OpenAI 兼容客户端的错误文本形如 "error, status code: 429, status: 429 Too Many Requests, message: ..."
var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// Sleeper 可注入的退避等待
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AdapterOption 适配器选项
type AdapterOption func(*Adapter)

// WithSleeper 替换退避等待实现（测试用）
func WithSleeper(s Sleeper) AdapterOption {
	return func(a *Adapter) {
		if s != nil {
			a.sleep = s
		}
	}
}

// Adapter 单个 Provider 的调用封装，负责重试与退避
type Adapter struct {
	name   string
	model  string
	apiKey string
	chat   model.BaseChatModel

	maxRetries int
	baseDelay  time.Duration
	multiplier float64
	sleep      Sleeper
}

// NewAdapter 基于已构建的 ChatModel 创建适配器
func NewAdapter(cfg config.ProviderConfig, chat model.BaseChatModel, retry config.RetryConfig, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		name:       cfg.Name,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		chat:       chat,
		maxRetries: retry.EffectiveMaxRetries(),
		baseDelay:  retry.EffectiveBaseDelay(),
		multiplier: retry.EffectiveMultiplier(),
		sleep:      contextSleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name Provider 名称
func (a *Adapter) Name() string { return a.name }

// DefaultModel Provider 默认模型
func (a *Adapter) DefaultModel() string { return a.model }

// ValidateCredential 校验凭据形态，不发起网络请求
func (a *Adapter) ValidateCredential() error {
	return ValidateAPIKey(a.name, a.apiKey)
}

// BackoffDelay 第 attempt 次重试前的等待时长（attempt 从 1 开始）
func (a *Adapter) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(a.baseDelay) * math.Pow(a.multiplier, float64(attempt-1))
	return time.Duration(d)
}

// Send 发送生成请求；总尝试次数为 1+maxRetries
func (a *Adapter) Send(ctx context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error) {
	if a.chat == nil {
		return nil, &ProviderError{Provider: a.name, Err: fmt.Errorf("chat model not configured")}
	}

	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = a.model
	}
	msgs := buildMessages(req)
	opts := buildOptions(req, modelName)

	ctx = llmctx.WithModel(llmctx.WithProvider(ctx, a.name), modelName)

	var lastErr *ProviderError
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			metrics.LLMRetryTotal.WithLabelValues(a.name).Inc()
			if err := a.sleep(ctx, a.BackoffDelay(attempt)); err != nil {
				break
			}
		}

		start := time.Now()
		out, err := a.generate(ctx, msgs, opts)
		elapsed := time.Since(start)

		if err == nil {
			usage := usageOf(out)
			a.logAttempt(ctx, modelName, attempt, elapsed, usage, nil)
			return &wfmodel.GenerationResult{
				Content:  out.Content,
				Usage:    usage,
				Elapsed:  elapsed,
				Provider: a.name,
				Model:    modelName,
			}, nil
		}

		status, retryable := classify(err)
		a.logAttempt(ctx, modelName, attempt, elapsed, wfmodel.TokenUsage{}, err)
		lastErr = &ProviderError{
			Provider:   a.name,
			StatusCode: status,
			RetryCount: attempt,
			Retryable:  retryable,
			Err:        err,
		}
		if !retryable {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		return nil, &ProviderError{Provider: a.name, Retryable: false, Err: ctx.Err()}
	}
	return nil, lastErr
}

func (a *Adapter) generate(ctx context.Context, msgs []*schema.Message, opts []model.Option) (*schema.Message, error) {
	cbCtx := callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      a.name,
		Type:      "OpenAICompatible",
		Component: components.ComponentOfChatModel,
	})
	out, err := a.chat.Generate(cbCtx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

// logAttempt 日志输出失败不影响调用流程
func (a *Adapter) logAttempt(ctx context.Context, modelName string, attempt int, elapsed time.Duration, usage wfmodel.TokenUsage, err error) {
	defer func() { _ = recover() }()

	args := []any{
		"provider", a.name,
		"model", modelName,
		"attempt", attempt + 1,
		"latency_ms", elapsed.Milliseconds(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	}
	if err != nil {
		args = append(args, "error", err.Error())
		logger.Warn(ctx, "llm attempt failed", args...)
		return
	}
	logger.Info(ctx, "llm attempt succeeded", args...)
}

func buildMessages(req wfmodel.GenerationRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))
	return msgs
}

func buildOptions(req wfmodel.GenerationRequest, modelName string) []model.Option {
	opts := make([]model.Option, 0, 3)
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}
	return opts
}

func usageOf(msg *schema.Message) wfmodel.TokenUsage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return wfmodel.TokenUsage{}
	}
	u := msg.ResponseMeta.Usage
	return wfmodel.NewTokenUsage(u.PromptTokens, u.CompletionTokens)
}

// classify 提取状态码并判断是否可重试
func classify(err error) (*int, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return nil, true
	}
	if errors.Is(err, context.Canceled) {
		return nil, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, true
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			_, retryable := retryableStatus[code]
			return &code, retryable
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return nil, true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return nil, true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection reset", "connection refused", "broken pipe", "unexpected eof", "no such host", "i/o timeout", "tls handshake"} {
		if strings.Contains(msg, hint) {
			return nil, true
		}
	}
	return nil, false
}
