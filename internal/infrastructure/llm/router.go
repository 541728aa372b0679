package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/internal/config"
	llmctx "z-script-ai-api/internal/domain/service"
	wfmodel "z-script-ai-api/internal/workflow/model"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

// FallbackLocale 既无精确匹配也无默认配置时使用的语言
const FallbackLocale = "en"

var builtinLocaleDirectives = map[string]string{
	"en": "Respond in English. All generated text values must be written in English.",
	"zh": "请使用简体中文回答，所有生成的文本内容都必须使用简体中文。",
}

// Sender 路由链中单个 Provider 的最小能力
type Sender interface {
	Send(ctx context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error)
	ValidateCredential() error
}

// Router 按任务解析路由并在 Provider 之间故障转移
type Router struct {
	routing  *config.RoutingConfig
	adapters map[string]Sender
	order    []string
}

// NewRouter 由路由配置与已构建的适配器创建路由器
func NewRouter(routing *config.RoutingConfig, adapters map[string]Sender) (*Router, error) {
	if routing == nil {
		return nil, fmt.Errorf("routing config is nil")
	}
	if err := routing.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		routing:  routing,
		adapters: make(map[string]Sender, len(adapters)),
	}
	for _, p := range routing.Providers {
		if a, ok := adapters[p.Name]; ok && a != nil {
			r.adapters[p.Name] = a
			r.order = append(r.order, p.Name)
		}
	}
	return r, nil
}

// ResolveRoute 返回任务对应的路由；任务为空或未命中时回退到 default
func (r *Router) ResolveRoute(task string) config.TaskRoute {
	t := strings.TrimSpace(task)
	if t != "" {
		if route, ok := r.routing.Routes[t]; ok {
			return route
		}
	}
	return r.routing.Routes[config.DefaultRouteName]
}

// MergeParams temperature/maxTokens 以请求为准；路由设置了 model 时覆盖请求的 model
func MergeParams(req wfmodel.GenerationRequest, route config.TaskRoute) wfmodel.GenerationRequest {
	out := req.Clone()
	if out.Temperature == nil && route.Temperature != nil {
		t := *route.Temperature
		out.Temperature = &t
	}
	if out.MaxTokens == nil && route.MaxTokens != nil {
		m := *route.MaxTokens
		out.MaxTokens = &m
	}
	if strings.TrimSpace(route.Model) != "" {
		out.Model = route.Model
	}
	return out
}

// LocaleDirective 解析语言指令：精确匹配 > 配置默认 > 固定回退
func (r *Router) LocaleDirective(locale string) string {
	if d, ok := r.directiveFor(strings.TrimSpace(locale)); ok {
		return d
	}
	if d, ok := r.directiveFor(strings.TrimSpace(r.routing.DefaultLocale)); ok {
		return d
	}
	d, _ := r.directiveFor(FallbackLocale)
	return d
}

func (r *Router) directiveFor(locale string) (string, bool) {
	if locale == "" {
		return "", false
	}
	if d, ok := r.routing.Locales[locale]; ok && strings.TrimSpace(d) != "" {
		return d, true
	}
	if d, ok := builtinLocaleDirectives[locale]; ok {
		return d, true
	}
	return "", false
}

// InjectLocaleDirective 将语言指令置于系统提示词之前
func (r *Router) InjectLocaleDirective(req wfmodel.GenerationRequest, locale string) wfmodel.GenerationRequest {
	out := req.Clone()
	directive := r.LocaleDirective(locale)
	if directive == "" {
		return out
	}
	if strings.TrimSpace(out.SystemPrompt) == "" {
		out.SystemPrompt = directive
		return out
	}
	out.SystemPrompt = directive + "\n\n" + out.SystemPrompt
	return out
}

// Send 解析路由、合并参数、注入语言指令后按链路依次调用
func (r *Router) Send(ctx context.Context, req wfmodel.GenerationRequest) (*wfmodel.GenerationResult, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		task = config.DefaultRouteName
	}
	ctx, span := tracer.Start(ctx, "llm.Router.Send",
		trace.WithAttributes(attribute.String("llm.task", task)))
	defer span.End()
	ctx = llmctx.WithTask(ctx, task)

	route := r.ResolveRoute(req.Task)
	primary := MergeParams(req, route)
	primary = r.InjectLocaleDirective(primary, req.Locale)

	chain := route.Chain()
	attempts := make([]ProviderAttempt, 0, len(chain))
	for i, name := range chain {
		adapter, ok := r.adapters[name]
		if !ok {
			attempts = append(attempts, ProviderAttempt{
				Provider: name,
				Error:    fmt.Sprintf("%s: %s", ErrProviderNotFound.Error(), name),
			})
			logger.Warn(ctx, "llm provider not found, trying next", "task", task, "provider", name)
			continue
		}

		hop := primary
		if i > 0 {
			// 回退 Provider 使用自身默认模型
			hop.Model = ""
		}
		res, err := adapter.Send(ctx, hop)
		if err == nil {
			span.SetAttributes(attribute.String("llm.provider", name), attribute.Int("llm.failovers", len(attempts)))
			return res, nil
		}
		if !IsRetryable(err) {
			tracer.RecordError(span, err)
			return nil, err
		}

		attempts = append(attempts, attemptFrom(name, err))
		metrics.LLMFailoverTotal.WithLabelValues(task, name).Inc()
		logger.Warn(ctx, "llm provider failed, failing over",
			"task", task,
			"provider", name,
			"hop", i+1,
			"chain_length", len(chain),
			"error", err.Error(),
		)
	}

	aggErr := &AggregateRoutingError{Task: task, Attempts: attempts}
	tracer.RecordError(span, aggErr)
	return nil, aggErr
}

// ValidateCredential 逐个校验所有 Provider 凭据，返回第一个失败
func (r *Router) ValidateCredential() error {
	if len(r.order) == 0 {
		return fmt.Errorf("router has no providers")
	}
	for _, name := range r.order {
		if err := r.adapters[name].ValidateCredential(); err != nil {
			return err
		}
	}
	return nil
}

// Providers 已构建的 Provider 名称（配置顺序）
func (r *Router) Providers() []string {
	return append([]string(nil), r.order...)
}

// IsAggregateRoutingError 判断是否为整链失败
func IsAggregateRoutingError(err error) bool {
	var agg *AggregateRoutingError
	return errors.As(err, &agg)
}
