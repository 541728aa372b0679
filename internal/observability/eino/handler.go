// Package eino 将 Eino ChatModel 回调接入追踪与指标
package eino

import (
	"context"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	llmctx "z-script-ai-api/internal/domain/service"
	"z-script-ai-api/pkg/metrics"
)

// Init 注册进程级 ChatModel 回调，重复调用只生效一次
var Init = sync.OnceFunc(func() {
	einocb.AppendGlobalHandlers(cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Handler())
})

// startTimeKey 在 Context 中保存调用开始时间，OnEnd/OnError 据此计算耗时
type startTimeKey struct{}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("llm.task", llmctx.TaskFromContext(ctx)),
				attribute.String("llm.provider", llmctx.ProviderFromContext(ctx)),
				attribute.String("llm.model", modelName(ctx, input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			task := llmctx.TaskFromContext(ctx)
			provider := llmctx.ProviderFromContext(ctx)
			name := modelNameFromOutput(ctx, output)

			metrics.LLMCallTotal.WithLabelValues(task, provider, name, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(task, provider, name).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				promptTokens := output.TokenUsage.PromptTokens
				completionTokens := output.TokenUsage.CompletionTokens
				metrics.LLMTokensUsed.WithLabelValues(task, provider, name, "prompt").Add(float64(promptTokens))
				metrics.LLMTokensUsed.WithLabelValues(task, provider, name, "completion").Add(float64(completionTokens))
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", promptTokens),
					attribute.Int("llm.completion_tokens", completionTokens),
				)
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			task := llmctx.TaskFromContext(ctx)
			provider := llmctx.ProviderFromContext(ctx)
			name := llmctx.ModelFromContext(ctx)

			metrics.LLMCallTotal.WithLabelValues(task, provider, name, "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(task, provider, name).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}

func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelName(ctx context.Context, in *model.CallbackInput) string {
	if in != nil && in.Config != nil && in.Config.Model != "" {
		return in.Config.Model
	}
	return llmctx.ModelFromContext(ctx)
}

func modelNameFromOutput(ctx context.Context, out *model.CallbackOutput) string {
	if out != nil && out.Config != nil && out.Config.Model != "" {
		return out.Config.Model
	}
	return llmctx.ModelFromContext(ctx)
}
