// Package service 存放跨层共享的上下文约定
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyTask     llmCtxKey = "llm_task"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeyModel    llmCtxKey = "llm_model"
)

const unknown = "unknown"

func withValue(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueFrom(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknown
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

// WithTask 标记当前 LLM 调用所属的逻辑任务（plan/outline/chapter/vibe）
func WithTask(ctx context.Context, task string) context.Context {
	return withValue(ctx, llmCtxKeyTask, task)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

func WithModel(ctx context.Context, model string) context.Context {
	return withValue(ctx, llmCtxKeyModel, model)
}

func WithTaskProvider(ctx context.Context, task, provider string) context.Context {
	return WithProvider(WithTask(ctx, task), provider)
}

func TaskFromContext(ctx context.Context) string {
	return valueFrom(ctx, llmCtxKeyTask)
}

func ProviderFromContext(ctx context.Context) string {
	return valueFrom(ctx, llmCtxKeyProvider)
}

func ModelFromContext(ctx context.Context) string {
	return valueFrom(ctx, llmCtxKeyModel)
}
