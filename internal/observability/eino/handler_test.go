package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "z-script-ai-api/internal/domain/service"
)

func TestChatModelCallbackHandlerLifecycle(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := llmctx.WithTaskProvider(context.Background(), "plan", "openai")

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-4o-mini"}})
	if _, ok := ctx.Value(startTimeKey{}).(time.Time); !ok {
		t.Fatalf("start time should be stored in context")
	}
	_ = h.OnEnd(ctx, nil, &model.CallbackOutput{
		Message:    &schema.Message{Content: "ok"},
		TokenUsage: &model.TokenUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	})
	_ = h.OnError(ctx, nil, errors.New("boom"))
}

func TestModelNameFallsBackToContext(t *testing.T) {
	ctx := llmctx.WithModel(context.Background(), "ctx-model")
	if got := modelName(ctx, nil); got != "ctx-model" {
		t.Fatalf("got %q", got)
	}
	if got := modelNameFromOutput(ctx, &model.CallbackOutput{Config: &model.Config{Model: "cfg"}}); got != "cfg" {
		t.Fatalf("got %q", got)
	}
	if elapsedSeconds(context.Background()) != 0 {
		t.Fatalf("missing start time should yield 0")
	}
}
