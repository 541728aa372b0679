package service

import (
	"context"
	"testing"
)

func TestLLMContextValues(t *testing.T) {
	ctx := WithTaskProvider(context.Background(), " chapter ", "openai")
	ctx = WithModel(ctx, "gpt-4o-mini")
	if got := TaskFromContext(ctx); got != "chapter" {
		t.Fatalf("task = %q", got)
	}
	if got := ProviderFromContext(ctx); got != "openai" {
		t.Fatalf("provider = %q", got)
	}
	if got := ModelFromContext(ctx); got != "gpt-4o-mini" {
		t.Fatalf("model = %q", got)
	}
}

func TestLLMContextDefaults(t *testing.T) {
	ctx := WithTask(context.Background(), "   ")
	if got := TaskFromContext(ctx); got != "unknown" {
		t.Fatalf("blank task should fall back to unknown, got %q", got)
	}
	if got := ProviderFromContext(context.Background()); got != "unknown" {
		t.Fatalf("provider = %q", got)
	}
}
