// Package model 定义工作流层的数据结构
package model

import "time"

// GenerationRequest 一次生成请求
type GenerationRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    *int
	Model        string
	// Task 逻辑任务名，用于路由解析；为空时走 default 路由
	Task   string
	Locale string
}

// Clone 浅拷贝，指针字段复制值
func (r GenerationRequest) Clone() GenerationRequest {
	out := r
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	if r.MaxTokens != nil {
		m := *r.MaxTokens
		out.MaxTokens = &m
	}
	return out
}

// TokenUsage Token 消耗三元组，Total 恒等于 Prompt+Completion
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// NewTokenUsage 构造并计算 Total
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Add 累加
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return NewTokenUsage(u.PromptTokens+other.PromptTokens, u.CompletionTokens+other.CompletionTokens)
}

// GenerationResult 一次生成结果
type GenerationResult struct {
	Content  string
	Usage    TokenUsage
	Elapsed  time.Duration
	Provider string
	Model    string
}
