package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProviderNotFound 路由链引用了未构建的 Provider
var ErrProviderNotFound = errors.New("provider not found")

// ErrEmptyResponse 模型返回空内容
var ErrEmptyResponse = errors.New("empty llm response")

// ProviderError 单个 Provider 调用失败
type ProviderError struct {
	Provider   string
	StatusCode *int
	RetryCount int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	status := ""
	if e.StatusCode != nil {
		status = fmt.Sprintf(" status=%d", *e.StatusCode)
	}
	return fmt.Sprintf("provider %s failed after %d retries%s: %v", e.Provider, e.RetryCount, status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderAttempt 路由链中一次失败的跳转
type ProviderAttempt struct {
	Provider   string `json:"provider"`
	Error      string `json:"error"`
	StatusCode *int   `json:"statusCode,omitempty"`
	RetryCount int    `json:"retryCount"`
}

// AggregateRoutingError 整条路由链全部失败
type AggregateRoutingError struct {
	Task     string
	Attempts []ProviderAttempt
}

func (e *AggregateRoutingError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Error))
	}
	return fmt.Sprintf("all providers failed for task %q: [%s]", e.Task, strings.Join(parts, "; "))
}

// IsRetryable 错误是否允许重试或故障转移
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func attemptFrom(provider string, err error) ProviderAttempt {
	a := ProviderAttempt{Provider: provider, Error: err.Error()}
	var pe *ProviderError
	if errors.As(err, &pe) {
		a.StatusCode = pe.StatusCode
		a.RetryCount = pe.RetryCount
	}
	return a
}
