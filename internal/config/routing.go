package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "z-script-ai-api/pkg/errors"
)

// DefaultRouteName 兜底路由名，任何 RoutingConfig 都必须包含
const DefaultRouteName = "default"

// 重试默认值
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelayMs  = 1000
	DefaultMultiplier   = 2.0
	defaultEnvProvider  = "openai"
	defaultEnvBaseURL   = "https://api.openai.com/v1"
	defaultEnvModelName = "gpt-4o-mini"
)

// RoutingConfig 多 Provider 路由配置
type RoutingConfig struct {
	// RoutingFile 可选的 JSON 路由文件，存在时覆盖 yaml 中的 providers/routes
	RoutingFile   string               `json:"-" yaml:"routing_file" mapstructure:"routing_file"`
	Providers     []ProviderConfig     `json:"providers" yaml:"providers" mapstructure:"providers"`
	Routes        map[string]TaskRoute `json:"routes" yaml:"routes" mapstructure:"routes"`
	DefaultLocale string               `json:"defaultLocale,omitempty" yaml:"default_locale" mapstructure:"default_locale"`
	Locales       map[string]string    `json:"locales,omitempty" yaml:"locales" mapstructure:"locales"`
	Retry         RetryConfig          `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// ProviderConfig 单个 LLM Provider 配置
type ProviderConfig struct {
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	APIKey         string `json:"apiKey" yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"baseUrl,omitempty" yaml:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" yaml:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Timeout 单次调用超时
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// TaskRoute 任务到 Provider 链的映射
type TaskRoute struct {
	Provider    string   `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model       string   `json:"model,omitempty" yaml:"model" mapstructure:"model"`
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   *int     `json:"maxTokens,omitempty" yaml:"max_tokens" mapstructure:"max_tokens"`
	Fallbacks   []string `json:"fallbacks,omitempty" yaml:"fallbacks" mapstructure:"fallbacks"`
}

// Chain 返回 [provider, ...fallbacks]
func (r TaskRoute) Chain() []string {
	chain := make([]string, 0, 1+len(r.Fallbacks))
	chain = append(chain, r.Provider)
	return append(chain, r.Fallbacks...)
}

// RetryConfig Provider 内部重试策略
type RetryConfig struct {
	MaxRetries  *int    `json:"maxRetries,omitempty" yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs int     `json:"baseDelayMs,omitempty" yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	Multiplier  float64 `json:"multiplier,omitempty" yaml:"multiplier" mapstructure:"multiplier"`
}

// EffectiveMaxRetries 未配置时取默认值 3
func (r RetryConfig) EffectiveMaxRetries() int {
	if r.MaxRetries == nil || *r.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

// EffectiveBaseDelay 未配置时取 1s
func (r RetryConfig) EffectiveBaseDelay() time.Duration {
	if r.BaseDelayMs <= 0 {
		return DefaultBaseDelayMs * time.Millisecond
	}
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// EffectiveMultiplier 未配置时取 2
func (r RetryConfig) EffectiveMultiplier() float64 {
	if r.Multiplier <= 0 {
		return DefaultMultiplier
	}
	return r.Multiplier
}

// Provider 按名称查找 Provider
func (c *RoutingConfig) Provider(name string) (ProviderConfig, bool) {
	if c == nil {
		return ProviderConfig{}, false
	}
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// IsEmpty 未配置任何 Provider
func (c *RoutingConfig) IsEmpty() bool {
	return c == nil || len(c.Providers) == 0
}

// Validate 校验 Provider 唯一性、引用完整性以及 default 路由
func (c *RoutingConfig) Validate() error {
	if c == nil {
		return apperrors.ConfigurationError("routing config is nil")
	}

	names := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return apperrors.ConfigurationError("providers[%d].name is required", i)
		}
		if _, dup := names[name]; dup {
			return apperrors.ConfigurationError("providers[%d].name %q is duplicated", i, name)
		}
		names[name] = struct{}{}
	}

	if _, ok := c.Routes[DefaultRouteName]; !ok {
		return apperrors.ConfigurationError("routes.%s is required", DefaultRouteName)
	}

	for task, route := range c.Routes {
		if _, ok := names[route.Provider]; !ok {
			return apperrors.ConfigurationError("routes.%s.provider references unknown provider %q", task, route.Provider)
		}
		for j, fb := range route.Fallbacks {
			if _, ok := names[fb]; !ok {
				return apperrors.ConfigurationError("routes.%s.fallbacks[%d] references unknown provider %q", task, j, fb)
			}
		}
	}
	return nil
}

// ParseRoutingConfig 解析 JSON 路由配置；未知字段被丢弃
func ParseRoutingConfig(data []byte) (*RoutingConfig, error) {
	var cfg RoutingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "invalid routing config json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal 序列化为 JSON
func (c *RoutingConfig) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// LoadRoutingFile 读取并解析 JSON 路由文件
func LoadRoutingFile(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file %s: %w", path, err)
	}
	return ParseRoutingConfig(data)
}

// RoutingFromEnvironment 在没有配置文件时，从进程环境变量构造单 Provider 路由
//
// 读取 LLM_PROVIDER / LLM_API_KEY / LLM_BASE_URL / LLM_MODEL / LLM_LOCALE，
// LLM_API_KEY 缺失时回退到 OPENAI_API_KEY。
func RoutingFromEnvironment() (*RoutingConfig, error) {
	v := viper.New()
	_ = v.BindEnv("provider", "LLM_PROVIDER")
	_ = v.BindEnv("api_key", "LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("base_url", "LLM_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("model", "LLM_MODEL")
	_ = v.BindEnv("locale", "LLM_LOCALE")
	v.SetDefault("provider", defaultEnvProvider)
	v.SetDefault("base_url", defaultEnvBaseURL)
	v.SetDefault("model", defaultEnvModelName)

	apiKey := strings.TrimSpace(v.GetString("api_key"))
	if apiKey == "" {
		return nil, apperrors.ConfigurationError("no LLM credential found in environment")
	}

	name := strings.TrimSpace(v.GetString("provider"))
	cfg := &RoutingConfig{
		Providers: []ProviderConfig{{
			Name:    name,
			APIKey:  apiKey,
			BaseURL: strings.TrimSpace(v.GetString("base_url")),
			Model:   strings.TrimSpace(v.GetString("model")),
		}},
		Routes: map[string]TaskRoute{
			DefaultRouteName: {Provider: name},
		},
		DefaultLocale: strings.TrimSpace(v.GetString("locale")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveRouting 依次尝试：路由文件 -> yaml 中的 llm 段 -> 环境变量
func ResolveRouting(cfg *Config) (*RoutingConfig, error) {
	if cfg == nil {
		return RoutingFromEnvironment()
	}
	if path := strings.TrimSpace(cfg.LLM.RoutingFile); path != "" {
		if _, err := os.Stat(path); err == nil {
			routing, err := LoadRoutingFile(path)
			if err != nil {
				return nil, err
			}
			if routing.Retry == (RetryConfig{}) {
				routing.Retry = cfg.LLM.Retry
			}
			return routing, nil
		}
	}
	if !cfg.LLM.IsEmpty() {
		routing := cfg.LLM
		if err := routing.Validate(); err != nil {
			return nil, err
		}
		return &routing, nil
	}
	return RoutingFromEnvironment()
}
