package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/workflow/port"
)

const (
	defaultEphemeralProvider = "openai"
	defaultEphemeralBaseURL  = "https://api.openai.com/v1"
	defaultEphemeralModel    = "gpt-4o-mini"
)

// ChatModelBuilder 根据 Provider 配置构建 Eino ChatModel
type ChatModelBuilder func(ctx context.Context, p config.ProviderConfig) (model.BaseChatModel, error)

// OpenAIChatModelBuilder 使用 Eino 的 OpenAI 兼容适配器
func OpenAIChatModelBuilder(ctx context.Context, p config.ProviderConfig) (model.BaseChatModel, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  p.APIKey,
		BaseURL: p.BaseURL,
		Model:   p.Model,
		Timeout: p.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", p.Name, err)
	}
	return chatModel, nil
}

// Factory 管理 Provider 适配器的构建；服务端 Provider 惰性构建并缓存
type Factory struct {
	routing *config.RoutingConfig
	build   ChatModelBuilder
	opts    []AdapterOption

	mu       sync.RWMutex
	adapters map[string]*Adapter
}

// NewFactory 创建工厂，build 为空时使用 OpenAI 兼容实现
func NewFactory(routing *config.RoutingConfig, build ChatModelBuilder, opts ...AdapterOption) *Factory {
	if build == nil {
		build = OpenAIChatModelBuilder
	}
	if routing == nil {
		routing = &config.RoutingConfig{}
	}
	return &Factory{
		routing:  routing,
		build:    build,
		opts:     opts,
		adapters: make(map[string]*Adapter),
	}
}

// Get 获取服务端配置的 Provider 适配器
func (f *Factory) Get(ctx context.Context, name string) (*Adapter, error) {
	f.mu.RLock()
	a, ok := f.adapters[name]
	f.mu.RUnlock()
	if ok {
		return a, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok = f.adapters[name]; ok {
		return a, nil
	}

	p, ok := f.routing.Provider(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	chatModel, err := f.build(ctx, p)
	if err != nil {
		return nil, err
	}
	a = NewAdapter(p, chatModel, f.routing.Retry, f.opts...)
	f.adapters[name] = a
	return a, nil
}

// NewRouter 为全部配置的 Provider 构建适配器并创建路由器
func (f *Factory) NewRouter(ctx context.Context) (*Router, error) {
	adapters := make(map[string]Sender, len(f.routing.Providers))
	for _, p := range f.routing.Providers {
		a, err := f.Get(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		adapters[p.Name] = a
	}
	return NewRouter(f.routing, adapters)
}

// NewEphemeral 为会话级临时凭据构建独立适配器，不进入缓存
//
// 未指定的 baseURL/model 优先沿用同名服务端 Provider 的配置。
func (f *Factory) NewEphemeral(ctx context.Context, cred port.EphemeralCredential) (port.Generator, port.GeneratorInfo, error) {
	p := f.resolveEphemeral(cred)
	chatModel, err := f.build(ctx, p)
	if err != nil {
		return nil, port.GeneratorInfo{}, err
	}
	a := NewAdapter(p, chatModel, f.routing.Retry, f.opts...)
	return a, port.GeneratorInfo{Provider: p.Name, Model: p.Model}, nil
}

func (f *Factory) resolveEphemeral(cred port.EphemeralCredential) config.ProviderConfig {
	name := strings.TrimSpace(cred.Provider)
	if name == "" {
		name = defaultEphemeralProvider
	}
	p := config.ProviderConfig{
		Name:    name,
		APIKey:  cred.APIKey,
		BaseURL: strings.TrimSpace(cred.BaseURL),
		Model:   strings.TrimSpace(cred.Model),
	}
	if server, ok := f.routing.Provider(name); ok {
		if p.BaseURL == "" {
			p.BaseURL = server.BaseURL
		}
		if p.Model == "" {
			p.Model = server.Model
		}
		p.TimeoutSeconds = server.TimeoutSeconds
	}
	if p.BaseURL == "" {
		p.BaseURL = defaultEphemeralBaseURL
	}
	if p.Model == "" {
		p.Model = defaultEphemeralModel
	}
	return p
}

// NewRouterFromEnvironment 无配置文件时，从环境变量构建单 Provider 路由器
func NewRouterFromEnvironment(ctx context.Context, build ChatModelBuilder, opts ...AdapterOption) (*Router, error) {
	routing, err := config.RoutingFromEnvironment()
	if err != nil {
		return nil, err
	}
	return NewFactory(routing, build, opts...).NewRouter(ctx)
}
