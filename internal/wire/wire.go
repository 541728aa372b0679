//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"z-script-ai-api/internal/application/authoring"
	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/infrastructure/llm"
	"z-script-ai-api/internal/infrastructure/messaging"
	"z-script-ai-api/internal/infrastructure/persistence/postgres"
	"z-script-ai-api/internal/infrastructure/persistence/redis"
	"z-script-ai-api/internal/interfaces/http/handler"
	"z-script-ai-api/internal/interfaces/http/middleware"
	"z-script-ai-api/internal/interfaces/http/router"
	"z-script-ai-api/internal/workflow/port"
	"z-script-ai-api/internal/workflow/prompt"
)

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		wire.Struct(new(PostgresOnlyDataLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker 所需的编排器与 Redis 客户端
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		AuthoringSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		AuthoringSet,
		RouterSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewSessionRepository,
	postgres.NewScriptConfigRepository,
	postgres.NewScriptRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
	wire.Bind(new(repository.ScriptRepository), new(*postgres.ScriptRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	ProvideScriptConfigCache,
	ProvideCachedScriptConfigRepository,
	redis.NewRateLimiter,
	wire.Bind(new(repository.ScriptConfigRepository), new(*redis.CachedScriptConfigRepository)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(authoring.JobPublisher), new(*messaging.Producer)),
)

// AuthoringSet LLM 与创作编排提供者集合
var AuthoringSet = wire.NewSet(
	ProvideRouting,
	ProvideLLMFactory,
	ProvideFallbackGenerator,
	prompt.NewRegistry,
	prompt.NewBuilder,
	ProvideOrchestrator,
	wire.Bind(new(port.PromptBuilder), new(*prompt.Builder)),
	wire.Bind(new(port.GeneratorFactory), new(*llm.Factory)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideDispatcher,
	ProvideHealthHandler,
	handler.NewSessionHandler,
	handler.NewScriptConfigHandler,
	handler.NewScriptHandler,
	wire.Bind(new(handler.SessionService), new(*authoring.Orchestrator)),
	wire.Bind(new(handler.SessionDispatcher), new(*authoring.Dispatcher)),
	wire.Bind(new(handler.ScriptReader), new(*authoring.Orchestrator)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
