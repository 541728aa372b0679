package wire

import (
	"context"
	"os"
	"strings"

	"z-script-ai-api/internal/application/authoring"
	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/internal/infrastructure/llm"
	"z-script-ai-api/internal/infrastructure/messaging"
	"z-script-ai-api/internal/infrastructure/persistence/postgres"
	"z-script-ai-api/internal/infrastructure/persistence/redis"
	"z-script-ai-api/internal/interfaces/http/handler"
	"z-script-ai-api/internal/workflow/port"
	"z-script-ai-api/pkg/logger"
)

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient         *postgres.Client
	TxManager        *postgres.TxManager
	SessionRepo      *postgres.SessionRepository
	ScriptConfigRepo *postgres.ScriptConfigRepository
	ScriptRepo       *postgres.ScriptRepository
}

// Worker job-worker 依赖容器
type Worker struct {
	Orchestrator *authoring.Orchestrator
	RedisClient  *redis.Client
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideScriptConfigCache 剧本配置专用缓存
func ProvideScriptConfigCache(client *redis.Client) *redis.Cache {
	return redis.NewCache(client, "script_config")
}

// ProvideCachedScriptConfigRepository 在 PostgreSQL 仓储外包一层读穿缓存
func ProvideCachedScriptConfigRepository(repo *postgres.ScriptConfigRepository, cache *redis.Cache, cfg *config.Config) *redis.CachedScriptConfigRepository {
	return redis.NewCachedScriptConfigRepository(repo, cache, cfg.Authoring.ConfigCacheTTL)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideRouting 解析服务端 LLM 路由
//
// 既无路由文件也无 yaml 配置且环境变量中没有凭据时返回空路由，此时会话必须自带凭据；显式配置有误直接报错。
func ProvideRouting(ctx context.Context, cfg *config.Config) (*config.RoutingConfig, error) {
	routing, err := config.ResolveRouting(cfg)
	if err == nil {
		return routing, nil
	}
	if cfg.LLM.IsEmpty() && !routingFileExists(cfg.LLM.RoutingFile) {
		logger.Warn(ctx, "server llm routing not available, sessions require their own credential", "error", err.Error())
		return &config.RoutingConfig{}, nil
	}
	return nil, err
}

func routingFileExists(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// ProvideLLMFactory 提供 Provider 适配器工厂
func ProvideLLMFactory(routing *config.RoutingConfig) *llm.Factory {
	return llm.NewFactory(routing, nil)
}

// ProvideFallbackGenerator 服务端默认 Generator；未配置 Provider 时为空
func ProvideFallbackGenerator(ctx context.Context, factory *llm.Factory, routing *config.RoutingConfig) (port.Generator, error) {
	if routing.IsEmpty() {
		return nil, nil
	}
	r, err := factory.NewRouter(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "server llm router ready", "providers", r.Providers())
	return r, nil
}

// ProvideOrchestrator 提供创作编排器
func ProvideOrchestrator(
	sessions repository.SessionRepository,
	configs repository.ScriptConfigRepository,
	scripts repository.ScriptRepository,
	prompts port.PromptBuilder,
	factory port.GeneratorFactory,
	fallback port.Generator,
	tx repository.Transactor,
	routing *config.RoutingConfig,
) *authoring.Orchestrator {
	return authoring.NewOrchestrator(sessions, configs, scripts, prompts, factory, fallback,
		authoring.WithLocale(routing.DefaultLocale),
		authoring.WithTransactor(tx),
	)
}

// ProvideDispatcher 按配置决定 advance/approve 是否走异步队列
func ProvideDispatcher(orch *authoring.Orchestrator, publisher authoring.JobPublisher, cfg *config.Config) *authoring.Dispatcher {
	return authoring.NewDispatcher(orch, publisher, cfg.Authoring.AsyncOperations)
}

// ProvideHealthHandler 登记就绪检查依赖
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rc,
	})
}
