// Package main 异步创作任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/infrastructure/messaging"
	einoobs "z-script-ai-api/internal/observability/eino"
	"z-script-ai-api/internal/wire"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	einoobs.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	stream := cfg.Messaging.RedisStream
	rdb := worker.RedisClient.Redis()
	consumer := messaging.NewConsumer(rdb, messaging.ConsumerConfig{
		Stream:        messaging.StreamAuthoring,
		Group:         messaging.ConsumerGroupAuthoringWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  stream.BlockTimeout,
		ClaimInterval: stream.ClaimInterval,
		RetryLimit:    stream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    stream.RetryBackoff.Initial,
			Max:        stream.RetryBackoff.Max,
			Multiplier: stream.RetryBackoff.Multiplier,
		},
		Locker: messaging.NewRedisSessionLock(rdb, cfg.Authoring.SessionLockTTL),
	})
	worker.Orchestrator.RegisterJobHandlers(consumer)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "stream", messaging.StreamAuthoring)

	<-ctx.Done()

	log.Info("job-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
