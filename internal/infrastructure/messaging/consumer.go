package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

var (
	errMaxRetries  = errors.New("message exceeded max retries")
	errSessionBusy = errors.New("session is being processed by another worker")
)

// MessageHandler 消息处理函数；返回错误时消息保留在 pending 中等待重投
type MessageHandler func(ctx context.Context, msg *Message) error

// outcome 单条消息的处理结果
type outcome string

const (
	outcomeSuccess   outcome = "success"
	outcomeInvalid   outcome = "invalid"
	outcomeUnhandled outcome = "unhandled"
	outcomeFailed    outcome = "failed"
	outcomeBusy      outcome = "busy"
)

// acked 这些结果直接确认，不再重投
func (o outcome) acked() bool {
	return o == outcomeSuccess || o == outcomeInvalid || o == outcomeUnhandled
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	// BatchSize 单次 XREADGROUP 读取条数
	BatchSize int64
	Backoff   BackoffConfig
	// Locker 非空时同一会话的消息串行处理
	Locker SessionLocker
}

// Consumer 消费者组中的单个消费者
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	// reclaimIdle 其他消费者的消息空闲超过该时长才接管
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	running  bool
	stopCh   chan struct{}
}

// NewConsumer 创建消息消费者，未设置的参数取默认值
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return &Consumer{
		client:      client,
		cfg:         cfg,
		reclaimIdle: max(5*time.Minute, 2*cfg.Backoff.Max),
		handlers:    make(map[string]MessageHandler),
		stopCh:      make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册处理器，重复注册覆盖旧值
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

func (c *Consumer) lookup(msgType string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[msgType]
	return h, ok
}

// Start 确保消费者组存在并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("consumer already running")
	}

	err := c.client.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.cfg.Group, err)
	}

	c.running = true
	go c.loop(ctx)
	return nil
}

// Stop 通知消费循环退出
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// pause 等待 d 或提前退出
func (c *Consumer) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-c.stopCh:
	case <-t.C:
	}
}

func (c *Consumer) loop(ctx context.Context) {
	logger.Info(ctx, "consumer started",
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.ConsumerName,
	)
	defer logger.Info(ctx, "consumer stopped", "consumer", c.cfg.ConsumerName)

	nextReclaim := time.Now()
	for !c.stopped(ctx) {
		c.retryDue(ctx)
		if now := time.Now(); !now.Before(nextReclaim) {
			c.reclaimStale(ctx)
			nextReclaim = now.Add(c.cfg.ClaimInterval)
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{string(c.cfg.Stream), ">"},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil), err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			logger.Error(ctx, "failed to read from stream", err, "stream", c.cfg.Stream)
			c.pause(ctx, time.Second)
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.process(ctx, xmsg)
			}
		}
	}
}

// messageContext 把任务关联的会话、请求与追踪标识带入日志上下文
func messageContext(ctx context.Context, msg *Message) context.Context {
	ctx = logger.WithSession(ctx, msg.SessionID)
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)
	if msg.RequestID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, msg.RequestID)
	}
	if msg.TraceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, msg.TraceID)
	}
	return ctx
}

// dispatch 在会话锁内调用处理器，不涉及流操作
func (c *Consumer) dispatch(ctx context.Context, msg *Message) (outcome, error) {
	handler, ok := c.lookup(msg.Type)
	if !ok {
		return outcomeUnhandled, nil
	}

	if c.cfg.Locker != nil && msg.SessionID != "" {
		release, locked, err := c.cfg.Locker.TryLock(ctx, msg.SessionID)
		if err != nil {
			return outcomeFailed, err
		}
		if !locked {
			return outcomeBusy, errSessionBusy
		}
		defer release()
	}

	if err := handler(ctx, msg); err != nil {
		return outcomeFailed, err
	}
	return outcomeSuccess, nil
}

func (c *Consumer) process(ctx context.Context, xmsg redis.XMessage) {
	stream := string(c.cfg.Stream)
	ctx, span := tracer.Start(ctx, "messaging.Process",
		trace.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decodeMessage(xmsg)
	if err != nil {
		logger.Error(ctx, "invalid message format", err, "message_id", xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(stream, string(outcomeInvalid)).Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = messageContext(ctx, msg)
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("session_id", msg.SessionID),
	)

	result, err := c.dispatch(ctx, msg)
	metrics.RedisStreamProcessed.WithLabelValues(stream, string(result)).Inc()
	switch {
	case result == outcomeUnhandled:
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
	case result == outcomeBusy:
		logger.Info(ctx, "session busy, message left pending", "message_id", msg.ID)
	case err != nil:
		tracer.RecordError(span, err)
		logger.Error(ctx, "handler failed", err, "message_id", msg.ID, "type", msg.Type)
	}

	if result.acked() {
		c.ack(ctx, xmsg.ID)
		return
	}
	c.handleFailure(ctx, xmsg.ID, msg, err)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.cfg.Stream), string(c.cfg.Group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}
