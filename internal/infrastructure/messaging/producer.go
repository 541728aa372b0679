package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

const defaultStreamMaxLen int64 = 100000

// Producer 向 Redis Stream 投递创作任务
type Producer struct {
	client *redis.Client
	// maxLen 近似裁剪上限，防止无人消费时流无限增长
	maxLen int64
}

// NewProducer 创建生产者，maxLen <= 0 时使用默认上限
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish 以 XADD MAXLEN ~ 追加消息，返回流条目 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "messaging.Publish", trace.WithAttributes(
		attribute.String("stream", string(stream)),
		attribute.String("message.type", msg.Type),
		attribute.String("session_id", msg.SessionID),
	))
	defer span.End()

	if msg.TraceID == "" {
		msg.TraceID = tracer.TraceID(ctx)
	}
	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: msg.values(),
	}).Result()
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RedisStreamProcessed.WithLabelValues(string(stream), "publish_error").Inc()
		return "", fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(stream), "published").Inc()
	span.SetAttributes(attribute.String("stream.entry_id", entryID))
	return entryID, nil
}

// PublishAuthoringJob 投递 advance / approve 任务；任务只引用会话，凭据留在 api-gateway 进程内
func (p *Producer) PublishAuthoringJob(ctx context.Context, jobType string, job *AuthoringJobMessage) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	msg, err := NewMessage(job.JobID, jobType, job.SessionID, job)
	if err != nil {
		return "", err
	}
	msg.RequestID = job.RequestID
	return p.Publish(ctx, StreamAuthoring, msg)
}
