package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
)

const pendingScanSize = 20

// handleFailure 达到重试上限移入死信队列，否则留在 pending 中按退避重投
func (c *Consumer) handleFailure(ctx context.Context, streamID string, msg *Message, cause error) {
	deliveries := c.deliveryCount(ctx, streamID)
	if deliveries < c.cfg.RetryLimit {
		logger.Info(ctx, "message left pending for retry", "message_id", msg.ID, "deliveries", deliveries)
		return
	}
	logger.Warn(ctx, "message moved to DLQ after max retries", "message_id", msg.ID, "deliveries", deliveries)
	c.deadLetter(ctx, msg, cause)
	c.ack(ctx, streamID)
}

// deliveryCount XPENDING 记录的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, streamID string) int {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  streamID,
		End:    streamID,
		Count:  1,
	}).Result()
	if err != nil || len(entries) == 0 {
		return 0
	}
	return int(entries[0].RetryCount)
}

// deadLetter 原样转存消息字段，并附上来源流、失败原因与时间
func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error) {
	values := msg.values()
	values[fieldOrigin] = string(c.cfg.Stream)
	values[fieldError] = cause.Error()
	values[fieldFailedAt] = time.Now().UnixMilli()

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: values,
	}).Err(); err != nil {
		logger.Error(ctx, "failed to publish DLQ message", err, "message_id", msg.ID)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), "dlq").Inc()
}

// claim 认领 pending 消息到当前消费者
func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration) ([]redis.XMessage, error) {
	return c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
}

// claimAndProcess 认领后重新处理
func (c *Consumer) claimAndProcess(ctx context.Context, id string, minIdle time.Duration) {
	claimed, err := c.claim(ctx, id, minIdle)
	if err != nil {
		logger.Error(ctx, "failed to claim pending message", err, "message_id", id)
		return
	}
	for _, xmsg := range claimed {
		c.process(ctx, xmsg)
	}
}

// claimToDLQ 认领已超过重试上限的消息并移入死信队列
func (c *Consumer) claimToDLQ(ctx context.Context, id string, minIdle time.Duration) {
	claimed, err := c.claim(ctx, id, minIdle)
	if err != nil {
		logger.Error(ctx, "failed to claim pending message for DLQ", err, "message_id", id)
		return
	}
	for _, xmsg := range claimed {
		if msg, err := decodeMessage(xmsg); err == nil {
			c.deadLetter(ctx, msg, errMaxRetries)
		}
		c.ack(ctx, xmsg.ID)
	}
}

// pendingOf 查询 pending 列表；consumer 为空时查询整个消费者组
func (c *Consumer) pendingOf(ctx context.Context, consumer string) []redis.XPendingExt {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Start:    "-",
		End:      "+",
		Count:    pendingScanSize,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error(ctx, "failed to query pending messages", err, "stream", c.cfg.Stream)
		}
		return nil
	}
	return entries
}

// retryDue 重投本消费者名下退避已到期的消息
func (c *Consumer) retryDue(ctx context.Context) {
	for _, p := range c.pendingOf(ctx, c.cfg.ConsumerName) {
		deliveries := int(p.RetryCount)
		if deliveries >= c.cfg.RetryLimit {
			c.claimToDLQ(ctx, p.ID, 0)
			continue
		}
		wait := c.cfg.Backoff.CalculateBackoff(deliveries)
		if p.Idle >= wait {
			c.claimAndProcess(ctx, p.ID, wait)
		}
	}
}

// reclaimStale 接管崩溃 worker 遗留的长时间未确认消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pendingOf(ctx, "") {
		if p.Consumer == c.cfg.ConsumerName || p.Idle < c.reclaimIdle {
			continue
		}
		if int(p.RetryCount) >= c.cfg.RetryLimit {
			c.claimToDLQ(ctx, p.ID, c.reclaimIdle)
			continue
		}
		c.claimAndProcess(ctx, p.ID, c.reclaimIdle)
	}
}

// MonitorDLQ 每分钟检查死信队列长度，超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlq := c.cfg.Stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages", "stream", dlq, "count", n)
			}
		}
	}
}
