// Package messaging 基于 Redis Streams 的异步任务队列
package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// 任务类型
const (
	JobTypeAdvance = "authoring.advance"
	JobTypeApprove = "authoring.approve"
)

// Stream 流名称
type Stream string

const (
	StreamAuthoring Stream = "stream:authoring:jobs"
)

// DLQStream 对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

const (
	ConsumerGroupAuthoringWorker ConsumerGroup = "cg-authoring-worker"
)

// 流条目字段，逐字段存放便于 XRANGE 直接排查
const (
	fieldID         = "id"
	fieldType       = "type"
	fieldSession    = "session_id"
	fieldPayload    = "payload"
	fieldRequestID  = "request_id"
	fieldTraceID    = "trace_id"
	fieldEnqueuedAt = "enqueued_at"

	fieldOrigin   = "origin_stream"
	fieldError    = "error"
	fieldFailedAt = "failed_at"
)

// Message 一条创作任务消息
type Message struct {
	ID        string
	Type      string
	SessionID string
	Payload   json.RawMessage
	// RequestID 与 TraceID 用于把 worker 日志关联回原始 HTTP 请求
	RequestID  string
	TraceID    string
	EnqueuedAt time.Time
}

// NewMessage 创建消息，payload 会被序列化为 JSON
func NewMessage(id, msgType, sessionID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Message{
		ID:         id,
		Type:       msgType,
		SessionID:  sessionID,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// values 编码为 XADD 字段
func (m *Message) values() map[string]any {
	v := map[string]any{
		fieldID:         m.ID,
		fieldType:       m.Type,
		fieldSession:    m.SessionID,
		fieldPayload:    string(m.Payload),
		fieldEnqueuedAt: m.EnqueuedAt.UnixMilli(),
	}
	if m.RequestID != "" {
		v[fieldRequestID] = m.RequestID
	}
	if m.TraceID != "" {
		v[fieldTraceID] = m.TraceID
	}
	return v
}

// decodeMessage 从流条目还原消息；缺少 type 或 payload 的条目视为无效
func decodeMessage(xmsg redis.XMessage) (*Message, error) {
	str := func(key string) string {
		s, _ := xmsg.Values[key].(string)
		return s
	}
	msg := &Message{
		ID:        str(fieldID),
		Type:      str(fieldType),
		SessionID: str(fieldSession),
		RequestID: str(fieldRequestID),
		TraceID:   str(fieldTraceID),
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message %s has no type", xmsg.ID)
	}
	payload := str(fieldPayload)
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("message %s has invalid payload", xmsg.ID)
	}
	msg.Payload = json.RawMessage(payload)
	if msg.ID == "" {
		msg.ID = xmsg.ID
	}
	var ms int64
	if _, err := fmt.Sscan(str(fieldEnqueuedAt), &ms); err == nil && ms > 0 {
		msg.EnqueuedAt = time.UnixMilli(ms).UTC()
	}
	return msg, nil
}

// AuthoringJobMessage 创作任务载荷，只携带会话引用，不携带任何凭据
type AuthoringJobMessage struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Phase     string `json:"phase,omitempty"`
	Notes     string `json:"notes,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// BackoffConfig 重投退避
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起步，每次翻倍，上限 1 分钟
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重投前需要的最短空闲时长
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(retryCount))
	if c.Max > 0 && (d > float64(c.Max) || math.IsInf(d, 1)) {
		return c.Max
	}
	return time.Duration(d)
}
