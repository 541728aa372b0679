package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionLockPrefix = "lock:authoring:session:"

// releaseScript 仅持有者可释放
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLocker 同一会话的任务在多个 worker 之间互斥
type SessionLocker interface {
	TryLock(ctx context.Context, sessionID string) (release func(), ok bool, err error)
}

// RedisSessionLock 基于 SET NX PX 的会话锁
type RedisSessionLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionLock ttl 需覆盖一次完整的阶段生成
func NewRedisSessionLock(client *redis.Client, ttl time.Duration) *RedisSessionLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisSessionLock{client: client, ttl: ttl}
}

// SessionLockKey 会话锁的键
func SessionLockKey(sessionID string) string {
	return sessionLockPrefix + sessionID
}

// TryLock 非阻塞加锁；已被占用时 ok 为 false
func (l *RedisSessionLock) TryLock(ctx context.Context, sessionID string) (func(), bool, error) {
	key := SessionLockKey(sessionID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// 处理方的 ctx 可能已取消，释放使用独立的短超时
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
