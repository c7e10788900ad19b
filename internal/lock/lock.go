// Package lock 提供按作业员+日期的提交锁
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired 等待超时仍未获得锁
var ErrNotAcquired = errors.New("未能获得提交锁")

// Unlock 释放锁
type Unlock func(ctx context.Context) error

// Locker 提交锁接口
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// Key 返回作业员某日的锁键
func Key(workerID, date string) string {
	return "visitsched:lock:" + workerID + ":" + date
}

// =========================================
// RedisLocker 基于 Redis 的分布式锁
// =========================================

// releaseScript 仅当持有者仍是自己时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 使用 SET NX PX 实现的锁，带随机令牌防止误删
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Acquire 获取锁，直到成功或 ctx 结束
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("获取锁 %s 失败: %w", key, err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(key, token string) Unlock {
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return err
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("生成锁令牌失败: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// =========================================
// LocalLocker 进程内锁（单实例部署或测试）
// =========================================

// LocalLocker 按键互斥，支持 ctx 取消
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

// Acquire 获取锁，直到成功或 ctx 结束
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func(context.Context) error {
			once.Do(func() { <-ch })
			return nil
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}
