// Package lock 提供按标的加锁：单实例用进程内互斥，多实例部署用 Redis。
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker 为按 key 的互斥锁。
type Locker interface {
	// Lock 阻塞直到获取锁或 ctx 结束。
	Lock(ctx context.Context, key string, ttl time.Duration) error
	// TryLock 立即返回是否获取成功。
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// With 在持有 key 锁期间执行 fn。
func With(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	if err := l.Lock(ctx, key, ttl); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		// 使用独立 ctx，避免调用方超时导致锁无法释放
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx, key)
	}()
	return fn()
}

// LocalLock 进程内实现，ttl 被忽略。
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[string]chan struct{})}
}

func (l *LocalLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLock) Lock(ctx context.Context, key string, _ time.Duration) error {
	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalLock) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	select {
	case l.slot(key) <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *LocalLock) Unlock(_ context.Context, key string) error {
	select {
	case <-l.slot(key):
		return nil
	default:
		return fmt.Errorf("lock not held: %s", key)
	}
}

func (l *LocalLock) Close() error {
	return nil
}
