package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock_TryLockWhileHeld(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	require.NoError(t, l.Lock(ctx, "NVDA", time.Second))
	ok, err := l.TryLock(ctx, "NVDA", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.TryLock(ctx, "AAPL", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "NVDA"))
	assert.Error(t, l.Unlock(ctx, "NVDA"))
}

func TestLocalLock_LockHonoursContext(t *testing.T) {
	l := NewLocalLock()
	require.NoError(t, l.Lock(context.Background(), "TSLA", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Lock(ctx, "TSLA", 0), context.DeadlineExceeded)
}

func TestWith_SerialisesCriticalSection(t *testing.T) {
	l := NewLocalLock()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = With(context.Background(), l, "GME", time.Second, func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
