package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradepilot/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runLog struct {
	mu   sync.Mutex
	errs []error
}

func (r *runLog) RecordRun(_ string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *runLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, anchor, nextFixedTimeAfter(anchor, time.Minute, anchor.Add(-time.Second)))
	assert.Equal(t, anchor.Add(time.Minute), nextFixedTimeAfter(anchor, time.Minute, anchor))
	assert.Equal(t, anchor.Add(3*time.Minute), nextFixedTimeAfter(anchor, time.Minute, anchor.Add(150*time.Second)))
}

func TestTask_RecoversPanic(t *testing.T) {
	rec := &runLog{}
	task := NewTask(TaskParams{Name: "panicky", Recorder: rec, Fn: func(context.Context) error {
		panic("boom")
	}})
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, 1, rec.count())

	// panic 之后下一次仍可执行
	err = task.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, rec.count())
}

func TestTask_TimeoutAbandonsRun(t *testing.T) {
	release := make(chan struct{})
	task := NewTask(TaskParams{Name: "slow", Timeout: 20 * time.Millisecond, Fn: func(context.Context) error {
		<-release
		return nil
	}})
	err := task.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// 被放弃的执行尚未结束，新的执行被跳过
	assert.ErrorIs(t, task.Run(context.Background()), ErrOverlap)

	close(release)
	assert.Eventually(t, func() bool { return !task.running.Load() }, time.Second, 5*time.Millisecond)
	var calls atomic.Int32
	task.fn = func(context.Context) error { calls.Add(1); return nil }
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTask_BreakerSkipsAfterFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := circuit.NewCircuitBreaker("flaky", 2, time.Minute).WithClock(func() time.Time { return now })
	var calls int
	task := NewTask(TaskParams{Name: "flaky", Breaker: cb, Fn: func(context.Context) error {
		calls++
		return errors.New("upstream down")
	}})

	assert.Error(t, task.Run(context.Background()))
	assert.Error(t, task.Run(context.Background()))
	assert.ErrorIs(t, task.Run(context.Background()), ErrBreakerOpen)
	assert.Equal(t, 2, calls)

	now = now.Add(2 * time.Minute)
	task.fn = func(context.Context) error { calls++; return nil }
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, circuit.StateClosed, cb.State())
}

func TestIntervalScheduler_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewIntervalScheduler("tick", 10*time.Millisecond, true).Start(ctx, func(context.Context) {
			if runs.Add(1) >= 3 {
				cancel()
			}
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestIntervalScheduler_InvalidInterval(t *testing.T) {
	var called bool
	NewIntervalScheduler("bad", 0, true).Start(context.Background(), func(context.Context) { called = true })
	assert.False(t, called)
}
