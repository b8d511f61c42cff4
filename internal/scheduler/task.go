package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/pkg/circuit"
)

var (
	// ErrOverlap 表示上一次执行尚未结束。
	ErrOverlap = errors.New("scheduler: previous run still in progress")
	// ErrBreakerOpen 表示熔断冷却中，本次跳过。
	ErrBreakerOpen = errors.New("scheduler: circuit breaker open")
)

// RunRecorder 记录任务执行结果，由 agent.RuntimeState 实现。
type RunRecorder interface {
	RecordRun(task string, at time.Time, err error)
}

type TaskParams struct {
	Name     string
	Timeout  time.Duration
	Breaker  *circuit.CircuitBreaker
	Recorder RunRecorder
	Fn       func(ctx context.Context) error
}

// Task 为单个周期任务的执行外壳：超时、panic 恢复、熔断与运行记录。
type Task struct {
	name     string
	timeout  time.Duration
	breaker  *circuit.CircuitBreaker
	recorder RunRecorder
	fn       func(ctx context.Context) error
	running  atomic.Bool
	now      func() time.Time
}

func NewTask(p TaskParams) *Task {
	return &Task{
		name:     p.Name,
		timeout:  p.Timeout,
		breaker:  p.Breaker,
		recorder: p.Recorder,
		fn:       p.Fn,
		now:      time.Now,
	}
}

func (t *Task) Name() string { return t.name }

// Run 执行一次任务。超时后立即返回，未结束的执行在后台完成前不会启动新的执行。
func (t *Task) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		logger.Warnf("任务 %s 上一次执行尚未结束，跳过", t.name)
		metrics.RecordTask(t.name, "skipped", 0)
		return ErrOverlap
	}
	if t.breaker != nil && !t.breaker.Allow() {
		t.running.Store(false)
		logger.Warnf("任务 %s 熔断中，跳过本次执行", t.name)
		metrics.RecordTask(t.name, "skipped", 0)
		return ErrBreakerOpen
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := t.now()
	done := make(chan error, 1)
	go func() {
		err := t.invoke(runCtx)
		t.running.Store(false)
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-runCtx.Done():
		err = fmt.Errorf("task %s abandoned: %w", t.name, runCtx.Err())
	}
	t.finish(start, err)
	return err
}

func (t *Task) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("任务 %s panic: %v\n%s", t.name, r, debug.Stack())
			err = fmt.Errorf("task %s panic: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}

func (t *Task) finish(start time.Time, err error) {
	elapsed := t.now().Sub(start)
	status := "ok"
	switch {
	case err == nil:
		if t.breaker != nil {
			t.breaker.RecordSuccess()
		}
	case errors.Is(err, context.Canceled):
		// 进程退出导致的取消不计入熔断
		status = "canceled"
	default:
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}
		logger.Errorf("任务 %s 执行失败 (%s): %v", t.name, elapsed.Truncate(time.Millisecond), err)
	}
	metrics.RecordTask(t.name, status, elapsed)
	if t.recorder != nil {
		t.recorder.RecordRun(t.name, start, err)
	}
}

// Every 用 IntervalScheduler 周期执行 task，直到 ctx 结束。
func Every(ctx context.Context, t *Task, interval time.Duration, runImmediately bool) {
	NewIntervalScheduler(t.name, interval, runImmediately).Start(ctx, func(ctx context.Context) {
		_ = t.Run(ctx)
	})
}
