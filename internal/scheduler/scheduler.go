package scheduler

import (
	"context"
	"time"

	"tradepilot/internal/logger"
)

// IntervalScheduler 以固定间隔执行任务，错过的时间点直接跳过，不补跑。
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewIntervalScheduler(name string, interval time.Duration, runImmediately bool) *IntervalScheduler {
	return &IntervalScheduler{
		Name:           name,
		Interval:       interval,
		RunImmediately: runImmediately,
		nowFn:          time.Now,
	}
}

// Start 阻塞运行直到 ctx 结束；task 同步执行，因此同一调度器的执行不会重叠。
func (s *IntervalScheduler) Start(ctx context.Context, task func(context.Context)) {
	if s == nil {
		return
	}
	prefix := "IntervalScheduler"
	if s.Name != "" {
		prefix = prefix + "[" + s.Name + "]"
	}
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: invalid interval=%s, exit", prefix, s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	anchor := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s run_immediately=%v at=%s",
		prefix, s.Interval, s.RunImmediately, anchor.Format(time.RFC3339))

	if s.RunImmediately {
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	}

	for {
		now := s.nowFn().UTC()
		nextAt := nextFixedTimeAfter(anchor, s.Interval, now)
		wait := nextAt.Sub(now)
		logger.Debugf("%s: 下次执行=%s (in %s) | uptime=%s",
			prefix, nextAt.Format(time.RFC3339), wait.Truncate(time.Second), now.Sub(anchor).Truncate(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("%s: ctx done, exit", prefix)
			return
		case <-timer.C:
		}
		task(ctx)
	}
}

// nextFixedTimeAfter 返回 anchor + k*interval 中严格晚于 now 的最早时间点。
func nextFixedTimeAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	anchor = anchor.UTC()
	now = now.UTC()
	if interval <= 0 {
		return now
	}
	delta := now.Sub(anchor)
	if delta < 0 {
		return anchor
	}
	k := delta / interval
	return anchor.Add((k + 1) * interval)
}
