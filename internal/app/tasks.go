package app

import (
	"context"
	"time"

	"tradepilot/internal/agent"
	"tradepilot/internal/config"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/circuit"
	"tradepilot/internal/scheduler"
	"tradepilot/internal/store/model"
)

type signalGatherer interface {
	GatherSignals(ctx context.Context) (agent.SignalReport, error)
}

type cycleRunner interface {
	RunCycle(ctx context.Context, state *agent.RuntimeState) (agent.CycleReport, error)
}

type monitorRunner interface {
	RunCycle(ctx context.Context, state *agent.RuntimeState) (agent.MonitorReport, error)
}

type watchlistRunner interface {
	RunCycle(ctx context.Context) (agent.WatchlistReport, error)
}

type snapshotCapturer interface {
	Capture(ctx context.Context) (*model.PortfolioSnapshot, error)
}

type taskFuncs struct {
	signals   signalGatherer
	decision  cycleRunner
	monitor   monitorRunner
	watchlist watchlistRunner
	snapshot  snapshotCapturer
}

// scheduledTask 为一个周期任务及其间隔。
type scheduledTask struct {
	task     *scheduler.Task
	interval time.Duration
}

func buildTasks(cfg config.SchedulerConfig, state *agent.RuntimeState, fns taskFuncs) []scheduledTask {
	var out []scheduledTask
	add := func(name string, sched config.TaskSchedule, fn func(ctx context.Context) error) {
		if !sched.Enabled {
			logger.Infof("任务 %s 已禁用", name)
			return
		}
		t := scheduler.NewTask(scheduler.TaskParams{
			Name:     name,
			Timeout:  seconds(sched.TimeoutSeconds),
			Breaker:  circuit.NewCircuitBreaker(name, cfg.BreakerThreshold, seconds(cfg.BreakerCooldownSeconds)),
			Recorder: state,
			Fn:       fn,
		})
		out = append(out, scheduledTask{task: t, interval: seconds(sched.IntervalSeconds)})
	}

	add(agent.TaskSignals, cfg.Signals, func(ctx context.Context) error {
		r, err := fns.signals.GatherSignals(ctx)
		if err != nil {
			return err
		}
		logger.Infof("信号采集完成: 热门 %d 条, 历史标的 %d 条, 提醒 %d 条", r.Gathered, r.History, r.Alerts)
		return nil
	})
	add(agent.TaskDecision, cfg.Decision, func(ctx context.Context) error {
		r, err := fns.decision.RunCycle(ctx, state)
		if err != nil {
			return err
		}
		if r.Skipped != "" {
			logger.Debugf("决策周期跳过: %s", r.Skipped)
			return nil
		}
		logger.Infof("决策周期 %s 完成: 候选 %d, 开仓 %d, 跳过 %d", r.TraceID, r.Candidates, len(r.Opened), len(r.Skips))
		return nil
	})
	add(agent.TaskMonitor, cfg.Monitor, func(ctx context.Context) error {
		r, err := fns.monitor.RunCycle(ctx, state)
		if err != nil {
			return err
		}
		if len(r.Closed) > 0 || r.Errors > 0 {
			logger.Infof("持仓检查: 检查 %d, 平仓 %d, 失败 %d", r.Checked, len(r.Closed), r.Errors)
		}
		return nil
	})
	add(agent.TaskWatchlist, cfg.Watchlist, func(ctx context.Context) error {
		r, err := fns.watchlist.RunCycle(ctx)
		if err != nil {
			return err
		}
		if r.Analyzed > 0 || r.Failed > 0 {
			logger.Infof("观察名单分析: 成功 %d, 失败 %d", r.Analyzed, r.Failed)
		}
		return nil
	})
	add(agent.TaskSnapshot, cfg.Snapshot, func(ctx context.Context) error {
		_, err := fns.snapshot.Capture(ctx)
		return err
	})
	return out
}
