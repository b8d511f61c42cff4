package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradepilot/internal/agent"
	"tradepilot/internal/config"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/gateway/similarity"
	"tradepilot/internal/logger"
	"tradepilot/internal/market"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/scheduler"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/store"
	"tradepilot/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与周期任务。
type App struct {
	cfg      *config.Config
	store    store.Store
	memory   *similarity.SQLiteStore
	locker   lock.Locker
	service  *agent.Service
	state    *agent.RuntimeState
	calendar *market.Calendar
	matcher  *sentinel.Matcher
	notifier notifier.TextNotifier
	http     *api.Server
	tasks    []scheduledTask
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与全部周期任务，ctx 结束后释放资源。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	if a.Summary != nil {
		a.Summary.Print()
		if a.notifier != nil {
			if err := a.notifier.SendText(ctx, a.Summary.Message(time.Now()).Render()); err != nil {
				logger.Warnf("启动通知发送失败: %v", err)
			}
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	runImmediately := a.cfg.Scheduler.RunImmediately
	for _, st := range a.tasks {
		st := st
		group.Go(func() error {
			scheduler.Every(ctx, st.task, st.interval, runImmediately)
			return nil
		})
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyTrading 热更新策略阈值，不改变自主交易开关。
func (a *App) ApplyTrading(tc config.TradingConfig) {
	if a == nil || a.state == nil {
		return
	}
	a.state.SetParams(agent.ParamsFromConfig(tc))
	if a.calendar != nil {
		a.calendar.SetIgnoreMarketHours(tc.IgnoreMarketHours)
	}
	if a.matcher != nil {
		a.matcher.SetThreshold(tc.SentinelThreshold)
	}
	logger.Infof("交易参数已热更新: max_positions=%d min_sentiment=%.2f tp=%.2f%% sl=%.2f%%",
		tc.MaxPositions, tc.MinSentiment, tc.TakeProfitPct, tc.StopLossPct)
}

// Service exposes the control surface (for tests and embedding).
func (a *App) Service() *agent.Service {
	if a == nil {
		return nil
	}
	return a.service
}

func (a *App) TaskNames() []string {
	names := make([]string, 0, len(a.tasks))
	for _, st := range a.tasks {
		names = append(names, st.task.Name())
	}
	return names
}

func (a *App) close() {
	if a.memory != nil {
		if err := a.memory.Close(); err != nil {
			logger.Warnf("关闭记忆库失败: %v", err)
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			logger.Warnf("关闭锁失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭数据库失败: %v", err)
		}
	}
	a.memory, a.locker, a.store = nil, nil, nil
}
