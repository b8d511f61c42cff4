package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tradepilot/internal/agent"
	"tradepilot/internal/config"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/store/model"
)

type StartupSummary struct {
	Env        string
	HTTPAddr   string
	Database   string
	Oracle     string
	Lock       string
	Autonomous bool
	Portfolio  PortfolioSummary
	Trading    config.TradingConfig
	Sources    []string
	Tasks      []TaskSummary
}

type PortfolioSummary struct {
	TotalBudget     float64
	MaxPositionSize float64
	RiskTolerance   string
	Allowlist       []string
}

type TaskSummary struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
}

func newStartupSummary(cfg *config.Config, pc *model.PortfolioConfig, tasks []scheduledTask) *StartupSummary {
	s := &StartupSummary{
		Env:        cfg.App.Env,
		HTTPAddr:   cfg.App.HTTPAddr,
		Database:   cfg.Database.Type,
		Oracle:     cfg.Oracle.Provider,
		Lock:       cfg.Lock.Type,
		Autonomous: pc.IsAutonomousActive,
		Portfolio: PortfolioSummary{
			TotalBudget:     pc.TotalBudget,
			MaxPositionSize: pc.MaxPositionSize,
			RiskTolerance:   pc.RiskTolerance,
			Allowlist:       pc.Allowlist(),
		},
		Trading: cfg.Trading,
	}
	if cfg.Sources.StockTwits.Enabled {
		s.Sources = append(s.Sources, "stocktwits")
	}
	if cfg.Sources.Reddit.Enabled {
		s.Sources = append(s.Sources, "reddit:"+strings.Join(cfg.Sources.Reddit.Subreddits, "+"))
	}
	for _, st := range tasks {
		s.Tasks = append(s.Tasks, TaskSummary{Name: st.task.Name(), Interval: st.interval, Timeout: taskTimeout(cfg.Scheduler, st.task.Name())})
	}
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].Name < s.Tasks[j].Name })
	return s
}

func taskTimeout(cfg config.SchedulerConfig, name string) time.Duration {
	switch name {
	case agent.TaskSignals:
		return seconds(cfg.Signals.TimeoutSeconds)
	case agent.TaskDecision:
		return seconds(cfg.Decision.TimeoutSeconds)
	case agent.TaskMonitor:
		return seconds(cfg.Monitor.TimeoutSeconds)
	case agent.TaskWatchlist:
		return seconds(cfg.Watchlist.TimeoutSeconds)
	case agent.TaskSnapshot:
		return seconds(cfg.Snapshot.TimeoutSeconds)
	}
	return 0
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[运行环境 (RUNTIME)]")
	fmt.Printf("  环境: %s\n", orDash(s.Env))
	fmt.Printf("  HTTP: %s\n", orDash(s.HTTPAddr))
	fmt.Printf("  数据库: %s\n", orDash(s.Database))
	fmt.Printf("  分析引擎: %s\n", orDash(s.Oracle))
	fmt.Printf("  锁: %s\n", orDash(s.Lock))
	fmt.Printf("  信号来源: %s\n", formatList(s.Sources))
	fmt.Println()

	fmt.Println("[组合配置 (PORTFOLIO)]")
	fmt.Printf("  自主交易: %s\n", onOff(s.Autonomous))
	fmt.Printf("  总预算: $%.2f\n", s.Portfolio.TotalBudget)
	fmt.Printf("  单仓上限: $%.2f\n", s.Portfolio.MaxPositionSize)
	fmt.Printf("  风险偏好: %s\n", orDash(s.Portfolio.RiskTolerance))
	fmt.Printf("  允许标的: %s\n", formatList(s.Portfolio.Allowlist))
	fmt.Println()

	fmt.Println("[交易参数 (TRADING)]")
	for _, line := range s.tradingLines() {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println()

	fmt.Println("[周期任务 (TASKS)]")
	if len(s.Tasks) == 0 {
		fmt.Println("  (无)")
	}
	for _, t := range s.Tasks {
		fmt.Printf("  - %-10s 间隔 %-8s 超时 %s\n", t.Name, t.Interval, t.Timeout)
	}
	fmt.Println(strings.Repeat("=", 80))
}

// Message 生成启动推送。
func (s *StartupSummary) Message(at time.Time) notifier.Message {
	tasks := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks = append(tasks, fmt.Sprintf("%s every %s", t.Name, t.Interval))
	}
	return notifier.Message{
		Icon:  "🚀",
		Title: "TradePilot started",
		Sections: []notifier.Section{
			{Title: "Portfolio", Lines: []string{
				"Autonomous " + onOff(s.Autonomous),
				fmt.Sprintf("Budget $%.2f, max position $%.2f", s.Portfolio.TotalBudget, s.Portfolio.MaxPositionSize),
			}},
			{Title: "Trading", Lines: s.tradingLines()},
			{Title: "Tasks", Lines: tasks},
		},
		Timestamp: at,
	}
}

func (s *StartupSummary) tradingLines() []string {
	return []string{
		fmt.Sprintf("max_positions=%d min_sentiment=%.2f", s.Trading.MaxPositions, s.Trading.MinSentiment),
		fmt.Sprintf("take_profit=%.2f%% stop_loss=%.2f%%", s.Trading.TakeProfitPct, s.Trading.StopLossPct),
		fmt.Sprintf("signal_window=%dm sentinel_threshold=%.2f", s.Trading.SignalWindowMinutes, s.Trading.SentinelThreshold),
	}
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
