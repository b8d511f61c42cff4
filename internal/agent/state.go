package agent

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tradepilot/internal/config"
)

// 周期任务名称
const (
	TaskSignals   = "signals"
	TaskDecision  = "decision"
	TaskMonitor   = "monitor"
	TaskWatchlist = "watchlist"
	TaskSnapshot  = "snapshot"
)

// TradingParams 为可热更新的策略阈值。
type TradingParams struct {
	MaxPositions      int           `json:"max_positions"`
	MinSentiment      float64       `json:"min_sentiment"`
	TakeProfitPct     float64       `json:"take_profit_pct"`
	StopLossPct       float64       `json:"stop_loss_pct"`
	SignalWindow      time.Duration `json:"signal_window"`
	CandidateLimit    int           `json:"candidate_limit"`
	SentinelThreshold float64       `json:"sentinel_threshold"`
	IgnoreMarketHours bool          `json:"ignore_market_hours"`
}

func ParamsFromConfig(c config.TradingConfig) TradingParams {
	return TradingParams{
		MaxPositions:      c.MaxPositions,
		MinSentiment:      c.MinSentiment,
		TakeProfitPct:     c.TakeProfitPct,
		StopLossPct:       c.StopLossPct,
		SignalWindow:      time.Duration(c.SignalWindowMinutes) * time.Minute,
		CandidateLimit:    c.CandidateLimit,
		SentinelThreshold: c.SentinelThreshold,
		IgnoreMarketHours: c.IgnoreMarketHours,
	}
}

// TaskStatus 为单个周期任务的运行记录。
type TaskStatus struct {
	Name        string    `json:"name"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
}

// RuntimeState 为进程级运行状态，由构建器创建并显式传入各任务。
type RuntimeState struct {
	autonomous atomic.Bool
	params     atomic.Pointer[TradingParams]
	startedAt  time.Time

	mu    sync.RWMutex
	tasks map[string]*TaskStatus
}

func NewRuntimeState(params TradingParams, autonomous bool) *RuntimeState {
	s := &RuntimeState{startedAt: time.Now(), tasks: make(map[string]*TaskStatus)}
	s.autonomous.Store(autonomous)
	s.params.Store(&params)
	return s
}

func (s *RuntimeState) AutonomousEnabled() bool { return s.autonomous.Load() }

func (s *RuntimeState) SetAutonomous(v bool) { s.autonomous.Store(v) }

func (s *RuntimeState) Params() TradingParams { return *s.params.Load() }

// SetParams 原子替换策略阈值，进行中的周期继续使用旧值。
func (s *RuntimeState) SetParams(p TradingParams) { s.params.Store(&p) }

func (s *RuntimeState) StartedAt() time.Time { return s.startedAt }

// RecordRun 记录一次任务执行结果。
func (s *RuntimeState) RecordRun(task string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[task]
	if !ok {
		st = &TaskStatus{Name: task}
		s.tasks[task] = st
	}
	st.Runs++
	st.LastRun = at
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
		st.LastErrorAt = at
		return
	}
	st.LastSuccess = at
}

// Tasks 返回按名称排序的任务状态副本。
func (s *RuntimeState) Tasks() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
