package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/pkg/symbol"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/google/uuid"
)

// SignalSource 为信号聚合器。
type SignalSource interface {
	Gather(ctx context.Context) ([]*model.Signal, error)
	GatherForHistory(ctx context.Context, exclude []string) ([]*model.Signal, error)
	FetchForTicker(ctx context.Context, symbol string) (*model.Signal, error)
}

// AlertMatcher 为新信号匹配历史行为。
type AlertMatcher interface {
	ProcessBatch(ctx context.Context, sigs []*model.Signal) []*model.Alert
}

// ActivityRecorder 记录用户行为及其结果。
type ActivityRecorder interface {
	LogAction(ctx context.Context, in sentinel.ActivityInput) (*model.UserActivity, error)
	RecordOutcome(ctx context.Context, id uint, outcome string) error
	History(ctx context.Context, limit int) ([]model.UserActivity, error)
}

type ServiceParams struct {
	Store       store.Store
	Broker      broker.Broker
	State       *RuntimeState
	Closer      *Closer
	Quotes      Quoter
	Signals     SignalSource
	Matcher     AlertMatcher
	Observer    ActivityRecorder
	Snapshotter *Snapshotter
	Watchlist   *Watchlist
	Journal     *Journal
	UserID      string
}

// Service 为控制面入口，HTTP 层只依赖它。
type Service struct {
	store       store.Store
	broker      broker.Broker
	state       *RuntimeState
	closer      *Closer
	quotes      Quoter
	signals     SignalSource
	matcher     AlertMatcher
	observer    ActivityRecorder
	snapshotter *Snapshotter
	watchlist   *Watchlist
	journal     *Journal
	userID      string
	now         func() time.Time
}

func NewService(p ServiceParams) *Service {
	return &Service{
		store:       p.Store,
		broker:      p.Broker,
		state:       p.State,
		closer:      p.Closer,
		quotes:      p.Quotes,
		signals:     p.Signals,
		matcher:     p.Matcher,
		observer:    p.Observer,
		snapshotter: p.Snapshotter,
		watchlist:   p.Watchlist,
		journal:     p.Journal,
		userID:      p.UserID,
		now:         time.Now,
	}
}

func (s *Service) State() *RuntimeState { return s.state }

// Enable 开启自主交易，数据库与内存状态同步更新。
func (s *Service) Enable(ctx context.Context) error {
	if err := s.setAutonomous(ctx, true); err != nil {
		return err
	}
	logger.Infof("自主交易已开启")
	s.journal.Record(ctx, "System", "autonomous_enabled", LevelInfo, "Autonomous trading enabled", nil)
	return nil
}

func (s *Service) Disable(ctx context.Context) error {
	if err := s.setAutonomous(ctx, false); err != nil {
		return err
	}
	logger.Infof("自主交易已关闭")
	s.journal.Record(ctx, "System", "autonomous_disabled", LevelInfo, "Autonomous trading disabled", nil)
	return nil
}

// KillSwitch 关闭自主交易并清除最近 24 小时的信号，已有持仓不动。
func (s *Service) KillSwitch(ctx context.Context) (int64, error) {
	s.state.SetAutonomous(false)
	var deleted int64
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		if err := uow.Portfolio().SetAutonomous(ctx, s.userID, false); err != nil {
			return err
		}
		var err error
		deleted, err = uow.Signals().DeleteSince(ctx, s.now().UTC().Add(-24*time.Hour))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("kill switch: %w", err)
	}
	logger.Warnf("紧急停止已触发，清除 %d 条信号", deleted)
	s.journal.Record(ctx, "System", "emergency_stop", LevelWarning, "KILL SWITCH ACTIVATED",
		map[string]any{"signals_deleted": deleted})
	return deleted, nil
}

func (s *Service) setAutonomous(ctx context.Context, on bool) error {
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		return uow.Portfolio().SetAutonomous(ctx, s.userID, on)
	})
	if err != nil {
		return fmt.Errorf("set autonomous: %w", err)
	}
	s.state.SetAutonomous(on)
	return nil
}

// Status 为运行状态概览。
type Status struct {
	Enabled        bool          `json:"enabled"`
	SignalsCount   int64         `json:"signals_count"`
	OpenPositions  int64         `json:"open_positions"`
	AccountValue   *float64      `json:"account_value"`
	Cash           *float64      `json:"cash"`
	LastDataGather *time.Time    `json:"last_data_gather"`
	LastAnalysis   *time.Time    `json:"last_analysis"`
	StartedAt      time.Time     `json:"started_at"`
	Params         TradingParams `json:"params"`
	Tasks          []TaskStatus  `json:"tasks"`
}

// Status 汇总状态；券商账户读取失败时账户字段为空。
func (s *Service) Status(ctx context.Context) (*Status, error) {
	out := &Status{
		Enabled:   s.state.AutonomousEnabled(),
		StartedAt: s.state.StartedAt(),
		Params:    s.state.Params(),
		Tasks:     s.state.Tasks(),
	}
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		n, err := uow.Signals().Count(ctx, store.SignalQuery{Since: s.now().UTC().Add(-24 * time.Hour)})
		if err != nil {
			return err
		}
		out.SignalsCount = n
		out.OpenPositions, err = uow.Positions().CountOpen(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, t := range out.Tasks {
		if t.LastSuccess.IsZero() {
			continue
		}
		at := t.LastSuccess
		switch t.Name {
		case TaskSignals:
			out.LastDataGather = &at
		case TaskDecision:
			out.LastAnalysis = &at
		}
	}
	if acct, err := s.broker.GetAccount(ctx); err != nil {
		logger.Errorf("读取账户失败: %v", err)
	} else {
		equity, _ := acct.Equity.Float64()
		cash, _ := acct.Cash.Float64()
		out.AccountValue, out.Cash = &equity, &cash
	}
	return out, nil
}

func (s *Service) GetConfig(ctx context.Context) (*model.PortfolioConfig, error) {
	var cfg *model.PortfolioConfig
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		cfg, err = uow.Portfolio().Get(ctx, s.userID)
		return err
	})
	return cfg, err
}

// PortfolioUpdate 为部分更新，nil 字段保持不变。
type PortfolioUpdate struct {
	IsAutonomousActive     *bool     `json:"is_autonomous_active"`
	TotalBudget            *float64  `json:"total_budget"`
	MaxPositionSize        *float64  `json:"max_position_size"`
	MaxDrawdown            *float64  `json:"max_drawdown"`
	RiskTolerance          *string   `json:"risk_tolerance"`
	AllowedSymbols         *[]string `json:"allowed_symbols"`
	MinConfidenceThreshold *float64  `json:"min_confidence_threshold"`
	StrategyName           *string   `json:"strategy_name"`
}

func (u PortfolioUpdate) apply(cfg *model.PortfolioConfig) error {
	if u.TotalBudget != nil {
		if *u.TotalBudget < 0 || math.IsNaN(*u.TotalBudget) {
			return apperr.Invalid("total_budget", "must be >= 0")
		}
		cfg.TotalBudget = *u.TotalBudget
	}
	if u.MaxPositionSize != nil {
		if *u.MaxPositionSize <= 0 || math.IsNaN(*u.MaxPositionSize) {
			return apperr.Invalid("max_position_size", "must be > 0")
		}
		cfg.MaxPositionSize = *u.MaxPositionSize
	}
	if (u.TotalBudget != nil || u.MaxPositionSize != nil) && cfg.MaxPositionSize > cfg.TotalBudget {
		return apperr.Invalid("max_position_size", "must not exceed total_budget (%.2f)", cfg.TotalBudget)
	}
	if u.MaxDrawdown != nil {
		if *u.MaxDrawdown < 0 || *u.MaxDrawdown > 1 {
			return apperr.Invalid("max_drawdown", "must be within [0, 1]")
		}
		cfg.MaxDrawdown = *u.MaxDrawdown
	}
	if u.RiskTolerance != nil {
		rt := strings.ToLower(strings.TrimSpace(*u.RiskTolerance))
		switch rt {
		case "low", "medium", "high":
		default:
			return apperr.Invalid("risk_tolerance", "must be one of low, medium, high")
		}
		cfg.RiskTolerance = rt
	}
	if u.MinConfidenceThreshold != nil {
		if *u.MinConfidenceThreshold < 0 || *u.MinConfidenceThreshold > 1 {
			return apperr.Invalid("min_confidence_threshold", "must be within [0, 1]")
		}
		cfg.MinConfidenceThreshold = *u.MinConfidenceThreshold
	}
	if u.AllowedSymbols != nil {
		cfg.SetAllowlist(symbol.NormalizeList(*u.AllowedSymbols))
	}
	if u.StrategyName != nil {
		cfg.StrategyName = strings.TrimSpace(*u.StrategyName)
	}
	if u.IsAutonomousActive != nil {
		cfg.IsAutonomousActive = *u.IsAutonomousActive
	}
	return nil
}

// UpdateConfig 校验并保存组合配置，非法输入返回 apperr.ValidationError。
func (s *Service) UpdateConfig(ctx context.Context, u PortfolioUpdate) (*model.PortfolioConfig, error) {
	var cfg *model.PortfolioConfig
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		cfg, err = uow.Portfolio().Get(ctx, s.userID)
		if err != nil {
			return err
		}
		if err := u.apply(cfg); err != nil {
			return err
		}
		return uow.Portfolio().Save(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	if u.IsAutonomousActive != nil {
		s.state.SetAutonomous(cfg.IsAutonomousActive)
	}
	logger.Infof("组合配置已更新: budget=%.2f max_position=%.2f min_conf=%.2f",
		cfg.TotalBudget, cfg.MaxPositionSize, cfg.MinConfidenceThreshold)
	s.journal.Record(ctx, "System", "config_updated", LevelInfo, "Portfolio configuration updated", nil)
	return cfg, nil
}

func (s *Service) ListSignals(ctx context.Context, sym string, limit int) ([]model.Signal, error) {
	var out []model.Signal
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Signals().ListRecent(ctx, store.SignalQuery{Symbol: symbol.Normalize(sym), Limit: limit})
		return err
	})
	return out, err
}

func (s *Service) ListPositions(ctx context.Context, status string, limit int) ([]model.Position, error) {
	switch status {
	case "", model.PositionStatusOpen, model.PositionStatusClosed, "all":
	default:
		return nil, apperr.Invalid("status", "must be open, closed or all")
	}
	if status == "all" {
		status = ""
	}
	var out []model.Position
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Positions().List(ctx, status, limit)
		return err
	})
	return out, err
}

func (s *Service) ListTrades(ctx context.Context, sym string, limit int) ([]model.Trade, error) {
	var out []model.Trade
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Trades().List(ctx, symbol.Normalize(sym), limit)
		return err
	})
	return out, err
}

// ListAlerts 按已读状态与类型过滤提醒，alertType 为空时不过滤类型。
func (s *Service) ListAlerts(ctx context.Context, unreadOnly bool, alertType string, limit int) ([]model.Alert, error) {
	alertType = strings.ToLower(strings.TrimSpace(alertType))
	switch alertType {
	case "", model.AlertOpportunity, model.AlertRiskWarning:
	default:
		return nil, apperr.Invalid("alert_type", "must be %s or %s", model.AlertOpportunity, model.AlertRiskWarning)
	}
	var out []model.Alert
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Alerts().List(ctx, store.AlertQuery{UserID: s.userID, UnreadOnly: unreadOnly, AlertType: alertType, Limit: limit})
		return err
	})
	return out, err
}

func (s *Service) MarkAlertRead(ctx context.Context, id uint) error {
	return store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		return uow.Alerts().MarkRead(ctx, id)
	})
}

func (s *Service) ListLogs(ctx context.Context, agent string, limit int) ([]model.ActivityLog, error) {
	var out []model.ActivityLog
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Logs().ListRecent(ctx, agent, limit)
		return err
	})
	return out, err
}

// ClosePosition 手动平仓，与监控共用平仓路径，并把结果记为用户行为。
func (s *Service) ClosePosition(ctx context.Context, id uint, reason string) (*CloseResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "Manual close"
	}
	var pos *model.Position
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		pos, err = uow.Positions().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pos.Status != model.PositionStatusOpen {
		return nil, ErrAlreadyClosed
	}
	mark := pos.EntryPrice
	if q, err := s.quotes.Latest(ctx, pos.Symbol); err != nil {
		logger.Warnf("%s 报价失败，以开仓价作为参考价: %v", pos.Symbol, err)
	} else if p := q.SellPrice(); p > 0 {
		mark = p
	}
	res, err := s.closer.Close(ctx, id, mark, reason)
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		_, err := s.observer.LogAction(ctx, sentinel.ActivityInput{
			ActivityType: "trade",
			Symbol:       res.Symbol,
			Side:         model.SideSell,
			Quantity:     res.Quantity,
			Price:        res.ExitPrice,
			Outcome:      OutcomeText(res.PnL),
			Metadata:     map[string]any{"position_id": res.PositionID, "reason": reason},
		})
		if err != nil {
			logger.Warnf("记录平仓行为失败: %v", err)
		}
	}
	return res, nil
}

// OutcomeText 将已实现盈亏格式化为行为结果。
func OutcomeText(pnl float64) string {
	if pnl < 0 {
		return fmt.Sprintf("Loss: -$%.2f", -pnl)
	}
	return fmt.Sprintf("Profit: +$%.2f", pnl)
}

// FetchTicker 主动抓取单个标的；无消息时返回 store.ErrNotFound。
func (s *Service) FetchTicker(ctx context.Context, sym string) (*model.Signal, error) {
	sym = symbol.Normalize(sym)
	if sym == "" {
		return nil, apperr.Invalid("symbol", "is required")
	}
	sig, err := s.signals.FetchForTicker(ctx, sym)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, fmt.Errorf("no messages for %s: %w", sym, store.ErrNotFound)
	}
	return sig, nil
}

func (s *Service) PortfolioHistory(ctx context.Context, period string) ([]model.PortfolioSnapshot, error) {
	return s.snapshotter.History(ctx, period)
}

func (s *Service) LogActivity(ctx context.Context, in sentinel.ActivityInput) (*model.UserActivity, error) {
	if strings.TrimSpace(in.Symbol) == "" || strings.TrimSpace(in.ActivityType) == "" {
		return nil, apperr.Invalid("activity", "activity_type and symbol are required")
	}
	return s.observer.LogAction(ctx, in)
}

func (s *Service) Activities(ctx context.Context, limit int) ([]model.UserActivity, error) {
	return s.observer.History(ctx, limit)
}

func (s *Service) RecordOutcome(ctx context.Context, id uint, outcome string) error {
	if strings.TrimSpace(outcome) == "" {
		return apperr.Invalid("outcome", "is required")
	}
	return s.observer.RecordOutcome(ctx, id, outcome)
}

func (s *Service) Watchlist() *Watchlist { return s.watchlist }

// RunAnalysis 对单个标的做一次按需分析，结果写入分析历史。
func (s *Service) RunAnalysis(ctx context.Context, req AnalysisRequest) (*model.AnalysisRecord, error) {
	rec, err := s.watchlist.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	s.journal.Record(ctx, "Oracle", "analysis_completed", LevelInfo,
		fmt.Sprintf("Manual analysis of %s: %s (%.2f)", rec.Ticker, rec.Decision, rec.Confidence), nil)
	return rec, nil
}

func (s *Service) AnalysisHistory(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error) {
	return s.watchlist.History(ctx, ticker, limit)
}

// ManualTrade 为手动下单请求。
type ManualTrade struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Side     string  `json:"side"`
	Reason   string  `json:"reason"`
}

// ExecuteTrade 提交一笔手动市价单并记为用户行为；不建持仓记录。
func (s *Service) ExecuteTrade(ctx context.Context, in ManualTrade) (*broker.Order, error) {
	sym := symbol.Normalize(in.Symbol)
	side := strings.ToLower(strings.TrimSpace(in.Side))
	switch {
	case sym == "":
		return nil, apperr.Invalid("symbol", "is required")
	case side != model.SideBuy && side != model.SideSell:
		return nil, apperr.Invalid("side", "must be buy or sell, got %q", in.Side)
	case in.Quantity <= 0 || math.IsNaN(in.Quantity) || math.IsInf(in.Quantity, 0):
		return nil, apperr.Invalid("quantity", "must be > 0, got %v", in.Quantity)
	}
	order, err := s.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:        sym,
		Qty:           in.Quantity,
		Side:          side,
		ClientOrderID: "manual-" + uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("手动下单 %s %s %.4f 已提交 order=%s", side, sym, in.Quantity, order.ID)

	price := 0.0
	if q, err := s.quotes.Latest(ctx, sym); err != nil {
		logger.Warnf("%s 报价失败，估算成交价为 0: %v", sym, err)
	} else if side == model.SideBuy {
		price = q.BuyPrice()
	} else {
		price = q.SellPrice()
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "Manual Execution via API"
	}
	if s.observer != nil {
		_, err := s.observer.LogAction(ctx, sentinel.ActivityInput{
			ActivityType:     "manual_trade_executed",
			Symbol:           sym,
			Side:             side,
			Quantity:         in.Quantity,
			Price:            price,
			TechnicalContext: reason,
			Metadata:         map[string]any{"broker_order_id": order.ID, "estimated_price": price},
		})
		if err != nil {
			logger.Warnf("记录手动下单行为失败: %v", err)
		}
	}
	s.journal.Record(ctx, "System", "manual_trade_executed", LevelInfo,
		fmt.Sprintf("Manual %s %.4f %s submitted", side, in.Quantity, sym), nil)
	return &order, nil
}

// SignalReport 汇总一轮信号采集。
type SignalReport struct {
	Gathered int
	History  int
	Alerts   int
}

// GatherSignals 采集热门信号与用户历史标的信号，再交给 Sentinel 匹配。
func (s *Service) GatherSignals(ctx context.Context) (SignalReport, error) {
	var report SignalReport
	fresh, err := s.signals.Gather(ctx)
	if err != nil {
		return report, fmt.Errorf("gather signals: %w", err)
	}
	exclude := make([]string, 0, len(fresh))
	for _, sig := range fresh {
		exclude = append(exclude, sig.Symbol)
	}
	history, err := s.signals.GatherForHistory(ctx, exclude)
	if err != nil {
		logger.Warnf("历史标的信号采集失败: %v", err)
	}
	all := append(fresh, history...)
	report.Gathered, report.History = len(fresh), len(history)
	s.journal.Record(ctx, "System", "signals_gathered", LevelInfo,
		fmt.Sprintf("Signal gathering completed (%d new)", len(all)), nil)

	if s.matcher != nil && len(all) > 0 {
		alerts := s.matcher.ProcessBatch(ctx, all)
		report.Alerts = len(alerts)
		if len(alerts) > 0 {
			logger.Infof("Sentinel 生成 %d 条提醒", len(alerts))
			s.journal.Record(ctx, "Sentinel", "alerts_generated", LevelInfo,
				fmt.Sprintf("Generated %d proactive alerts", len(alerts)), nil)
		}
	}
	return report, nil
}
