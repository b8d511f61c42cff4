package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DecisionLoopParams struct {
	Store     store.Store
	Broker    broker.Broker
	Quotes    Quoter
	Oracle    oracle.Oracle
	Guard     Guard
	Portfolio PortfolioReader
	Calendar  TradeCalendar
	Locker    lock.Locker
	LockTTL   time.Duration
	UserID    string
	Analysts  []string
	Journal   *Journal
	Notifier  notifier.TextNotifier
}

// DecisionLoop 选取高情绪候选，经分析引擎与风控后开仓。
type DecisionLoop struct {
	store     store.Store
	broker    broker.Broker
	quotes    Quoter
	oracle    oracle.Oracle
	guard     Guard
	portfolio PortfolioReader
	calendar  TradeCalendar
	locker    lock.Locker
	lockTTL   time.Duration
	userID    string
	analysts  []string
	journal   *Journal
	notifier  notifier.TextNotifier
	now       func() time.Time
	newID     func() string
}

func NewDecisionLoop(p DecisionLoopParams) *DecisionLoop {
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	analysts := p.Analysts
	if len(analysts) == 0 {
		analysts = []string{"market", "fundamentals"}
	}
	return &DecisionLoop{
		store:     p.Store,
		broker:    p.Broker,
		quotes:    p.Quotes,
		oracle:    p.Oracle,
		guard:     p.Guard,
		portfolio: p.Portfolio,
		calendar:  p.Calendar,
		locker:    p.Locker,
		lockTTL:   ttl,
		userID:    p.UserID,
		analysts:  analysts,
		journal:   p.Journal,
		notifier:  p.Notifier,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// OpenedPosition 为本轮新开仓位。
type OpenedPosition struct {
	PositionID uint
	Symbol     string
	Quantity   float64
	Price      float64
	OrderID    string
}

// Skip 记录候选被跳过的原因。
type Skip struct {
	Symbol string
	Reason string
}

type CycleReport struct {
	TraceID    string
	Skipped    string
	Allocation float64
	Candidates int
	Opened     []OpenedPosition
	Skips      []Skip
}

// RunCycle 执行一轮决策；自主交易关闭或持仓已满时直接返回。
func (l *DecisionLoop) RunCycle(ctx context.Context, state *RuntimeState) (CycleReport, error) {
	report := CycleReport{TraceID: l.newID()}
	if !state.AutonomousEnabled() {
		report.Skipped = "autonomous trading disabled"
		logger.Debugf("自主交易未开启，跳过决策循环")
		return report, nil
	}
	params := state.Params()

	var openCount int64
	err := store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		var err error
		openCount, err = uow.Positions().CountOpen(ctx)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("count open positions: %w", err)
	}
	if int(openCount) >= params.MaxPositions {
		report.Skipped = fmt.Sprintf("max positions (%d) reached", params.MaxPositions)
		logger.Infof("持仓数已达上限 %d，跳过决策", params.MaxPositions)
		return report, nil
	}

	alloc, err := l.reconcileAllocation(ctx)
	if err != nil {
		return report, err
	}
	report.Allocation = alloc

	candidates, err := l.candidates(ctx, params)
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)
	logger.Infof("[%s] 决策循环开始：候选 %d 个，当前占用 $%.2f", report.TraceID, len(candidates), alloc)

	for _, sig := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if int(openCount) >= params.MaxPositions {
			break
		}
		opened, reason, err := l.evaluate(ctx, sig)
		switch {
		case err != nil:
			metrics.RecordDecision("error")
			l.reportError(ctx, sig.Symbol, err)
			report.Skips = append(report.Skips, Skip{Symbol: sig.Symbol, Reason: err.Error()})
		case opened != nil:
			metrics.RecordDecision("opened")
			openCount++
			report.Opened = append(report.Opened, *opened)
		default:
			metrics.RecordDecision("skipped")
			logger.Infof("跳过 %s: %s", sig.Symbol, reason)
			report.Skips = append(report.Skips, Skip{Symbol: sig.Symbol, Reason: reason})
		}
	}
	return report, nil
}

// reconcileAllocation 以券商持仓市值校准占用资金，失败则本轮不交易。
func (l *DecisionLoop) reconcileAllocation(ctx context.Context) (float64, error) {
	positions, err := l.broker.GetPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile allocation: %w", err)
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.MarketValue.Abs())
	}
	alloc, _ := total.Round(2).Float64()
	err = store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		return uow.Portfolio().SetAllocation(ctx, l.userID, alloc)
	})
	if err != nil {
		return 0, fmt.Errorf("persist allocation: %w", err)
	}
	metrics.SetAllocation(alloc)
	return alloc, nil
}

func (l *DecisionLoop) candidates(ctx context.Context, params TradingParams) ([]model.Signal, error) {
	window := params.SignalWindow
	if window <= 0 {
		window = 2 * time.Hour
	}
	limit := params.CandidateLimit
	if limit <= 0 {
		limit = 5
	}
	minSentiment := params.MinSentiment
	q := store.SignalQuery{Since: l.now().UTC().Add(-window), MinSentiment: &minSentiment, Limit: limit}
	var sigs []model.Signal
	err := store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		var err error
		sigs, err = uow.Signals().TopCandidates(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	// 同一标的只保留排序最靠前的信号
	seen := make(map[string]struct{}, len(sigs))
	out := sigs[:0]
	for _, s := range sigs {
		if _, ok := seen[s.Symbol]; ok {
			continue
		}
		seen[s.Symbol] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func (l *DecisionLoop) evaluate(ctx context.Context, sig model.Signal) (*OpenedPosition, string, error) {
	sym := strings.ToUpper(sig.Symbol)
	if ok, why := l.calendar.CanTrade(sym); !ok {
		return nil, why, nil
	}
	if open, err := l.hasOpenPosition(ctx, sym); err != nil {
		return nil, "", err
	} else if open {
		return nil, "position already open", nil
	}

	date := l.now().Format("2006-01-02")
	analysis, err := l.oracle.Analyze(ctx, oracle.Request{Ticker: sym, Date: date, Analysts: l.analysts})
	if err != nil {
		return nil, "", fmt.Errorf("analyze %s: %w", sym, err)
	}
	l.recordAnalysis(ctx, analysis)

	cfg, err := l.portfolio.Portfolio(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read portfolio config: %w", err)
	}
	if analysis.Decision != oracle.DecisionBuy || analysis.Confidence < cfg.MinConfidenceThreshold {
		return nil, fmt.Sprintf("decision=%s, confidence=%.2f", analysis.Decision, analysis.Confidence), nil
	}

	var (
		opened *OpenedPosition
		reason string
	)
	err = lock.With(ctx, l.locker, positionLockKey(sym), l.lockTTL, func() error {
		var err error
		opened, reason, err = l.open(ctx, sym, sig, analysis, cfg)
		return err
	})
	return opened, reason, err
}

// open 在标的锁内执行：复查持仓、定价、风控、下单、落库。
func (l *DecisionLoop) open(ctx context.Context, sym string, sig model.Signal, analysis oracle.Analysis, cfg *model.PortfolioConfig) (*OpenedPosition, string, error) {
	if open, err := l.hasOpenPosition(ctx, sym); err != nil {
		return nil, "", err
	} else if open {
		return nil, "position already open", nil
	}
	quote, err := l.quotes.Latest(ctx, sym)
	if err != nil {
		return nil, "", fmt.Errorf("quote %s: %w", sym, err)
	}
	price := quote.BuyPrice()
	if price <= 0 {
		return nil, "no valid price", nil
	}
	qty, _ := decimal.NewFromFloat(cfg.MaxPositionSize).Div(decimal.NewFromFloat(price)).Floor().Float64()
	if qty < 1 {
		return nil, fmt.Sprintf("price $%.2f exceeds max position size $%.2f", price, cfg.MaxPositionSize), nil
	}
	if v := l.guard.Check(ctx, sym, qty, price); !v.Allowed {
		return nil, "guardrail: " + v.Reason, nil
	}

	clientID := l.newID()
	order, err := l.broker.PlaceMarketOrder(ctx, broker.OrderRequest{Symbol: sym, Qty: qty, Side: model.SideBuy, ClientOrderID: clientID})
	if err != nil {
		metrics.RecordOrder(model.SideBuy, "error")
		return nil, "", err
	}
	metrics.RecordOrder(model.SideBuy, "submitted")
	fill := price
	if f, _ := order.FilledAvgPrice.Float64(); f > 0 {
		fill = f
	}
	now := l.now().UTC()
	cost, _ := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(fill)).Float64()

	trade := &model.Trade{
		Symbol:        sym,
		Side:          model.SideBuy,
		Quantity:      qty,
		Price:         fill,
		OrderType:     "market",
		Status:        order.Status,
		BrokerOrderID: order.ID,
		ExecutedAt:    now,
		Metadata:      map[string]any{"analysis_confidence": analysis.Confidence, "client_order_id": clientID},
	}
	pos := &model.Position{
		Symbol:            sym,
		EntryTime:         now,
		EntryPrice:        fill,
		EntrySentiment:    sig.WeightedSentiment,
		EntrySocialVolume: sig.Volume,
		EntryReason: fmt.Sprintf("Analysis: %s, Confidence: %.2f%%, Signal: %s",
			analysis.Decision, analysis.Confidence*100, sig.Reason),
		Quantity: qty,
		Status:   model.PositionStatusOpen,
		Metadata: map[string]any{
			"signal_id":     sig.ID,
			"signal_source": sig.Source,
			"order_id":      order.ID,
		},
	}
	err = store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		if err := uow.Trades().Create(ctx, trade); err != nil {
			return err
		}
		if err := uow.Positions().Create(ctx, pos); err != nil {
			return err
		}
		if err := uow.Trades().AttachPosition(ctx, trade.ID, pos.ID); err != nil {
			return err
		}
		return uow.Portfolio().AddAllocation(ctx, l.userID, cost)
	})
	if err != nil {
		logger.Errorf("%s 券商已成交但落库失败 (order=%s): %v", sym, order.ID, err)
		return nil, "", fmt.Errorf("persist entry %s: %w", sym, err)
	}
	logger.Infof("✓ 开仓 %s x%v @ $%.2f (order=%s)", sym, qty, fill, order.ID)
	l.journal.Record(ctx, "AnalysisJob", "trade_executed", LevelInfo,
		fmt.Sprintf("Bought %v shares of %s @ $%.2f", qty, sym, fill),
		map[string]any{"position_id": pos.ID, "order_id": order.ID})
	if l.notifier != nil {
		msg := notifier.TradeOpened(sym, qty, fill, analysis.Confidence, pos.EntryReason, l.now())
		if err := l.notifier.SendText(ctx, msg.Render()); err != nil {
			logger.Warnf("开仓推送失败: %v", err)
		}
	}
	return &OpenedPosition{PositionID: pos.ID, Symbol: sym, Quantity: qty, Price: fill, OrderID: order.ID}, "", nil
}

func (l *DecisionLoop) hasOpenPosition(ctx context.Context, sym string) (bool, error) {
	var found bool
	err := store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		_, err := uow.Positions().FindOpenBySymbol(ctx, sym)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (l *DecisionLoop) recordAnalysis(ctx context.Context, a oracle.Analysis) {
	rec := &model.AnalysisRecord{
		Ticker:     a.Ticker,
		TradeDate:  a.Date,
		Decision:   a.Decision,
		Confidence: a.Confidence,
		Purpose:    "autonomous",
		Reports:    a.Reports,
	}
	err := store.Run(ctx, l.store, func(uow store.UnitOfWork) error {
		return uow.Analyses().Create(ctx, rec)
	})
	if err != nil {
		logger.Warnf("保存 %s 分析结果失败: %v", a.Ticker, err)
	}
}

func (l *DecisionLoop) reportError(ctx context.Context, sym string, err error) {
	switch {
	case broker.IsRejected(err):
		logger.Errorf("券商拒绝 %s 订单: %v", sym, err)
		l.journal.Record(ctx, "AnalysisJob", "order_rejected", LevelError, fmt.Sprintf("Order for %s rejected: %v", sym, err), nil)
	case broker.IsTransient(err):
		logger.Warnf("%s 暂时失败，下轮重试: %v", sym, err)
	default:
		logger.Errorf("处理 %s 失败: %v", sym, err)
		l.journal.Record(ctx, "AnalysisJob", "analysis_error", LevelError, fmt.Sprintf("Error analyzing %s: %v", sym, err), nil)
	}
}
