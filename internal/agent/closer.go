package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
)

// ErrAlreadyClosed 表示仓位已被其他路径平掉。
var ErrAlreadyClosed = fmt.Errorf("position already closed: %w", store.ErrNotFound)

type CloserParams struct {
	Store    store.Store
	Broker   broker.Broker
	Locker   lock.Locker
	LockTTL  time.Duration
	UserID   string
	Journal  *Journal
	Notifier notifier.TextNotifier
}

// Closer 为自动止盈止损与手动平仓共用的平仓路径。
type Closer struct {
	store    store.Store
	broker   broker.Broker
	locker   lock.Locker
	lockTTL  time.Duration
	userID   string
	journal  *Journal
	notifier notifier.TextNotifier
	now      func() time.Time
}

func NewCloser(p CloserParams) *Closer {
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Closer{
		store:    p.Store,
		broker:   p.Broker,
		locker:   p.Locker,
		lockTTL:  ttl,
		userID:   p.UserID,
		journal:  p.Journal,
		notifier: p.Notifier,
		now:      time.Now,
	}
}

// CloseResult 为一次成功平仓的结果。
type CloseResult struct {
	PositionID uint
	Symbol     string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	PnLPct     float64
	Reason     string
	TradeID    uint
}

// Close 在标的锁内平仓：券商先成交，再以条件更新关闭仓位并写卖出成交，二次平仓返回 ErrAlreadyClosed。
func (c *Closer) Close(ctx context.Context, positionID uint, markPrice float64, reason string) (*CloseResult, error) {
	pos, err := c.loadOpen(ctx, positionID)
	if err != nil {
		return nil, err
	}
	var result *CloseResult
	err = lock.With(ctx, c.locker, positionLockKey(pos.Symbol), c.lockTTL, func() error {
		// 拿到锁后重新确认仓位仍为 open
		pos, err = c.loadOpen(ctx, positionID)
		if err != nil {
			return err
		}
		order, err := c.broker.ClosePosition(ctx, pos.Symbol, pos.Quantity)
		if err != nil {
			metrics.RecordOrder(model.SideSell, "error")
			return fmt.Errorf("broker close %s: %w", pos.Symbol, err)
		}
		metrics.RecordOrder(model.SideSell, "submitted")

		exitPrice := markPrice
		if fill, _ := order.FilledAvgPrice.Float64(); fill > 0 {
			exitPrice = fill
		}
		qty := decimal.NewFromFloat(pos.Quantity)
		entry := decimal.NewFromFloat(pos.EntryPrice)
		exit := decimal.NewFromFloat(exitPrice)
		pnl, _ := exit.Sub(entry).Mul(qty).Round(4).Float64()
		pnlPct := 0.0
		if pos.EntryPrice > 0 {
			pnlPct, _ = exit.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100)).Float64()
		}
		cost, _ := entry.Mul(qty).Float64()
		now := c.now().UTC()

		trade := &model.Trade{
			PositionID:    &pos.ID,
			Symbol:        pos.Symbol,
			Side:          model.SideSell,
			Quantity:      pos.Quantity,
			Price:         exitPrice,
			OrderType:     "market",
			Status:        order.Status,
			BrokerOrderID: order.ID,
			ExecutedAt:    now,
			Metadata: map[string]any{
				"pnl":     pnl,
				"pnl_pct": pnlPct,
				"reason":  reason,
			},
		}
		err = store.Run(ctx, c.store, func(uow store.UnitOfWork) error {
			exitInfo := store.ExitInfo{Time: now, Price: exitPrice, Reason: reason, PnL: pnl}
			if err := uow.Positions().Close(ctx, pos.ID, exitInfo); err != nil {
				return err
			}
			if err := uow.Trades().Create(ctx, trade); err != nil {
				return err
			}
			return uow.Portfolio().AddAllocation(ctx, c.userID, -cost)
		})
		if errors.Is(err, store.ErrNotFound) {
			return ErrAlreadyClosed
		}
		if err != nil {
			// 券商已成交但本地落库失败，需人工核对
			logger.Errorf("平仓 %s 券商已成交但落库失败 (order=%s): %v", pos.Symbol, order.ID, err)
			return fmt.Errorf("persist close %s: %w", pos.Symbol, err)
		}
		result = &CloseResult{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  exitPrice,
			PnL:        pnl,
			PnLPct:     pnlPct,
			Reason:     reason,
			TradeID:    trade.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPositionClosed(closeKind(reason))
	logger.Infof("✓ 已平仓 %s x%v @ %.2f，盈亏 %+.2f (%s)", result.Symbol, result.Quantity, result.ExitPrice, result.PnL, reason)
	c.journal.Record(ctx, "PositionMonitor", "position_closed",
		LevelInfo, fmt.Sprintf("Closed %s: %s, P&L: $%+.2f", result.Symbol, reason, result.PnL),
		map[string]any{"position_id": result.PositionID, "pnl": result.PnL})
	if c.notifier != nil {
		msg := notifier.PositionClosed(result.Symbol, result.Quantity, result.EntryPrice, result.ExitPrice, result.PnL, result.PnLPct, reason, c.now())
		if err := c.notifier.SendText(ctx, msg.Render()); err != nil {
			logger.Warnf("平仓推送失败: %v", err)
		}
	}
	return result, nil
}

func (c *Closer) loadOpen(ctx context.Context, id uint) (*model.Position, error) {
	var pos *model.Position
	err := store.Run(ctx, c.store, func(uow store.UnitOfWork) error {
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
	return pos, nil
}

func positionLockKey(symbol string) string {
	return "position:" + strings.ToUpper(symbol)
}

func closeKind(reason string) string {
	switch {
	case strings.HasPrefix(reason, "Take-profit"):
		return "take_profit"
	case strings.HasPrefix(reason, "Stop-loss"):
		return "stop_loss"
	default:
		return "manual"
	}
}

// formatPct 输出与配置书写一致的百分比阈值，例如 10 -> "10.0"。
func formatPct(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
