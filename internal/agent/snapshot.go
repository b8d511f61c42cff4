package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
)

// 历史区间
const (
	Period1W = "1W"
	Period1M = "1M"
	Period3M = "3M"
	Period1Y = "1Y"
)

type SnapshotterParams struct {
	Store  store.Store
	Broker broker.Broker
	UserID string
}

// Snapshotter 周期记录账户净值，只追加。
type Snapshotter struct {
	store  store.Store
	broker broker.Broker
	userID string
	now    func() time.Time
}

func NewSnapshotter(p SnapshotterParams) *Snapshotter {
	return &Snapshotter{store: p.Store, broker: p.Broker, userID: p.UserID, now: time.Now}
}

// Capture 读取账户并写入快照；时间戳不晚于最新快照时丢弃并返回 nil。
func (s *Snapshotter) Capture(ctx context.Context) (*model.PortfolioSnapshot, error) {
	acct, err := s.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	lastEquity := acct.LastEquity
	if lastEquity.IsZero() {
		lastEquity = acct.Equity
	}
	equity, _ := acct.Equity.Round(2).Float64()
	cash, _ := acct.Cash.Round(2).Float64()
	posValue, _ := acct.Equity.Sub(acct.Cash).Round(2).Float64()
	daily, _ := acct.Equity.Sub(lastEquity).Round(2).Float64()
	ts := s.now().UTC()

	var snap *model.PortfolioSnapshot
	err = store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		latest, err := uow.Snapshots().Latest(ctx, s.userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if latest != nil && !ts.After(latest.Timestamp) {
			logger.Warnf("快照时间 %s 不晚于最新快照 %s，丢弃", ts.Format(time.RFC3339), latest.Timestamp.Format(time.RFC3339))
			return nil
		}
		allTime := 0.0
		if first, err := uow.Snapshots().Earliest(ctx, s.userID); err == nil {
			allTime, _ = acct.Equity.Sub(decimal.NewFromFloat(first.TotalEquity)).Round(2).Float64()
		}
		snap = &model.PortfolioSnapshot{
			UserID:         s.userID,
			Timestamp:      ts,
			TotalEquity:    equity,
			CashBalance:    cash,
			PositionsValue: posValue,
			PnLDaily:       daily,
			PnLAllTime:     allTime,
			Metadata: map[string]any{
				"buying_power":   acct.BuyingPower.String(),
				"last_equity":    lastEquity.String(),
				"account_status": acct.Status,
			},
		}
		return uow.Snapshots().Create(ctx, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	if snap != nil {
		metrics.SetEquity(equity)
		logger.Debugf("组合快照：净值 $%.2f，现金 $%.2f，日内 %+.2f", equity, cash, daily)
	}
	return snap, nil
}

// PeriodStart 返回区间起点，未知区间按 1M 处理。
func PeriodStart(period string, now time.Time) time.Time {
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case Period1W:
		return now.AddDate(0, 0, -7)
	case Period3M:
		return now.AddDate(0, 0, -90)
	case Period1Y:
		return now.AddDate(0, 0, -365)
	default:
		return now.AddDate(0, 0, -30)
	}
}

// History 按时间升序返回区间内的快照。
func (s *Snapshotter) History(ctx context.Context, period string) ([]model.PortfolioSnapshot, error) {
	since := PeriodStart(period, s.now().UTC())
	var out []model.PortfolioSnapshot
	err := store.Run(ctx, s.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Snapshots().ListSince(ctx, s.userID, since)
		return err
	})
	return out, err
}
