package agent

import (
	"context"
	"errors"
	"fmt"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ShouldClose 按入场价与现价判断是否触发止盈/止损，返回原因与收益率（百分比）。
func ShouldClose(entry, current, takeProfitPct, stopLossPct float64) (bool, string, float64) {
	if entry <= 0 || current <= 0 {
		return false, "", 0
	}
	pnlPct, _ := decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(entry)).
		Div(decimal.NewFromFloat(entry)).Mul(decimal.NewFromInt(100)).Float64()
	switch {
	case pnlPct >= takeProfitPct:
		return true, fmt.Sprintf("Take-profit triggered at %+.2f%% (target: %s%%)", pnlPct, formatPct(takeProfitPct)), pnlPct
	case pnlPct <= -stopLossPct:
		return true, fmt.Sprintf("Stop-loss triggered at %+.2f%% (limit: -%s%%)", pnlPct, formatPct(stopLossPct)), pnlPct
	}
	return false, "", pnlPct
}

type PositionMonitorParams struct {
	Store       store.Store
	Quotes      Quoter
	Closer      *Closer
	Concurrency int
	Journal     *Journal
}

// PositionMonitor 周期检查持仓的止盈止损，不受自主交易开关影响。
type PositionMonitor struct {
	store       store.Store
	quotes      Quoter
	closer      *Closer
	concurrency int
	journal     *Journal
}

func NewPositionMonitor(p PositionMonitorParams) *PositionMonitor {
	n := p.Concurrency
	if n <= 0 {
		n = 4
	}
	return &PositionMonitor{store: p.Store, quotes: p.Quotes, closer: p.Closer, concurrency: n, journal: p.Journal}
}

// MonitorReport 汇总一轮检查结果。
type MonitorReport struct {
	Checked int
	Closed  []CloseResult
	Errors  int
}

func (m *PositionMonitor) RunCycle(ctx context.Context, state *RuntimeState) (MonitorReport, error) {
	var report MonitorReport
	var open []model.Position
	err := store.Run(ctx, m.store, func(uow store.UnitOfWork) error {
		var err error
		open, err = uow.Positions().ListOpen(ctx)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list open positions: %w", err)
	}
	metrics.SetOpenPositions(len(open))
	if len(open) == 0 {
		return report, nil
	}

	prices := make([]float64, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range open {
		i := i
		g.Go(func() error {
			q, err := m.quotes.Latest(gctx, open[i].Symbol)
			if err != nil {
				logger.Warnf("获取 %s 报价失败: %v", open[i].Symbol, err)
				return nil
			}
			prices[i] = q.SellPrice()
			return nil
		})
	}
	_ = g.Wait()

	params := state.Params()
	for i, pos := range open {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		price := prices[i]
		if price <= 0 {
			report.Errors++
			continue
		}
		report.Checked++
		hit, reason, pnlPct := ShouldClose(pos.EntryPrice, price, params.TakeProfitPct, params.StopLossPct)
		logger.Debugf("%s: 入场 $%.2f，现价 $%.2f，收益 %+.2f%%", pos.Symbol, pos.EntryPrice, price, pnlPct)
		if !hit {
			continue
		}
		logger.Infof("%s %s", pos.Symbol, reason)
		res, err := m.closer.Close(ctx, pos.ID, price, reason)
		switch {
		case errors.Is(err, ErrAlreadyClosed):
			logger.Debugf("%s 仓位已被平掉，跳过", pos.Symbol)
		case err != nil:
			report.Errors++
			logger.Errorf("平仓 %s 失败: %v", pos.Symbol, err)
			m.journal.Record(ctx, "PositionMonitor", "monitor_error", LevelError,
				fmt.Sprintf("Error monitoring %s: %v", pos.Symbol, err), nil)
		default:
			report.Closed = append(report.Closed, *res)
		}
	}
	return report, nil
}
