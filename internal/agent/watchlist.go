package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/pkg/symbol"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"
)

type WatchlistParams struct {
	Store    store.Store
	Oracle   oracle.Oracle
	UserID   string
	Analysts []string
	Journal  *Journal
}

// Watchlist 管理观察名单并定时分析，不下单。
type Watchlist struct {
	store    store.Store
	oracle   oracle.Oracle
	userID   string
	analysts []string
	journal  *Journal
	now      func() time.Time
}

func NewWatchlist(p WatchlistParams) *Watchlist {
	return &Watchlist{
		store:    p.Store,
		oracle:   p.Oracle,
		userID:   p.UserID,
		analysts: p.Analysts,
		journal:  p.Journal,
		now:      time.Now,
	}
}

// Add 加入观察名单，已存在时重新激活。
func (w *Watchlist) Add(ctx context.Context, symbol string) (*model.MonitoredTicker, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, errors.New("symbol is required")
	}
	t := &model.MonitoredTicker{UserID: w.userID, Symbol: sym, AddedAt: w.now().UTC()}
	err := store.Run(ctx, w.store, func(uow store.UnitOfWork) error {
		return uow.Watchlist().Upsert(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("%s 加入观察名单", sym)
	return t, nil
}

// Remove 停用条目，不存在时返回 store.ErrNotFound。
func (w *Watchlist) Remove(ctx context.Context, symbol string) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	return store.Run(ctx, w.store, func(uow store.UnitOfWork) error {
		return uow.Watchlist().Deactivate(ctx, w.userID, sym)
	})
}

func (w *Watchlist) List(ctx context.Context) ([]model.MonitoredTicker, error) {
	var out []model.MonitoredTicker
	err := store.Run(ctx, w.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Watchlist().ListActive(ctx, w.userID)
		return err
	})
	return out, err
}

// WatchlistReport 汇总一轮观察名单分析。
type WatchlistReport struct {
	Analyzed int
	Failed   int
}

// RunCycle 逐个分析观察名单，单个失败不影响其他标的。
func (w *Watchlist) RunCycle(ctx context.Context) (WatchlistReport, error) {
	var report WatchlistReport
	tickers, err := w.List(ctx)
	if err != nil {
		return report, fmt.Errorf("load watchlist: %w", err)
	}
	if len(tickers) == 0 {
		logger.Debugf("观察名单为空，跳过")
		return report, nil
	}
	for _, t := range tickers {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := w.analyze(ctx, t); err != nil {
			report.Failed++
			logger.Errorf("观察名单分析 %s 失败: %v", t.Symbol, err)
			continue
		}
		report.Analyzed++
	}
	w.journal.Record(ctx, "MonitorJob", "watchlist_analyzed", LevelInfo,
		fmt.Sprintf("Analyzed %d/%d monitored tickers", report.Analyzed, len(tickers)), nil)
	return report, nil
}

func (w *Watchlist) analyze(ctx context.Context, t model.MonitoredTicker) error {
	now := w.now()
	_, err := w.run(ctx, oracle.Request{Ticker: t.Symbol, Date: now.Format("2006-01-02"), Analysts: w.analysts}, "watchlist",
		func(uow store.UnitOfWork, a oracle.Analysis) error {
			return uow.Watchlist().RecordAnalysis(ctx, t.ID, now.UTC(), a.Decision, a.Confidence)
		})
	return err
}

// AnalysisRequest 为按需分析参数，Date 与 Analysts 为空时取当天与默认分析师。
type AnalysisRequest struct {
	Ticker   string   `json:"ticker"`
	Date     string   `json:"date"`
	Analysts []string `json:"analysts"`
}

// Analyze 按需分析单个标的并落库，不要求标的在观察名单内。
func (w *Watchlist) Analyze(ctx context.Context, req AnalysisRequest) (*model.AnalysisRecord, error) {
	sym := symbol.Normalize(req.Ticker)
	if sym == "" {
		return nil, apperr.Invalid("ticker", "is required")
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = w.now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, apperr.Invalid("date", "must be YYYY-MM-DD, got %q", date)
	}
	analysts := req.Analysts
	if len(analysts) == 0 {
		analysts = w.analysts
	}
	return w.run(ctx, oracle.Request{Ticker: sym, Date: date, Analysts: analysts}, "manual", nil)
}

func (w *Watchlist) run(ctx context.Context, req oracle.Request, purpose string, after func(store.UnitOfWork, oracle.Analysis) error) (*model.AnalysisRecord, error) {
	a, err := w.oracle.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Infof("分析 %s [%s]: %s (%.2f)", req.Ticker, purpose, a.Decision, a.Confidence)
	date := a.Date
	if date == "" {
		date = req.Date
	}
	rec := &model.AnalysisRecord{
		Ticker:     req.Ticker,
		TradeDate:  date,
		Decision:   a.Decision,
		Confidence: a.Confidence,
		Purpose:    purpose,
		Reports:    a.Reports,
	}
	err = store.Run(ctx, w.store, func(uow store.UnitOfWork) error {
		if err := uow.Analyses().Create(ctx, rec); err != nil {
			return err
		}
		if after == nil {
			return nil
		}
		return after(uow, a)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// History 返回某标的最近的分析记录，新的在前。
func (w *Watchlist) History(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error) {
	sym := symbol.Normalize(ticker)
	if sym == "" {
		return nil, apperr.Invalid("ticker", "is required")
	}
	var out []model.AnalysisRecord
	err := store.Run(ctx, w.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Analyses().ListRecent(ctx, sym, limit)
		return err
	})
	return out, err
}
