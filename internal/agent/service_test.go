package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSignals struct {
	fresh   []*model.Signal
	history []*model.Signal
	exclude []string
	fetched *model.Signal
}

func (f *fakeSignals) Gather(context.Context) ([]*model.Signal, error) { return f.fresh, nil }

func (f *fakeSignals) GatherForHistory(_ context.Context, exclude []string) ([]*model.Signal, error) {
	f.exclude = exclude
	return f.history, nil
}

func (f *fakeSignals) FetchForTicker(context.Context, string) (*model.Signal, error) {
	return f.fetched, nil
}

type fakeMatcher struct {
	seen int
}

func (f *fakeMatcher) ProcessBatch(_ context.Context, sigs []*model.Signal) []*model.Alert {
	f.seen = len(sigs)
	return []*model.Alert{{Title: "Proactive Alert: X"}}
}

type fakeObserver struct {
	logged []sentinel.ActivityInput
}

func (f *fakeObserver) LogAction(_ context.Context, in sentinel.ActivityInput) (*model.UserActivity, error) {
	f.logged = append(f.logged, in)
	return &model.UserActivity{ID: uint(len(f.logged)), Symbol: in.Symbol, Outcome: in.Outcome}, nil
}

func (f *fakeObserver) RecordOutcome(context.Context, uint, string) error { return nil }

func (f *fakeObserver) History(context.Context, int) ([]model.UserActivity, error) { return nil, nil }

type serviceFixture struct {
	store    store.Store
	broker   *MockBroker
	quotes   *MockQuoter
	signals  *fakeSignals
	matcher  *fakeMatcher
	observer *fakeObserver
	oracle   *MockOracle
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	st := newTestStore(t)
	seedPortfolio(t, st, false)
	f := &serviceFixture{
		store:    st,
		broker:   new(MockBroker),
		quotes:   new(MockQuoter),
		signals:  &fakeSignals{},
		matcher:  &fakeMatcher{},
		observer: &fakeObserver{},
		oracle:   new(MockOracle),
	}
	journal := NewJournal(st)
	f.svc = NewService(ServiceParams{
		Store:       st,
		Broker:      f.broker,
		State:       NewRuntimeState(testParams(), false),
		Closer:      NewCloser(CloserParams{Store: st, Broker: f.broker, Locker: lock.NewLocalLock(), UserID: testUser, Journal: journal}),
		Quotes:      f.quotes,
		Signals:     f.signals,
		Matcher:     f.matcher,
		Observer:    f.observer,
		Snapshotter: NewSnapshotter(SnapshotterParams{Store: st, Broker: f.broker, UserID: testUser}),
		Watchlist:   NewWatchlist(WatchlistParams{Store: st, Oracle: f.oracle, UserID: testUser, Analysts: []string{"market", "news"}}),
		Journal:     journal,
		UserID:      testUser,
	})
	return f
}

func TestService_EnableDisable(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	require.NoError(t, f.svc.Enable(ctx))
	assert.True(t, f.svc.State().AutonomousEnabled())
	assert.True(t, loadPortfolio(t, f.store).IsAutonomousActive)

	require.NoError(t, f.svc.Disable(ctx))
	assert.False(t, f.svc.State().AutonomousEnabled())
	assert.False(t, loadPortfolio(t, f.store).IsAutonomousActive)

	logs, err := f.svc.ListLogs(ctx, "System", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestService_KillSwitch(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	require.NoError(t, f.svc.Enable(ctx))
	now := time.Now().UTC()
	seedSignals(t, f.store,
		&model.Signal{Symbol: "AAA", Source: "stocktwits", Timestamp: now.Add(-time.Hour)},
		&model.Signal{Symbol: "BBB", Source: "stocktwits", Timestamp: now.Add(-48 * time.Hour)},
	)
	seedPosition(t, f.store, "AAA", 10, 1)

	deleted, err := f.svc.KillSwitch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.False(t, f.svc.State().AutonomousEnabled())
	assert.False(t, loadPortfolio(t, f.store).IsAutonomousActive)

	open, err := f.svc.ListPositions(ctx, model.PositionStatusOpen, 10)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	left, err := f.svc.ListSignals(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "BBB", left[0].Symbol)
}

func TestService_UpdateConfigValidation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	neg := -5.0
	_, err := f.svc.UpdateConfig(ctx, PortfolioUpdate{MaxPositionSize: &neg})
	assert.True(t, apperr.IsValidation(err))

	tooBig := 5000.0
	_, err = f.svc.UpdateConfig(ctx, PortfolioUpdate{MaxPositionSize: &tooBig})
	assert.True(t, apperr.IsValidation(err))

	risk := "yolo"
	_, err = f.svc.UpdateConfig(ctx, PortfolioUpdate{RiskTolerance: &risk})
	assert.True(t, apperr.IsValidation(err))

	size, conf, active := 250.0, 0.8, true
	allowed := []string{" nvda", "AAPL", "nvda"}
	cfg, err := f.svc.UpdateConfig(ctx, PortfolioUpdate{
		MaxPositionSize:        &size,
		MinConfidenceThreshold: &conf,
		AllowedSymbols:         &allowed,
		IsAutonomousActive:     &active,
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.MaxPositionSize)
	assert.Equal(t, []string{"NVDA", "AAPL"}, cfg.Allowlist())
	assert.True(t, f.svc.State().AutonomousEnabled())

	stored := loadPortfolio(t, f.store)
	assert.Equal(t, 0.8, stored.MinConfidenceThreshold)
	assert.Equal(t, 1000.0, stored.TotalBudget)
}

func TestService_ClosePositionLogsOutcome(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	pos := seedPosition(t, f.store, "TSLA", 200, 1)
	f.quotes.On("Latest", mock.Anything, "TSLA").Return(broker.Quote{Bid: 113, Ask: 113.5}, nil)
	f.broker.On("ClosePosition", mock.Anything, "TSLA", 1.0).Return(broker.Order{ID: "c", Status: "filled"}, nil).Once()

	res, err := f.svc.ClosePosition(ctx, pos.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Manual close", res.Reason)
	assert.InDelta(t, -87.0, res.PnL, 1e-9)
	require.Len(t, f.observer.logged, 1)
	assert.Equal(t, "Loss: -$87.00", f.observer.logged[0].Outcome)
	assert.Equal(t, model.SideSell, f.observer.logged[0].Side)

	_, err = f.svc.ClosePosition(ctx, pos.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = f.svc.ClosePosition(ctx, 9999, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOutcomeText(t *testing.T) {
	assert.Equal(t, "Profit: +$12.50", OutcomeText(12.5))
	assert.Equal(t, "Loss: -$87.00", OutcomeText(-87))
	assert.Equal(t, "Profit: +$0.00", OutcomeText(0))
}

func TestService_GatherSignalsFeedsSentinel(t *testing.T) {
	f := newServiceFixture(t)
	f.signals.fresh = []*model.Signal{{Symbol: "NVDA"}, {Symbol: "AMD"}}
	f.signals.history = []*model.Signal{{Symbol: "IREN"}}

	report, err := f.svc.GatherSignals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SignalReport{Gathered: 2, History: 1, Alerts: 1}, report)
	assert.Equal(t, []string{"NVDA", "AMD"}, f.signals.exclude)
	assert.Equal(t, 3, f.matcher.seen)
}

func TestService_FetchTicker(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.FetchTicker(ctx, "  ")
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.FetchTicker(ctx, "iren")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.signals.fetched = &model.Signal{Symbol: "IREN", Source: model.SourceActiveFetch}
	sig, err := f.svc.FetchTicker(ctx, "iren")
	require.NoError(t, err)
	assert.Equal(t, "IREN", sig.Symbol)
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	seedSignals(t, f.store, &model.Signal{Symbol: "AAA", Source: "stocktwits", Timestamp: time.Now().UTC()})
	seedPosition(t, f.store, "AAA", 10, 1)
	f.svc.State().RecordRun(TaskSignals, time.Now(), nil)
	f.svc.State().RecordRun(TaskDecision, time.Now(), errors.New("oracle down"))
	f.broker.On("GetAccount", mock.Anything).Return(broker.Account{Equity: decimal.NewFromInt(1200), Cash: decimal.NewFromInt(900)}, nil)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.SignalsCount)
	assert.Equal(t, int64(1), st.OpenPositions)
	require.NotNil(t, st.AccountValue)
	assert.Equal(t, 1200.0, *st.AccountValue)
	assert.NotNil(t, st.LastDataGather)
	assert.Nil(t, st.LastAnalysis)
	assert.Len(t, st.Tasks, 2)
}

func TestService_StatusWithoutBroker(t *testing.T) {
	f := newServiceFixture(t)
	f.broker.On("GetAccount", mock.Anything).Return(broker.Account{}, errors.New("unauthorized"))

	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.AccountValue)
	assert.Nil(t, st.Cash)
}

func TestService_ListPositionsRejectsBadStatus(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.ListPositions(context.Background(), "pending", 10)
	assert.True(t, apperr.IsValidation(err))
}

func TestService_ExecuteTradeLogsObserver(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r broker.OrderRequest) bool {
		return r.Symbol == "TSLA" && r.Side == model.SideSell && r.Qty == 3 && strings.HasPrefix(r.ClientOrderID, "manual-")
	})).Return(broker.Order{ID: "ord-9", Symbol: "TSLA", Side: model.SideSell, Status: "accepted"}, nil).Once()
	f.quotes.On("Latest", mock.Anything, "TSLA").Return(broker.Quote{Bid: 250, Ask: 251}, nil)

	order, err := f.svc.ExecuteTrade(ctx, ManualTrade{Symbol: " tsla", Quantity: 3, Side: "SELL"})
	require.NoError(t, err)
	assert.Equal(t, "ord-9", order.ID)
	require.Len(t, f.observer.logged, 1)
	got := f.observer.logged[0]
	assert.Equal(t, "manual_trade_executed", got.ActivityType)
	assert.Equal(t, "Manual Execution via API", got.TechnicalContext)
	assert.Equal(t, 250.0, got.Price)
	assert.Equal(t, "ord-9", got.Metadata["broker_order_id"])
	assert.Equal(t, 250.0, got.Metadata["estimated_price"])

	// 无持仓记录，手动单不进入自主交易账本
	open, err := f.svc.ListPositions(ctx, model.PositionStatusOpen, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestService_ExecuteTradeValidatesAndPropagates(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	for _, in := range []ManualTrade{
		{Symbol: "", Quantity: 1, Side: "buy"},
		{Symbol: "TSLA", Quantity: 0, Side: "buy"},
		{Symbol: "TSLA", Quantity: -1, Side: "buy"},
		{Symbol: "TSLA", Quantity: 1, Side: "short"},
	} {
		_, err := f.svc.ExecuteTrade(ctx, in)
		assert.True(t, apperr.IsValidation(err), "%+v", in)
	}
	f.broker.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)

	rejected := &broker.BrokerError{StatusCode: 403, Message: "insufficient buying power"}
	f.broker.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(broker.Order{}, rejected).Once()
	_, err := f.svc.ExecuteTrade(ctx, ManualTrade{Symbol: "GME", Quantity: 1, Side: "buy", Reason: "yolo"})
	assert.ErrorIs(t, err, rejected)
	assert.Empty(t, f.observer.logged)
}

func TestService_RunAnalysisAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.oracle.On("Analyze", mock.Anything, oracle.Request{Ticker: "NVDA", Date: "2026-10-18", Analysts: []string{"market", "news"}}).
		Return(oracle.Analysis{Ticker: "NVDA", Date: "2026-10-18", Decision: oracle.DecisionHold, Confidence: 0.55}, nil).Once()
	f.oracle.On("Analyze", mock.Anything, oracle.Request{Ticker: "NVDA", Date: "2026-10-19", Analysts: []string{"social"}}).
		Return(oracle.Analysis{Ticker: "NVDA", Decision: oracle.DecisionBuy, Confidence: 0.8}, nil).Once()

	first, err := f.svc.RunAnalysis(ctx, AnalysisRequest{Ticker: "nvda", Date: "2026-10-18"})
	require.NoError(t, err)
	assert.Equal(t, "manual", first.Purpose)
	second, err := f.svc.RunAnalysis(ctx, AnalysisRequest{Ticker: "NVDA", Date: "2026-10-19", Analysts: []string{"social"}})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", second.TradeDate)

	_, err = f.svc.RunAnalysis(ctx, AnalysisRequest{Ticker: " "})
	assert.True(t, apperr.IsValidation(err))
	_, err = f.svc.RunAnalysis(ctx, AnalysisRequest{Ticker: "NVDA", Date: "19/10/2026"})
	assert.True(t, apperr.IsValidation(err))

	hist, err := f.svc.AnalysisHistory(ctx, "nvda", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, second.ID, hist[0].ID)
	assert.Equal(t, oracle.DecisionHold, hist[1].Decision)

	hist, err = f.svc.AnalysisHistory(ctx, "AMD", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
	f.oracle.AssertExpectations(t)
}

func TestService_ListAlertsByType(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	now := time.Now().UTC()
	require.NoError(t, store.Run(ctx, f.store, func(uow store.UnitOfWork) error {
		for _, a := range []*model.Alert{
			{UserID: testUser, Title: "opp", AlertType: model.AlertOpportunity, Timestamp: now},
			{UserID: testUser, Title: "risk", AlertType: model.AlertRiskWarning, Timestamp: now},
		} {
			if err := uow.Alerts().Create(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := f.svc.ListAlerts(ctx, false, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	risk, err := f.svc.ListAlerts(ctx, true, "RISK_WARNING", 10)
	require.NoError(t, err)
	require.Len(t, risk, 1)
	assert.Equal(t, "risk", risk[0].Title)
	_, err = f.svc.ListAlerts(ctx, false, "spam", 10)
	assert.True(t, apperr.IsValidation(err))
}

func TestWatchlist_RunCycleRecordsVerdicts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	o := new(MockOracle)
	o.On("Analyze", mock.Anything, mock.MatchedBy(func(r oracle.Request) bool { return r.Ticker == "NVDA" })).
		Return(oracle.Analysis{Ticker: "NVDA", Date: "2026-10-19", Decision: oracle.DecisionBuy, Confidence: 0.8}, nil)
	o.On("Analyze", mock.Anything, mock.MatchedBy(func(r oracle.Request) bool { return r.Ticker == "AMD" })).
		Return(oracle.Analysis{}, errors.New("timeout"))
	w := NewWatchlist(WatchlistParams{Store: st, Oracle: o, UserID: testUser})

	_, err := w.Add(ctx, "nvda")
	require.NoError(t, err)
	_, err = w.Add(ctx, "AMD")
	require.NoError(t, err)
	_, err = w.Add(ctx, " ")
	assert.Error(t, err)

	report, err := w.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, WatchlistReport{Analyzed: 1, Failed: 1}, report)

	list, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AMD", list[0].Symbol)
	assert.Equal(t, "NVDA", list[1].Symbol)
	assert.Equal(t, oracle.DecisionBuy, list[1].LastDecision)
	assert.NotNil(t, list[1].LastAnalyzedAt)

	require.NoError(t, w.Remove(ctx, "amd"))
	assert.ErrorIs(t, w.Remove(ctx, "amd"), store.ErrNotFound)
	list, err = w.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSnapshotter_CaptureAndHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := new(MockBroker)
	b.On("GetAccount", mock.Anything).Return(broker.Account{
		Equity:     decimal.RequireFromString("1050.25"),
		LastEquity: decimal.RequireFromString("1000.00"),
		Cash:       decimal.RequireFromString("800.10"),
	}, nil)
	s := NewSnapshotter(SnapshotterParams{Store: st, Broker: b, UserID: testUser})
	base := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	snap, err := s.Capture(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 250.15, snap.PositionsValue)
	assert.Equal(t, 50.25, snap.PnLDaily)
	assert.Zero(t, snap.PnLAllTime)

	// 时间戳未前进的快照被丢弃
	dup, err := s.Capture(ctx)
	require.NoError(t, err)
	assert.Nil(t, dup)

	s.now = func() time.Time { return base.Add(time.Hour) }
	_, err = s.Capture(ctx)
	require.NoError(t, err)

	hist, err := s.History(ctx, Period1W)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Timestamp.Before(hist[1].Timestamp))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -7), PeriodStart("1w", now))
	assert.Equal(t, now.AddDate(0, 0, -90), PeriodStart(Period3M, now))
	assert.Equal(t, now.AddDate(0, 0, -365), PeriodStart(Period1Y, now))
	assert.Equal(t, now.AddDate(0, 0, -30), PeriodStart("bogus", now))
}
