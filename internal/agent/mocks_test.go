package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/store"
	"tradepilot/internal/store/gormstore"
	"tradepilot/internal/store/model"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUser = "default_user"

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) SendText(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(broker.Account), args.Error(1)
}

func (m *MockBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Position), args.Error(1)
}

func (m *MockBroker) GetLatestQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(broker.Quote), args.Error(1)
}

func (m *MockBroker) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(broker.Order), args.Error(1)
}

func (m *MockBroker) ClosePosition(ctx context.Context, symbol string, qty float64) (broker.Order, error) {
	args := m.Called(ctx, symbol, qty)
	return args.Get(0).(broker.Order), args.Error(1)
}

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Analyze(ctx context.Context, req oracle.Request) (oracle.Analysis, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(oracle.Analysis), args.Error(1)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Latest(ctx context.Context, symbol string) (broker.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(broker.Quote), args.Error(1)
}

type openCalendar struct{}

func (openCalendar) CanTrade(string) (bool, string) { return true, "market open" }

type closedCalendar struct{}

func (closedCalendar) CanTrade(string) (bool, string) { return false, "market closed (weekend)" }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := gormstore.Open(gormstore.Options{Type: "sqlite", Path: filepath.Join(t.TempDir(), "agent.db"), MaxOpenConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPortfolio(t *testing.T, st store.Store, active bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		_, err := uow.Portfolio().GetOrCreate(ctx, &model.PortfolioConfig{
			UserID:                 testUser,
			TotalBudget:            1000,
			MaxPositionSize:        100,
			MaxDrawdown:            0.1,
			RiskTolerance:          "medium",
			MinConfidenceThreshold: 0.7,
		})
		if err != nil {
			return err
		}
		return uow.Portfolio().SetAutonomous(ctx, testUser, active)
	}))
}

func seedSignals(t *testing.T, st store.Store, sigs ...*model.Signal) {
	t.Helper()
	require.NoError(t, store.Run(context.Background(), st, func(uow store.UnitOfWork) error {
		return uow.Signals().CreateBatch(context.Background(), sigs)
	}))
}

func seedPosition(t *testing.T, st store.Store, sym string, entry, qty float64) *model.Position {
	t.Helper()
	pos := &model.Position{
		Symbol:     sym,
		EntryTime:  time.Now().UTC().Add(-time.Hour),
		EntryPrice: entry,
		Quantity:   qty,
		Status:     model.PositionStatusOpen,
	}
	require.NoError(t, store.Run(context.Background(), st, func(uow store.UnitOfWork) error {
		return uow.Positions().Create(context.Background(), pos)
	}))
	return pos
}

func loadPortfolio(t *testing.T, st store.Store) *model.PortfolioConfig {
	t.Helper()
	var cfg *model.PortfolioConfig
	require.NoError(t, store.Run(context.Background(), st, func(uow store.UnitOfWork) error {
		var err error
		cfg, err = uow.Portfolio().Get(context.Background(), testUser)
		return err
	}))
	return cfg
}

func testParams() TradingParams {
	return TradingParams{
		MaxPositions:   5,
		MinSentiment:   0.3,
		TakeProfitPct:  10,
		StopLossPct:    5,
		SignalWindow:   2 * time.Hour,
		CandidateLimit: 5,
	}
}
