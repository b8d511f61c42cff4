package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestShouldClose(t *testing.T) {
	cases := []struct {
		current float64
		hit     bool
		reason  string
	}{
		{111, true, "Take-profit triggered at +11.00% (target: 10.0%)"},
		{110, true, "Take-profit triggered at +10.00% (target: 10.0%)"},
		{94, true, "Stop-loss triggered at -6.00% (limit: -5.0%)"},
		{95, true, "Stop-loss triggered at -5.00% (limit: -5.0%)"},
		{103, false, ""},
		{96, false, ""},
	}
	for _, c := range cases {
		hit, reason, _ := ShouldClose(100, c.current, 10, 5)
		assert.Equal(t, c.hit, hit, "current=%v", c.current)
		assert.Equal(t, c.reason, reason, "current=%v", c.current)
	}
	hit, _, _ := ShouldClose(0, 10, 10, 5)
	assert.False(t, hit)
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "10.0", formatPct(10))
	assert.Equal(t, "7.5", formatPct(7.5))
	assert.Equal(t, "2.25", formatPct(2.25))
}

func newCloser(st store.Store, b broker.Broker) *Closer {
	return NewCloser(CloserParams{Store: st, Broker: b, Locker: lock.NewLocalLock(), UserID: testUser, Journal: NewJournal(st)})
}

func TestPositionMonitor_TakeProfitStopLossAndHold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedPortfolio(t, st, false)
	tp := seedPosition(t, st, "AAA", 100, 1)
	sl := seedPosition(t, st, "BBB", 100, 1)
	hold := seedPosition(t, st, "CCC", 100, 1)

	b := new(MockBroker)
	b.On("ClosePosition", mock.Anything, "AAA", 1.0).Return(broker.Order{ID: "c1", Status: "filled"}, nil).Once()
	b.On("ClosePosition", mock.Anything, "BBB", 1.0).Return(broker.Order{ID: "c2", Status: "filled", FilledAvgPrice: decimal.NewFromFloat(93.5)}, nil).Once()
	q := new(MockQuoter)
	q.On("Latest", mock.Anything, "AAA").Return(broker.Quote{Bid: 111, Ask: 111.2}, nil)
	q.On("Latest", mock.Anything, "BBB").Return(broker.Quote{Bid: 94, Ask: 94.1}, nil)
	q.On("Latest", mock.Anything, "CCC").Return(broker.Quote{Bid: 103, Ask: 103.1}, nil)

	m := NewPositionMonitor(PositionMonitorParams{Store: st, Quotes: q, Closer: newCloser(st, b), Concurrency: 2})
	// 监控不受自主交易开关影响
	report, err := m.RunCycle(ctx, NewRuntimeState(testParams(), false))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Closed, 2)

	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		p, err := uow.Positions().FindByID(ctx, tp.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PositionStatusClosed, p.Status)
		assert.Equal(t, "Take-profit triggered at +11.00% (target: 10.0%)", p.ExitReason)
		require.NotNil(t, p.PnL)
		assert.InDelta(t, 11.0, *p.PnL, 1e-9)

		p, err = uow.Positions().FindByID(ctx, sl.ID)
		require.NoError(t, err)
		assert.Equal(t, "Stop-loss triggered at -6.00% (limit: -5.0%)", p.ExitReason)
		require.NotNil(t, p.ExitPrice)
		assert.Equal(t, 93.5, *p.ExitPrice)

		p, err = uow.Positions().FindByID(ctx, hold.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PositionStatusOpen, p.Status)

		trades, err := uow.Trades().ListByPosition(ctx, tp.ID)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, model.SideSell, trades[0].Side)
		return nil
	}))
	b.AssertExpectations(t)
}

func TestPositionMonitor_QuoteFailureCounted(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "AAA", 100, 1)
	q := new(MockQuoter)
	q.On("Latest", mock.Anything, "AAA").Return(broker.Quote{}, errors.New("timeout"))

	m := NewPositionMonitor(PositionMonitorParams{Store: st, Quotes: q, Closer: newCloser(st, new(MockBroker))})
	report, err := m.RunCycle(context.Background(), NewRuntimeState(testParams(), true))
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, 1, report.Errors)
}

func TestCloser_SecondCloseIsNoop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedPortfolio(t, st, true)
	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		return uow.Portfolio().SetAllocation(ctx, testUser, 200)
	}))
	pos := seedPosition(t, st, "NVDA", 50, 2)

	b := new(MockBroker)
	b.On("ClosePosition", mock.Anything, "NVDA", 2.0).Return(broker.Order{ID: "c1", Status: "filled"}, nil).Once()
	c := newCloser(st, b)

	res, err := c.Close(ctx, pos.ID, 55, "Manual close")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.PnL, 1e-9)
	assert.InDelta(t, 10.0, res.PnLPct, 1e-9)

	_, err = c.Close(ctx, pos.ID, 56, "Manual close")
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		trades, err := uow.Trades().ListByPosition(ctx, pos.ID)
		assert.Len(t, trades, 1)
		return err
	}))
	assert.InDelta(t, 100.0, loadPortfolio(t, st).CurrentAllocation, 1e-9)
	b.AssertNumberOfCalls(t, "ClosePosition", 1)
}

func TestCloser_BrokerFailureKeepsPositionOpen(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedPortfolio(t, st, true)
	pos := seedPosition(t, st, "NVDA", 50, 2)
	b := new(MockBroker)
	b.On("ClosePosition", mock.Anything, "NVDA", 2.0).
		Return(broker.Order{}, &broker.TransientError{Op: "close", Err: errors.New("503")})

	_, err := newCloser(st, b).Close(ctx, pos.ID, 55, "Manual close")
	require.Error(t, err)
	assert.True(t, broker.IsTransient(err))

	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		p, err := uow.Positions().FindByID(ctx, pos.ID)
		if err == nil {
			assert.Equal(t, model.PositionStatusOpen, p.Status)
		}
		return err
	}))
}

func TestCloser_ConcurrentClosesSettleOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedPortfolio(t, st, true)
	pos := seedPosition(t, st, "AMD", 100, 1)

	b := new(MockBroker)
	b.On("ClosePosition", mock.Anything, "AMD", 1.0).Return(broker.Order{ID: "c1", Status: "filled"}, nil)
	c := newCloser(st, b)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		closed   int
		rejected int
		others   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Close(ctx, pos.ID, 105, "Manual close")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				closed++
			case errors.Is(err, ErrAlreadyClosed):
				rejected++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, closed)
	assert.Equal(t, workers-1, rejected)
	b.AssertNumberOfCalls(t, "ClosePosition", 1)
	require.NoError(t, store.Run(ctx, st, func(uow store.UnitOfWork) error {
		trades, err := uow.Trades().ListByPosition(ctx, pos.ID)
		require.NoError(t, err)
		assert.Len(t, trades, 1)
		return nil
	}))
}
