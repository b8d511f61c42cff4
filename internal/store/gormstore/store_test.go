package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := Open(Options{Type: "sqlite", Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPositionClose_IsConditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pos := &model.Position{Symbol: "NVDA", EntryTime: time.Now(), EntryPrice: 100, Quantity: 1}
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Positions().Create(ctx, pos)
	}))
	assert.Equal(t, model.PositionStatusOpen, pos.Status)

	exit := store.ExitInfo{Time: time.Now(), Price: 111, Reason: "tp", PnL: 11}
	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Positions().Close(ctx, pos.ID, exit)
	})
	require.NoError(t, err)

	err = store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Positions().Close(ctx, pos.ID, exit)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	got, err := uow.Positions().FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusClosed, got.Status)
	require.NotNil(t, got.ExitPrice)
	assert.Equal(t, 111.0, *got.ExitPrice)
	n, err := uow.Positions().CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSignalTopCandidates_DeterministicOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	batch := []*model.Signal{
		{Symbol: "AAA", Source: "stocktwits", WeightedSentiment: 0.5, Volume: 10, Timestamp: now},
		{Symbol: "BBB", Source: "stocktwits", WeightedSentiment: 0.8, Volume: 3, Timestamp: now},
		{Symbol: "CCC", Source: "stocktwits", WeightedSentiment: 0.5, Volume: 20, Timestamp: now},
		{Symbol: "DDD", Source: "stocktwits", WeightedSentiment: 0.1, Volume: 99, Timestamp: now},
		{Symbol: "OLD", Source: "stocktwits", WeightedSentiment: 0.9, Volume: 99, Timestamp: now.Add(-3 * time.Hour)},
	}
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Signals().CreateBatch(ctx, batch)
	}))

	minSent := 0.3
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	got, err := uow.Signals().TopCandidates(ctx, store.SignalQuery{
		Since:        now.Add(-2 * time.Hour),
		MinSentiment: &minSent,
		Limit:        5,
	})
	require.NoError(t, err)
	var symbols []string
	for _, sig := range got {
		symbols = append(symbols, sig.Symbol)
	}
	assert.Equal(t, []string{"BBB", "CCC", "AAA"}, symbols)

	avg, n, err := uow.Signals().AverageSentiment(ctx, "AAA", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 0.5, avg, 1e-9)
}

func TestSignalDeleteSince(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Signals().CreateBatch(ctx, []*model.Signal{
			{Symbol: "NEW", Source: "stocktwits", Timestamp: now.Add(-time.Hour)},
			{Symbol: "OLD", Source: "stocktwits", Timestamp: now.Add(-48 * time.Hour)},
		})
	}))
	var deleted int64
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		var err error
		deleted, err = uow.Signals().DeleteSince(ctx, now.Add(-24*time.Hour))
		return err
	}))
	assert.EqualValues(t, 1, deleted)
}

func TestPortfolioAllocation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seed := &model.PortfolioConfig{UserID: "u1", TotalBudget: 1000, MaxPositionSize: 100}
	seed.SetAllowlist([]string{"AAPL"})
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		cfg, err := uow.Portfolio().GetOrCreate(ctx, seed)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"AAPL"}, cfg.Allowlist())
		if err := uow.Portfolio().AddAllocation(ctx, "u1", 150); err != nil {
			return err
		}
		return uow.Portfolio().AddAllocation(ctx, "u1", -400)
	}))

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	cfg, err := uow.Portfolio().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.CurrentAllocation)

	_, err = uow.Portfolio().Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Positions().Create(ctx, &model.Position{Symbol: "TSLA", EntryTime: time.Now()}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	n, err := uow.Positions().CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActivityOutcome_WrittenOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	act := &model.UserActivity{UserID: "u1", ActivityType: "trade", Symbol: "GME", Timestamp: time.Now()}
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Activities().Create(ctx, act)
	}))

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Activities().SetOutcome(ctx, act.ID, "Loss: -$87")
	}))
	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Activities().SetOutcome(ctx, act.ID, "Profit: +$1")
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	err = store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Activities().SetOutcome(ctx, 999, "x")
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTradeAttachPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		tr := &model.Trade{Symbol: "AMD", Side: model.SideBuy, Quantity: 2, ExecutedAt: time.Now()}
		if err := uow.Trades().Create(ctx, tr); err != nil {
			return err
		}
		pos := &model.Position{Symbol: "AMD", EntryTime: time.Now(), Quantity: 2}
		if err := uow.Positions().Create(ctx, pos); err != nil {
			return err
		}
		if err := uow.Trades().AttachPosition(ctx, tr.ID, pos.ID); err != nil {
			return err
		}
		assert.ErrorIs(t, uow.Trades().AttachPosition(ctx, tr.ID, pos.ID), store.ErrNotFound)
		trades, err := uow.Trades().ListByPosition(ctx, pos.ID)
		if err != nil {
			return err
		}
		assert.Len(t, trades, 1)
		return nil
	}))
}

func TestAlertList_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	alerts := []*model.Alert{
		{UserID: "u1", Title: "opp", AlertType: model.AlertOpportunity, Timestamp: now.Add(-2 * time.Minute)},
		{UserID: "u1", Title: "risk", AlertType: model.AlertRiskWarning, Timestamp: now.Add(-time.Minute)},
		{UserID: "u1", Title: "risk-read", AlertType: model.AlertRiskWarning, Timestamp: now},
		{UserID: "u2", Title: "other", AlertType: model.AlertRiskWarning, Timestamp: now},
	}
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		for _, a := range alerts {
			if err := uow.Alerts().Create(ctx, a); err != nil {
				return err
			}
		}
		return uow.Alerts().MarkRead(ctx, alerts[2].ID)
	}))

	titles := func(q store.AlertQuery) []string {
		var out []string
		require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
			list, err := uow.Alerts().List(ctx, q)
			for _, a := range list {
				out = append(out, a.Title)
			}
			return err
		}))
		return out
	}
	assert.Equal(t, []string{"risk-read", "risk", "opp"}, titles(store.AlertQuery{UserID: "u1"}))
	assert.Equal(t, []string{"risk-read", "risk"}, titles(store.AlertQuery{UserID: "u1", AlertType: model.AlertRiskWarning}))
	assert.Equal(t, []string{"risk"}, titles(store.AlertQuery{UserID: "u1", AlertType: model.AlertRiskWarning, UnreadOnly: true}))
	assert.Equal(t, []string{"opp"}, titles(store.AlertQuery{UserID: "u1", AlertType: model.AlertOpportunity, UnreadOnly: true}))
}
