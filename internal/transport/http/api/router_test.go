package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradepilot/internal/agent"
	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) Enable(ctx context.Context) error  { return m.Called(ctx).Error(0) }
func (m *MockController) Disable(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockController) KillSwitch(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockController) Status(ctx context.Context) (*agent.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Status), args.Error(1)
}

func (m *MockController) GetConfig(ctx context.Context) (*model.PortfolioConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortfolioConfig), args.Error(1)
}

func (m *MockController) UpdateConfig(ctx context.Context, u agent.PortfolioUpdate) (*model.PortfolioConfig, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortfolioConfig), args.Error(1)
}

func (m *MockController) PortfolioHistory(ctx context.Context, period string) ([]model.PortfolioSnapshot, error) {
	args := m.Called(ctx, period)
	return args.Get(0).([]model.PortfolioSnapshot), args.Error(1)
}

func (m *MockController) ListSignals(ctx context.Context, sym string, limit int) ([]model.Signal, error) {
	args := m.Called(ctx, sym, limit)
	return args.Get(0).([]model.Signal), args.Error(1)
}

func (m *MockController) FetchTicker(ctx context.Context, sym string) (*model.Signal, error) {
	args := m.Called(ctx, sym)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Signal), args.Error(1)
}

func (m *MockController) ListPositions(ctx context.Context, status string, limit int) ([]model.Position, error) {
	args := m.Called(ctx, status, limit)
	return args.Get(0).([]model.Position), args.Error(1)
}

func (m *MockController) ClosePosition(ctx context.Context, id uint, reason string) (*agent.CloseResult, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.CloseResult), args.Error(1)
}

func (m *MockController) ListTrades(ctx context.Context, sym string, limit int) ([]model.Trade, error) {
	args := m.Called(ctx, sym, limit)
	return args.Get(0).([]model.Trade), args.Error(1)
}

func (m *MockController) ListAlerts(ctx context.Context, unreadOnly bool, alertType string, limit int) ([]model.Alert, error) {
	args := m.Called(ctx, unreadOnly, alertType, limit)
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *MockController) ExecuteTrade(ctx context.Context, in agent.ManualTrade) (*broker.Order, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Order), args.Error(1)
}

func (m *MockController) RunAnalysis(ctx context.Context, req agent.AnalysisRequest) (*model.AnalysisRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisRecord), args.Error(1)
}

func (m *MockController) AnalysisHistory(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error) {
	args := m.Called(ctx, ticker, limit)
	return args.Get(0).([]model.AnalysisRecord), args.Error(1)
}

func (m *MockController) MarkAlertRead(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockController) LogActivity(ctx context.Context, in sentinel.ActivityInput) (*model.UserActivity, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserActivity), args.Error(1)
}

func (m *MockController) Activities(ctx context.Context, limit int) ([]model.UserActivity, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.UserActivity), args.Error(1)
}

func (m *MockController) RecordOutcome(ctx context.Context, id uint, outcome string) error {
	return m.Called(ctx, id, outcome).Error(0)
}

func (m *MockController) ListLogs(ctx context.Context, agentName string, limit int) ([]model.ActivityLog, error) {
	args := m.Called(ctx, agentName, limit)
	return args.Get(0).([]model.ActivityLog), args.Error(1)
}

type MockWatchlist struct {
	mock.Mock
}

func (m *MockWatchlist) Add(ctx context.Context, symbol string) (*model.MonitoredTicker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MonitoredTicker), args.Error(1)
}

func (m *MockWatchlist) Remove(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

func (m *MockWatchlist) List(ctx context.Context) ([]model.MonitoredTicker, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.MonitoredTicker), args.Error(1)
}

func newTestServer(t *testing.T) (*Server, *MockController, *MockWatchlist) {
	t.Helper()
	ctl := &MockController{}
	wl := &MockWatchlist{}
	srv, err := NewServer(ServerConfig{Controller: ctl, Watchlist: wl})
	require.NoError(t, err)
	return srv, ctl, wl
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer_RequiresController(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAutonomousToggleAndKill(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("Enable", mock.Anything).Return(nil).Once()
	ctl.On("Disable", mock.Anything).Return(nil).Once()
	ctl.On("KillSwitch", mock.Anything).Return(int64(7), nil).Once()

	rec := do(t, srv, http.MethodPost, "/api/autonomous/enable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enabled", decode(t, rec)["status"])

	rec = do(t, srv, http.MethodPost, "/api/autonomous/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", decode(t, rec)["status"])

	rec = do(t, srv, http.MethodPost, "/api/autonomous/kill", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "killed", body["status"])
	assert.Equal(t, float64(7), body["signals_deleted"])
	ctl.AssertExpectations(t)
}

func TestStatus(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	equity := 10250.5
	ctl.On("Status", mock.Anything).Return(&agent.Status{Enabled: true, SignalsCount: 12, OpenPositions: 2, AccountValue: &equity}, nil)

	rec := do(t, srv, http.MethodGet, "/api/autonomous/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, float64(12), body["signals_count"])
	assert.Equal(t, 10250.5, body["account_value"])
	assert.Nil(t, body["cash"])
}

func TestUpdateConfig_ValidationMapsTo400(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("UpdateConfig", mock.Anything, mock.MatchedBy(func(u agent.PortfolioUpdate) bool {
		return u.MaxPositionSize != nil && *u.MaxPositionSize == 5000
	})).Return(nil, apperr.Invalid("max_position_size", "cannot exceed total_budget"))

	rec := do(t, srv, http.MethodPost, "/api/portfolio/config", `{"max_position_size": 5000}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "max_position_size", decode(t, rec)["field"])
}

func TestUpdateConfig_OK(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("UpdateConfig", mock.Anything, mock.Anything).Return(&model.PortfolioConfig{TotalBudget: 2000, MaxPositionSize: 200}, nil)

	rec := do(t, srv, http.MethodPost, "/api/portfolio/config", `{"total_budget": 2000, "max_position_size": 200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ctl.AssertCalled(t, "UpdateConfig", mock.Anything, mock.MatchedBy(func(u agent.PortfolioUpdate) bool {
		return u.TotalBudget != nil && *u.TotalBudget == 2000 && u.RiskTolerance == nil
	}))
}

func TestUpdateConfig_BadJSON(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/portfolio/config", `{"total_budget": "lots"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ctl.AssertNotCalled(t, "UpdateConfig", mock.Anything, mock.Anything)
}

func TestPortfolioHistoryAndChart(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	snaps := []model.PortfolioSnapshot{{Timestamp: ts, TotalEquity: 10100, CashBalance: 9000, PositionsValue: 1100, PnLDaily: 25, PnLAllTime: 100}}
	ctl.On("PortfolioHistory", mock.Anything, "1W").Return(snaps, nil)
	ctl.On("PortfolioHistory", mock.Anything, "3M").Return([]model.PortfolioSnapshot{}, nil)

	rec := do(t, srv, http.MethodGet, "/api/portfolio/history?period=1w", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1W", body["timeframe"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	point := data[0].(map[string]any)
	assert.Equal(t, 10100.0, point["total_value"])
	assert.Equal(t, 100.0, point["pnl"])
	assert.Equal(t, "2026-03-02T15:00:00Z", point["timestamp"])

	rec = do(t, srv, http.MethodGet, "/api/portfolio/chart?period=1W", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = do(t, srv, http.MethodGet, "/api/portfolio/chart?timeframe=3M", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignalsAndFetch(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("ListSignals", mock.Anything, "TSLA", maxLimit).Return([]model.Signal{{Symbol: "TSLA"}}, nil)
	ctl.On("FetchTicker", mock.Anything, "nvda").Return(&model.Signal{Symbol: "NVDA", WeightedSentiment: 0.4, Volume: 30}, nil)
	ctl.On("FetchTicker", mock.Anything, "zzzz").Return(nil, store.ErrNotFound)

	rec := do(t, srv, http.MethodGet, "/api/signals?symbol=TSLA&limit=9999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(t, srv, http.MethodPost, "/api/signals/fetch/nvda", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NVDA", decode(t, rec)["symbol"])

	rec = do(t, srv, http.MethodPost, "/api/signals/fetch/zzzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPositionsAndClose(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("ListPositions", mock.Anything, "open", defaultLimit).Return([]model.Position{{Symbol: "AAPL"}}, nil)
	ctl.On("ClosePosition", mock.Anything, uint(4), "take profit manually").
		Return(&agent.CloseResult{PositionID: 4, Symbol: "AAPL", ExitPrice: 210, PnL: 20, PnLPct: 0.1}, nil)
	ctl.On("ClosePosition", mock.Anything, uint(5), "").Return(nil, agent.ErrAlreadyClosed)
	ctl.On("ClosePosition", mock.Anything, uint(6), "").Return(nil, store.ErrNotFound)

	rec := do(t, srv, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/positions/4/close", `{"reason":"take profit manually"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "closed", body["status"])
	assert.Equal(t, "Profit: +$20.00", body["outcome"])

	rec = do(t, srv, http.MethodPost, "/api/positions/5/close", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/positions/6/close", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/positions/abc/close", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlerts(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("ListAlerts", mock.Anything, true, "", 10).Return([]model.Alert{{Title: "Risk"}}, nil)
	ctl.On("ListAlerts", mock.Anything, false, "risk_warning", defaultLimit).Return([]model.Alert{{Title: "Risk"}, {Title: "Risk 2"}}, nil)
	ctl.On("ListAlerts", mock.Anything, false, "spam", defaultLimit).Return([]model.Alert(nil), apperr.Invalid("alert_type", "must be opportunity or risk_warning"))
	ctl.On("MarkAlertRead", mock.Anything, uint(3)).Return(nil)
	ctl.On("MarkAlertRead", mock.Anything, uint(9)).Return(store.ErrNotFound)

	rec := do(t, srv, http.MethodGet, "/api/alerts?unread=true&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(t, srv, http.MethodGet, "/api/alerts?alert_type=risk_warning", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])

	rec = do(t, srv, http.MethodGet, "/api/alerts?alert_type=spam", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/alerts/3/read", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/alerts/9/read", "").Code)
}

func TestActivities(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("LogActivity", mock.Anything, mock.MatchedBy(func(in sentinel.ActivityInput) bool {
		return in.Symbol == "TSLA" && in.Side == "buy" && in.Quantity == 10
	})).Return(&model.UserActivity{ID: 1, Symbol: "TSLA"}, nil)
	ctl.On("Activities", mock.Anything, defaultLimit).Return([]model.UserActivity{{ID: 1}}, nil)
	ctl.On("RecordOutcome", mock.Anything, uint(1), "Loss: -$87.00").Return(nil)
	ctl.On("RecordOutcome", mock.Anything, uint(2), "Profit: +$5.00").Return(store.ErrConflict)

	rec := do(t, srv, http.MethodPost, "/api/activities", `{"activity_type":"trade","symbol":"TSLA","side":"buy","quantity":10,"price":450}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/activities", `{"symbol":"TSLA"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/activities/1/outcome", `{"outcome":"Loss: -$87.00"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/activities/2/outcome", `{"outcome":"Profit: +$5.00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/activities/2/outcome", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsAndInternalError(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("ListLogs", mock.Anything, "AnalysisJob", defaultLimit).Return([]model.ActivityLog{{Agent: "AnalysisJob"}}, nil)
	ctl.On("ListTrades", mock.Anything, "", defaultLimit).Return([]model.Trade(nil), errors.New("db locked"))

	rec := do(t, srv, http.MethodGet, "/api/logs?agent=AnalysisJob", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/trades", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db locked", decode(t, rec)["error"])
}

func TestWatchlist(t *testing.T) {
	srv, _, wl := newTestServer(t)
	wl.On("List", mock.Anything).Return([]model.MonitoredTicker{{Symbol: "AMD"}}, nil)
	wl.On("Add", mock.Anything, "amd").Return(&model.MonitoredTicker{Symbol: "AMD", IsActive: true}, nil)
	wl.On("Remove", mock.Anything, "AMD").Return(nil)
	wl.On("Remove", mock.Anything, "MSFT").Return(store.ErrNotFound)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/watchlist", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/watchlist", `{"symbol":"amd"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/watchlist", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/watchlist/amd", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/watchlist/msft", "").Code)
}

func TestExecuteTrade(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("ExecuteTrade", mock.Anything, agent.ManualTrade{Symbol: "TSLA", Quantity: 2, Side: "buy", Reason: "earnings"}).
		Return(&broker.Order{ID: "o-1", Symbol: "TSLA", Side: "buy", Qty: decimal.NewFromInt(2), Status: "accepted"}, nil)
	ctl.On("ExecuteTrade", mock.Anything, agent.ManualTrade{Symbol: "TSLA", Quantity: 2, Side: "hodl"}).
		Return(nil, apperr.Invalid("side", "must be buy or sell"))
	ctl.On("ExecuteTrade", mock.Anything, agent.ManualTrade{Symbol: "GME", Quantity: 1, Side: "buy"}).
		Return(nil, &broker.BrokerError{StatusCode: 403, Message: "insufficient buying power"})

	rec := do(t, srv, http.MethodPost, "/api/trades/execute", `{"symbol":"TSLA","quantity":2,"side":"buy","reason":"earnings"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, "Order submitted and logged to Observer.", body["message"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "o-1", order["id"])
	assert.Equal(t, 2.0, order["qty"])

	rec = do(t, srv, http.MethodPost, "/api/trades/execute", `{"symbol":"TSLA","quantity":2,"side":"hodl"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "side", decode(t, rec)["field"])

	rec = do(t, srv, http.MethodPost, "/api/trades/execute", `{"symbol":"TSLA","side":"buy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/trades/execute", `{"symbol":"GME","quantity":1,"side":"buy"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "insufficient buying power")
	ctl.AssertNumberOfCalls(t, "ExecuteTrade", 3)
}

func TestAnalysisRunAndHistory(t *testing.T) {
	srv, ctl, _ := newTestServer(t)
	ctl.On("RunAnalysis", mock.Anything, agent.AnalysisRequest{Ticker: "nvda", Date: "2026-10-19", Analysts: []string{"market"}}).
		Return(&model.AnalysisRecord{ID: 3, Ticker: "NVDA", Decision: "BUY", Confidence: 0.7}, nil)
	ctl.On("RunAnalysis", mock.Anything, agent.AnalysisRequest{}).Return(nil, apperr.Invalid("ticker", "is required"))
	ctl.On("AnalysisHistory", mock.Anything, "NVDA", 10).Return([]model.AnalysisRecord{{ID: 3, Ticker: "NVDA"}, {ID: 1, Ticker: "NVDA"}}, nil)
	ctl.On("AnalysisHistory", mock.Anything, "NVDA", 2).Return([]model.AnalysisRecord{{ID: 3, Ticker: "NVDA"}}, nil)

	rec := do(t, srv, http.MethodPost, "/api/analysis/run", `{"ticker":"nvda","date":"2026-10-19","analysts":["market"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BUY", decode(t, rec)["decision"])

	rec = do(t, srv, http.MethodPost, "/api/analysis/run", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/analysis/history/nvda", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "NVDA", body["ticker"])
	assert.Len(t, body["reports"], 2)

	rec = do(t, srv, http.MethodGet, "/api/analysis/history/NVDA?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["reports"], 1)
}
