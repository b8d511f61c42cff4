package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tradepilot/internal/agent"
	"tradepilot/internal/analysis/visual"
	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/apperr"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/store/model"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Controller 为 HTTP 层依赖的控制面，由 agent.Service 实现。
type Controller interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	KillSwitch(ctx context.Context) (int64, error)
	Status(ctx context.Context) (*agent.Status, error)
	GetConfig(ctx context.Context) (*model.PortfolioConfig, error)
	UpdateConfig(ctx context.Context, u agent.PortfolioUpdate) (*model.PortfolioConfig, error)
	PortfolioHistory(ctx context.Context, period string) ([]model.PortfolioSnapshot, error)
	ListSignals(ctx context.Context, sym string, limit int) ([]model.Signal, error)
	FetchTicker(ctx context.Context, sym string) (*model.Signal, error)
	ListPositions(ctx context.Context, status string, limit int) ([]model.Position, error)
	ClosePosition(ctx context.Context, id uint, reason string) (*agent.CloseResult, error)
	ListTrades(ctx context.Context, sym string, limit int) ([]model.Trade, error)
	ExecuteTrade(ctx context.Context, in agent.ManualTrade) (*broker.Order, error)
	ListAlerts(ctx context.Context, unreadOnly bool, alertType string, limit int) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, id uint) error
	LogActivity(ctx context.Context, in sentinel.ActivityInput) (*model.UserActivity, error)
	Activities(ctx context.Context, limit int) ([]model.UserActivity, error)
	RecordOutcome(ctx context.Context, id uint, outcome string) error
	ListLogs(ctx context.Context, agentName string, limit int) ([]model.ActivityLog, error)
	RunAnalysis(ctx context.Context, req agent.AnalysisRequest) (*model.AnalysisRecord, error)
	AnalysisHistory(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error)
}

// WatchlistController 由 agent.Watchlist 实现。
type WatchlistController interface {
	Add(ctx context.Context, symbol string) (*model.MonitoredTicker, error)
	Remove(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]model.MonitoredTicker, error)
}

// Router 挂载 /api 下的全部接口。
type Router struct {
	ctl       Controller
	watchlist WatchlistController
}

func NewRouter(ctl Controller, watchlist WatchlistController) *Router {
	return &Router{ctl: ctl, watchlist: watchlist}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	auto := group.Group("/autonomous")
	auto.POST("/enable", r.handleEnable)
	auto.POST("/disable", r.handleDisable)
	auto.GET("/status", r.handleStatus)
	auto.POST("/kill", r.handleKill)

	group.GET("/portfolio/config", r.handleGetConfig)
	group.POST("/portfolio/config", r.handleUpdateConfig)
	group.GET("/portfolio/history", r.handleHistory)
	group.GET("/portfolio/chart", r.handleChart)

	group.GET("/signals", r.handleSignals)
	group.POST("/signals/fetch/:symbol", r.handleFetchTicker)

	group.GET("/positions", r.handlePositions)
	group.POST("/positions/:id/close", r.handleClosePosition)
	group.GET("/trades", r.handleTrades)
	group.POST("/trades/execute", r.handleExecuteTrade)

	group.POST("/analysis/run", r.handleRunAnalysis)
	group.GET("/analysis/history/:ticker", r.handleAnalysisHistory)

	group.GET("/alerts", r.handleAlerts)
	group.POST("/alerts/:id/read", r.handleAlertRead)

	group.GET("/activities", r.handleActivities)
	group.POST("/activities", r.handleLogActivity)
	group.POST("/activities/:id/outcome", r.handleOutcome)

	group.GET("/logs", r.handleLogs)

	if r.watchlist != nil {
		group.GET("/watchlist", r.handleWatchlist)
		group.POST("/watchlist", r.handleWatchlistAdd)
		group.DELETE("/watchlist/:symbol", r.handleWatchlistRemove)
	}
}

func (r *Router) handleEnable(c *gin.Context) {
	if err := r.ctl.Enable(c.Request.Context()); err != nil {
		writeError(c, "autonomous enable", err)
		return
	}
	logger.Infof("[api] autonomous enabled ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "enabled", "message": "Autonomous trading enabled"})
}

func (r *Router) handleDisable(c *gin.Context) {
	if err := r.ctl.Disable(c.Request.Context()); err != nil {
		writeError(c, "autonomous disable", err)
		return
	}
	logger.Infof("[api] autonomous disabled ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "disabled", "message": "Autonomous trading disabled"})
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.ctl.Status(c.Request.Context())
	if err != nil {
		writeError(c, "autonomous status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleKill(c *gin.Context) {
	deleted, err := r.ctl.KillSwitch(c.Request.Context())
	if err != nil {
		writeError(c, "kill switch", err)
		return
	}
	logger.Warnf("[api] kill switch activated ip=%s signals_deleted=%d", c.ClientIP(), deleted)
	c.JSON(http.StatusOK, gin.H{
		"status":          "killed",
		"message":         "Emergency kill switch activated. Autonomous trading disabled.",
		"signals_deleted": deleted,
		"note":            "Existing positions are NOT automatically closed. Review and close manually if needed.",
	})
}

func (r *Router) handleGetConfig(c *gin.Context) {
	cfg, err := r.ctl.GetConfig(c.Request.Context())
	if err != nil {
		writeError(c, "portfolio config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (r *Router) handleUpdateConfig(c *gin.Context) {
	var req agent.PortfolioUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := r.ctl.UpdateConfig(c.Request.Context(), req)
	if err != nil {
		writeError(c, "portfolio config update", err)
		return
	}
	logger.Infof("[api] portfolio config updated ip=%s budget=%.2f max_position=%.2f", c.ClientIP(), cfg.TotalBudget, cfg.MaxPositionSize)
	c.JSON(http.StatusOK, cfg)
}

// historyPoint 与前端图表约定的字段。
type historyPoint struct {
	Timestamp      string  `json:"timestamp"`
	TotalValue     float64 `json:"total_value"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
	PnL            float64 `json:"pnl"`
	DayPnL         float64 `json:"day_pnl"`
}

func (r *Router) handleHistory(c *gin.Context) {
	period := periodParam(c)
	snaps, err := r.ctl.PortfolioHistory(c.Request.Context(), period)
	if err != nil {
		writeError(c, "portfolio history", err)
		return
	}
	data := make([]historyPoint, 0, len(snaps))
	for _, s := range snaps {
		data = append(data, historyPoint{
			Timestamp:      s.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			TotalValue:     s.TotalEquity,
			Cash:           s.CashBalance,
			PositionsValue: s.PositionsValue,
			PnL:            s.PnLAllTime,
			DayPnL:         s.PnLDaily,
		})
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": period, "data": data})
}

func (r *Router) handleChart(c *gin.Context) {
	period := periodParam(c)
	snaps, err := r.ctl.PortfolioHistory(c.Request.Context(), period)
	if err != nil {
		writeError(c, "portfolio chart", err)
		return
	}
	html, err := visual.RenderEquity(visual.EquityInput{Title: "Portfolio Equity", Period: period, Snapshots: snaps})
	if err != nil {
		if len(snaps) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		writeError(c, "portfolio chart", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (r *Router) handleSignals(c *gin.Context) {
	sigs, err := r.ctl.ListSignals(c.Request.Context(), c.Query("symbol"), limitParam(c))
	if err != nil {
		writeError(c, "signals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs, "count": len(sigs)})
}

func (r *Router) handleFetchTicker(c *gin.Context) {
	sig, err := r.ctl.FetchTicker(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, "fetch ticker", err)
		return
	}
	logger.Infof("[api] fetched %s sentiment=%.3f volume=%d", sig.Symbol, sig.WeightedSentiment, sig.Volume)
	c.JSON(http.StatusOK, sig)
}

func (r *Router) handlePositions(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.DefaultQuery("status", model.PositionStatusOpen)))
	positions, err := r.ctl.ListPositions(c.Request.Context(), status, limitParam(c))
	if err != nil {
		writeError(c, "positions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleClosePosition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req closeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := r.ctl.ClosePosition(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, "close position", err)
		return
	}
	logger.Infof("[api] position closed ip=%s id=%d symbol=%s pnl=%.2f", c.ClientIP(), id, res.Symbol, res.PnL)
	c.JSON(http.StatusOK, gin.H{
		"status":      "closed",
		"position_id": res.PositionID,
		"symbol":      res.Symbol,
		"exit_price":  res.ExitPrice,
		"pnl":         res.PnL,
		"pnl_pct":     res.PnLPct,
		"outcome":     agent.OutcomeText(res.PnL),
	})
}

func (r *Router) handleTrades(c *gin.Context) {
	trades, err := r.ctl.ListTrades(c.Request.Context(), c.Query("symbol"), limitParam(c))
	if err != nil {
		writeError(c, "trades", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

type executeRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Reason   string  `json:"reason"`
}

func (r *Router) handleExecuteTrade(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := r.ctl.ExecuteTrade(c.Request.Context(), agent.ManualTrade{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Side:     req.Side,
		Reason:   req.Reason,
	})
	if err != nil {
		writeError(c, "execute trade", err)
		return
	}
	logger.Infof("[api] manual trade submitted ip=%s symbol=%s side=%s qty=%.4f order=%s", c.ClientIP(), order.Symbol, order.Side, req.Quantity, order.ID)
	c.JSON(http.StatusOK, gin.H{
		"status": "submitted",
		"order": gin.H{
			"id":           order.ID,
			"symbol":       order.Symbol,
			"side":         order.Side,
			"qty":          order.Qty.InexactFloat64(),
			"status":       order.Status,
			"submitted_at": order.SubmittedAt,
		},
		"message": "Order submitted and logged to Observer.",
	})
}

func (r *Router) handleRunAnalysis(c *gin.Context) {
	var req agent.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.ctl.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		writeError(c, "run analysis", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleAnalysisHistory(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > maxLimit {
		limit = 10
	}
	reports, err := r.ctl.AnalysisHistory(c.Request.Context(), ticker, limit)
	if err != nil {
		writeError(c, "analysis history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "reports": reports})
}

func (r *Router) handleAlerts(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	alerts, err := r.ctl.ListAlerts(c.Request.Context(), unread, c.Query("alert_type"), limitParam(c))
	if err != nil {
		writeError(c, "alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (r *Router) handleAlertRead(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := r.ctl.MarkAlertRead(c.Request.Context(), id); err != nil {
		writeError(c, "alert read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleActivities(c *gin.Context) {
	items, err := r.ctl.Activities(c.Request.Context(), limitParam(c))
	if err != nil {
		writeError(c, "activities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": items, "count": len(items)})
}

func (r *Router) handleLogActivity(c *gin.Context) {
	var in sentinel.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	act, err := r.ctl.LogActivity(c.Request.Context(), in)
	if err != nil {
		writeError(c, "log activity", err)
		return
	}
	c.JSON(http.StatusCreated, act)
}

type outcomeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (r *Router) handleOutcome(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.ctl.RecordOutcome(c.Request.Context(), id, req.Outcome); err != nil {
		writeError(c, "record outcome", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleLogs(c *gin.Context) {
	logs, err := r.ctl.ListLogs(c.Request.Context(), c.Query("agent"), limitParam(c))
	if err != nil {
		writeError(c, "logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (r *Router) handleWatchlist(c *gin.Context) {
	items, err := r.watchlist.List(c.Request.Context())
	if err != nil {
		writeError(c, "watchlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickers": items, "count": len(items)})
}

type watchlistRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (r *Router) handleWatchlistAdd(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := r.watchlist.Add(c.Request.Context(), req.Symbol)
	if err != nil {
		writeError(c, "watchlist add", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (r *Router) handleWatchlistRemove(c *gin.Context) {
	sym := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if err := r.watchlist.Remove(c.Request.Context(), sym); err != nil {
		writeError(c, "watchlist remove", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": sym + " removed"})
}

func limitParam(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func periodParam(c *gin.Context) string {
	period := strings.ToUpper(strings.TrimSpace(c.Query("period")))
	if period == "" {
		period = strings.ToUpper(strings.TrimSpace(c.DefaultQuery("timeframe", agent.Period1M)))
	}
	return period
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, "parse id", apperr.Invalid("id", "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
