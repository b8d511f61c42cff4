package store

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store/model"
)

// ErrNotFound 表示记录不存在，或条件更新未命中（例如仓位已平）。
var ErrNotFound = errors.New("store: record not found")

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	Signals() SignalRepository
	Positions() PositionRepository
	Trades() TradeRepository
	Portfolio() PortfolioRepository
	Activities() ActivityRepository
	Alerts() AlertRepository
	Snapshots() SnapshotRepository
	Watchlist() WatchlistRepository
	Analyses() AnalysisRepository
	Logs() LogRepository
}

// Store is the entry point for database access.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}

// SignalQuery 描述候选信号的筛选条件。
type SignalQuery struct {
	Since        time.Time
	MinSentiment *float64
	Symbol       string
	Limit        int
}

type SignalRepository interface {
	CreateBatch(ctx context.Context, signals []*model.Signal) error
	// TopCandidates 按 (sentiment desc, volume desc, id asc) 排序。
	TopCandidates(ctx context.Context, q SignalQuery) ([]model.Signal, error)
	ListRecent(ctx context.Context, q SignalQuery) ([]model.Signal, error)
	Count(ctx context.Context, q SignalQuery) (int64, error)
	LatestForSymbol(ctx context.Context, symbol string, since time.Time) (*model.Signal, error)
	AverageSentiment(ctx context.Context, symbol string, since time.Time) (float64, int, error)
	DeleteSince(ctx context.Context, since time.Time) (int64, error)
}

type PositionRepository interface {
	Create(ctx context.Context, p *model.Position) error
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindOpenBySymbol(ctx context.Context, symbol string) (*model.Position, error)
	ListOpen(ctx context.Context) ([]model.Position, error)
	CountOpen(ctx context.Context) (int64, error)
	List(ctx context.Context, status string, limit int) ([]model.Position, error)
	// Close 仅在 status='open' 时生效，未命中返回 ErrNotFound。
	Close(ctx context.Context, id uint, exit ExitInfo) error
}

// ExitInfo 为平仓写入的字段。
type ExitInfo struct {
	Time   time.Time
	Price  float64
	Reason string
	PnL    float64
}

type TradeRepository interface {
	Create(ctx context.Context, t *model.Trade) error
	AttachPosition(ctx context.Context, tradeID, positionID uint) error
	List(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
	ListByPosition(ctx context.Context, positionID uint) ([]model.Trade, error)
}

type PortfolioRepository interface {
	// Get 读取用户配置，不存在时返回 ErrNotFound。
	Get(ctx context.Context, userID string) (*model.PortfolioConfig, error)
	// GetOrCreate 不存在时按 seed 创建。
	GetOrCreate(ctx context.Context, seed *model.PortfolioConfig) (*model.PortfolioConfig, error)
	Save(ctx context.Context, cfg *model.PortfolioConfig) error
	SetAutonomous(ctx context.Context, userID string, active bool) error
	SetAllocation(ctx context.Context, userID string, allocation float64) error
	AddAllocation(ctx context.Context, userID string, delta float64) error
}

type ActivityRepository interface {
	Create(ctx context.Context, a *model.UserActivity) error
	FindByID(ctx context.Context, id uint) (*model.UserActivity, error)
	// SetOutcome 仅在 outcome 为空时写入。
	SetOutcome(ctx context.Context, id uint, outcome string) error
	DistinctSymbols(ctx context.Context) ([]string, error)
	List(ctx context.Context, userID string, limit int) ([]model.UserActivity, error)
}

// AlertQuery 为提醒列表的过滤条件，零值字段不参与过滤。
type AlertQuery struct {
	UserID     string
	UnreadOnly bool
	AlertType  string
	Limit      int
}

type AlertRepository interface {
	Create(ctx context.Context, a *model.Alert) error
	List(ctx context.Context, q AlertQuery) ([]model.Alert, error)
	MarkRead(ctx context.Context, id uint) error
	ExistsForSignal(ctx context.Context, signalID, activityID uint) (bool, error)
}

type SnapshotRepository interface {
	Create(ctx context.Context, s *model.PortfolioSnapshot) error
	Latest(ctx context.Context, userID string) (*model.PortfolioSnapshot, error)
	Earliest(ctx context.Context, userID string) (*model.PortfolioSnapshot, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]model.PortfolioSnapshot, error)
}

type WatchlistRepository interface {
	Upsert(ctx context.Context, t *model.MonitoredTicker) error
	ListActive(ctx context.Context, userID string) ([]model.MonitoredTicker, error)
	Deactivate(ctx context.Context, userID, symbol string) error
	RecordAnalysis(ctx context.Context, id uint, at time.Time, decision string, confidence float64) error
}

type AnalysisRepository interface {
	Create(ctx context.Context, r *model.AnalysisRecord) error
	ListRecent(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error)
}

type LogRepository interface {
	Insert(ctx context.Context, l *model.ActivityLog) error
	ListRecent(ctx context.Context, agent string, limit int) ([]model.ActivityLog, error)
}
