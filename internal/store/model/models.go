package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"

	SideBuy  = "buy"
	SideSell = "sell"

	SourceStockTwits   = "stocktwits"
	SourceActiveFetch  = "active_fetch"
	SourceRedditPrefix = "reddit:"

	AlertOpportunity  = "opportunity"
	AlertRiskWarning  = "risk_warning"
	AlertPatternMatch = "pattern_match"
)

// Signal 为单一来源对某个标的的情绪观测，写入后不再修改。
type Signal struct {
	ID                uint              `gorm:"column:id;primaryKey" json:"id"`
	Symbol            string            `gorm:"column:symbol;size:16;index;not null" json:"symbol"`
	Source            string            `gorm:"column:source;size:128;not null" json:"source"`
	SourceDetail      string            `gorm:"column:source_detail;size:128" json:"source_detail"`
	RawSentiment      float64           `gorm:"column:raw_sentiment" json:"raw_sentiment"`
	WeightedSentiment float64           `gorm:"column:sentiment;index" json:"sentiment"`
	Volume            int               `gorm:"column:volume" json:"volume"`
	Freshness         float64           `gorm:"column:freshness" json:"freshness"`
	SourceWeight      float64           `gorm:"column:source_weight" json:"source_weight"`
	Reason            string            `gorm:"column:reason;type:text" json:"reason"`
	Timestamp         time.Time         `gorm:"column:timestamp;index;not null" json:"timestamp"`
	Metadata          datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Signal) TableName() string { return "signals" }

type Position struct {
	ID                uint              `gorm:"column:id;primaryKey" json:"id"`
	Symbol            string            `gorm:"column:symbol;size:16;index;not null" json:"symbol"`
	EntryTime         time.Time         `gorm:"column:entry_time;not null" json:"entry_time"`
	EntryPrice        float64           `gorm:"column:entry_price" json:"entry_price"`
	EntrySentiment    float64           `gorm:"column:entry_sentiment" json:"entry_sentiment"`
	EntrySocialVolume int               `gorm:"column:entry_social_volume" json:"entry_social_volume"`
	EntryReason       string            `gorm:"column:entry_reason;type:text" json:"entry_reason"`
	ExitTime          *time.Time        `gorm:"column:exit_time" json:"exit_time,omitempty"`
	ExitPrice         *float64          `gorm:"column:exit_price" json:"exit_price,omitempty"`
	ExitReason        string            `gorm:"column:exit_reason;type:text" json:"exit_reason,omitempty"`
	Quantity          float64           `gorm:"column:quantity" json:"quantity"`
	Status            string            `gorm:"column:status;size:16;index;default:open" json:"status"`
	PnL               *float64          `gorm:"column:pnl" json:"pnl,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (Position) TableName() string { return "positions" }

// CostBasis 返回开仓占用资金。
func (p Position) CostBasis() float64 {
	return p.EntryPrice * p.Quantity
}

// Trade 为成交记录，只允许回填 position_id。
type Trade struct {
	ID            uint              `gorm:"column:id;primaryKey" json:"id"`
	PositionID    *uint             `gorm:"column:position_id;index" json:"position_id,omitempty"`
	Symbol        string            `gorm:"column:symbol;size:16;index;not null" json:"symbol"`
	Side          string            `gorm:"column:side;size:8;not null" json:"side"`
	Quantity      float64           `gorm:"column:quantity;not null" json:"quantity"`
	Price         float64           `gorm:"column:price" json:"price"`
	OrderType     string            `gorm:"column:order_type;size:16" json:"order_type"`
	Status        string            `gorm:"column:status;size:32" json:"status"`
	BrokerOrderID string            `gorm:"column:broker_order_id;size:100" json:"broker_order_id"`
	ExecutedAt    time.Time         `gorm:"column:executed_at" json:"executed_at"`
	Metadata      datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Trade) TableName() string { return "trades" }

// PortfolioConfig 为每个用户一行的风控配置。
type PortfolioConfig struct {
	ID                     uint           `gorm:"column:id;primaryKey" json:"id"`
	UserID                 string         `gorm:"column:user_id;size:50;uniqueIndex" json:"user_id"`
	IsAutonomousActive     bool           `gorm:"column:is_autonomous_active" json:"is_autonomous_active"`
	TotalBudget            float64        `gorm:"column:total_budget" json:"total_budget"`
	CurrentAllocation      float64        `gorm:"column:current_allocation" json:"current_allocation"`
	MaxPositionSize        float64        `gorm:"column:max_position_size" json:"max_position_size"`
	MaxDrawdown            float64        `gorm:"column:max_drawdown" json:"max_drawdown"`
	RiskTolerance          string         `gorm:"column:risk_tolerance;size:20" json:"risk_tolerance"`
	AllowedSymbols         datatypes.JSON `gorm:"column:allowed_symbols" json:"allowed_symbols"`
	MinConfidenceThreshold float64        `gorm:"column:min_confidence_threshold" json:"min_confidence_threshold"`
	StrategyName           string         `gorm:"column:strategy_name;size:50" json:"strategy_name"`
	UpdatedAt              time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (PortfolioConfig) TableName() string { return "portfolio_config" }

// Allowlist 解析 allowed_symbols，解析失败按空列表处理。
func (c PortfolioConfig) Allowlist() []string {
	if len(c.AllowedSymbols) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(c.AllowedSymbols, &out); err != nil {
		return nil
	}
	return out
}

// SetAllowlist 以 JSON 数组写入 allowed_symbols。
func (c *PortfolioConfig) SetAllowlist(symbols []string) {
	if symbols == nil {
		symbols = []string{}
	}
	raw, _ := json.Marshal(symbols)
	c.AllowedSymbols = datatypes.JSON(raw)
}

// UserActivity 为用户行为记录，outcome 事后补写一次。
type UserActivity struct {
	ID               uint              `gorm:"column:id;primaryKey" json:"id"`
	UserID           string            `gorm:"column:user_id;size:50;index" json:"user_id"`
	ActivityType     string            `gorm:"column:activity_type;size:50;index;not null" json:"activity_type"`
	Symbol           string            `gorm:"column:symbol;size:16;index" json:"symbol"`
	Side             string            `gorm:"column:side;size:8" json:"side"`
	Quantity         float64           `gorm:"column:quantity" json:"quantity"`
	PriceAtAction    float64           `gorm:"column:price_at_action" json:"price_at_action"`
	SentimentScore   *float64          `gorm:"column:sentiment_score" json:"sentiment_score,omitempty"`
	NewsContext      string            `gorm:"column:news_context;type:text" json:"news_context"`
	TechnicalContext string            `gorm:"column:technical_context;type:text" json:"technical_context"`
	Timestamp        time.Time         `gorm:"column:timestamp;index" json:"timestamp"`
	Outcome          string            `gorm:"column:outcome;type:text" json:"outcome"`
	Metadata         datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
}

func (UserActivity) TableName() string { return "user_activities" }

type Alert struct {
	ID                uint              `gorm:"column:id;primaryKey" json:"id"`
	UserID            string            `gorm:"column:user_id;size:50;index" json:"user_id"`
	Title             string            `gorm:"column:title;size:200" json:"title"`
	Message           string            `gorm:"column:message;type:text" json:"message"`
	AlertType         string            `gorm:"column:alert_type;size:50" json:"alert_type"`
	SignalID          *uint             `gorm:"column:signal_id;index" json:"signal_id,omitempty"`
	MatchedActivityID *uint             `gorm:"column:matched_activity_id;index" json:"matched_activity_id,omitempty"`
	SimilarityScore   float64           `gorm:"column:similarity_score" json:"similarity_score"`
	IsRead            bool              `gorm:"column:is_read" json:"is_read"`
	Timestamp         time.Time         `gorm:"column:timestamp;index" json:"timestamp"`
	Metadata          datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
}

func (Alert) TableName() string { return "alerts" }

type PortfolioSnapshot struct {
	ID             uint              `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;size:50;index" json:"user_id"`
	Timestamp      time.Time         `gorm:"column:timestamp;index" json:"timestamp"`
	TotalEquity    float64           `gorm:"column:total_equity" json:"total_equity"`
	CashBalance    float64           `gorm:"column:cash_balance" json:"cash_balance"`
	PositionsValue float64           `gorm:"column:positions_value" json:"positions_value"`
	PnLDaily       float64           `gorm:"column:pnl_daily" json:"pnl_daily"`
	PnLAllTime     float64           `gorm:"column:pnl_all_time" json:"pnl_all_time"`
	Metadata       datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
}

func (PortfolioSnapshot) TableName() string { return "portfolio_snapshots" }

// MonitoredTicker 为观察名单条目，只做定时分析不下单。
type MonitoredTicker struct {
	ID             uint              `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;size:50;index" json:"user_id"`
	Symbol         string            `gorm:"column:symbol;size:16;index" json:"symbol"`
	IsActive       bool              `gorm:"column:is_active" json:"is_active"`
	AddedAt        time.Time         `gorm:"column:added_at" json:"added_at"`
	LastAnalyzedAt *time.Time        `gorm:"column:last_analyzed_at" json:"last_analyzed_at,omitempty"`
	LastDecision   string            `gorm:"column:last_decision;size:8" json:"last_decision"`
	LastConfidence float64           `gorm:"column:last_confidence" json:"last_confidence"`
	Metadata       datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
}

func (MonitoredTicker) TableName() string { return "monitored_tickers" }

// AnalysisRecord 保存一次 oracle 分析结果。
type AnalysisRecord struct {
	ID         uint              `gorm:"column:id;primaryKey" json:"id"`
	Ticker     string            `gorm:"column:ticker;size:16;index" json:"ticker"`
	TradeDate  string            `gorm:"column:trade_date;size:20" json:"trade_date"`
	Decision   string            `gorm:"column:final_decision;size:8" json:"decision"`
	Confidence float64           `gorm:"column:confidence" json:"confidence"`
	Purpose    string            `gorm:"column:purpose;size:32" json:"purpose"`
	Reports    datatypes.JSONMap `gorm:"column:reports" json:"reports,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

func (AnalysisRecord) TableName() string { return "analysis_results" }

// ActivityLog 记录各个循环的运行事件，供 /api/logs 查询。
type ActivityLog struct {
	ID        uint              `gorm:"column:id;primaryKey" json:"id"`
	Timestamp time.Time         `gorm:"column:timestamp;index" json:"timestamp"`
	Agent     string            `gorm:"column:agent;size:50" json:"agent"`
	Action    string            `gorm:"column:action;size:100" json:"action"`
	Level     string            `gorm:"column:level;size:20" json:"level"`
	Message   string            `gorm:"column:message;type:text" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"column:meta_data" json:"metadata,omitempty"`
}

func (ActivityLog) TableName() string { return "logs" }

// All 返回需要迁移的全部模型。
func All() []any {
	return []any{
		&Signal{}, &Position{}, &Trade{}, &PortfolioConfig{}, &UserActivity{},
		&Alert{}, &PortfolioSnapshot{}, &MonitoredTicker{}, &AnalysisRecord{}, &ActivityLog{},
	}
}
