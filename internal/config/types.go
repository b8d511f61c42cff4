package config

import "strings"

// Config 是 tradepilot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Database  DatabaseConfig  `toml:"database"`
	Broker    BrokerConfig    `toml:"broker"`
	Oracle    OracleConfig    `toml:"oracle"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Sources   SourcesConfig   `toml:"sources"`
	Trading   TradingConfig   `toml:"trading"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Lock      LockConfig      `toml:"lock"`
	Notify    NotifyConfig    `toml:"notify"`
	Crypto    CryptoConfig    `toml:"crypto"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	OracleLog  string `toml:"oracle_log_path"`
	OracleDump bool   `toml:"oracle_dump"`
	UserID     string `toml:"user_id"`
}

// DatabaseConfig 选择关系型存储；sqlite 时使用 Path，其余类型使用 DSN。
type DatabaseConfig struct {
	Type         string `toml:"type"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	LogLevel     string `toml:"log_level"`
}

type BrokerConfig struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	APISecret      string  `toml:"api_secret"`
	BaseURL        string  `toml:"base_url"`
	DataURL        string  `toml:"data_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RatePerSecond  float64 `toml:"rate_per_second"`
}

// OracleConfig 描述外部分析引擎：http 为独立分析服务，llm 为 OpenAI 兼容聊天接口。
type OracleConfig struct {
	Provider       string            `toml:"provider"`
	Endpoint       string            `toml:"endpoint"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Headers        map[string]string `toml:"headers"`
	Analysts       []string          `toml:"analysts"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	MaxRetries     int               `toml:"max_retries"`
}

type EmbeddingConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	StorePath      string `toml:"store_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type SourcesConfig struct {
	UserAgent      string             `toml:"user_agent"`
	TimeoutSeconds int                `toml:"timeout_seconds"`
	LexiconPath    string             `toml:"lexicon_path"`
	Weights        map[string]float64 `toml:"weights"`
	StockTwits     StockTwitsConfig   `toml:"stocktwits"`
	Reddit         RedditConfig       `toml:"reddit"`
}

type StockTwitsConfig struct {
	Enabled       bool    `toml:"enabled"`
	BaseURL       string  `toml:"base_url"`
	TrendingLimit int     `toml:"trending_limit"`
	StreamLimit   int     `toml:"stream_limit"`
	MinVolume     int     `toml:"min_volume"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

type RedditConfig struct {
	Enabled       bool     `toml:"enabled"`
	BaseURL       string   `toml:"base_url"`
	Subreddits    []string `toml:"subreddits"`
	PostLimit     int      `toml:"post_limit"`
	MinVolume     int      `toml:"min_volume"`
	RatePerSecond float64  `toml:"rate_per_second"`
}

// TradingConfig 为策略阈值，支持热更新。
type TradingConfig struct {
	AutonomousEnabled   bool    `toml:"autonomous_enabled"`
	MaxPositions        int     `toml:"max_positions"`
	MinSentiment        float64 `toml:"min_sentiment"`
	TakeProfitPct       float64 `toml:"take_profit_pct"`
	StopLossPct         float64 `toml:"stop_loss_pct"`
	SignalWindowMinutes int     `toml:"signal_window_minutes"`
	CandidateLimit      int     `toml:"candidate_limit"`
	IgnoreMarketHours   bool    `toml:"ignore_market_hours"`
	SentinelThreshold   float64 `toml:"sentinel_threshold"`
}

// PortfolioConfig 是首次启动时写入数据库的组合配置种子值。
type PortfolioConfig struct {
	TotalBudget     float64  `toml:"total_budget"`
	MaxPositionSize float64  `toml:"max_position_size"`
	MaxDrawdown     float64  `toml:"max_drawdown"`
	RiskTolerance   string   `toml:"risk_tolerance"`
	MinConfidence   float64  `toml:"min_confidence"`
	StrategyName    string   `toml:"strategy_name"`
	AllowedSymbols  []string `toml:"allowed_symbols"`
}

// TaskSchedule 描述单个周期任务的调度参数（秒）。
type TaskSchedule struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
	TimeoutSeconds  int  `toml:"timeout_seconds"`
}

type SchedulerConfig struct {
	RunImmediately         bool         `toml:"run_immediately"`
	BreakerThreshold       int          `toml:"breaker_threshold"`
	BreakerCooldownSeconds int          `toml:"breaker_cooldown_seconds"`
	QuoteConcurrency       int          `toml:"quote_concurrency"`
	Signals                TaskSchedule `toml:"signals"`
	Decision               TaskSchedule `toml:"decision"`
	Monitor                TaskSchedule `toml:"monitor"`
	Watchlist              TaskSchedule `toml:"watchlist"`
	Snapshot               TaskSchedule `toml:"snapshot"`
}

// LockConfig 选择按标的加锁的实现：local 为进程内互斥，redis 用于多实例部署。
type LockConfig struct {
	Type          string `toml:"type"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// CryptoConfig 列出 7x24 交易的加密标的，并可选用 Binance 报价。
type CryptoConfig struct {
	Symbols         []string `toml:"symbols"`
	BinanceQuotes   bool     `toml:"binance_quotes"`
	BinanceBaseURL  string   `toml:"binance_base_url"`
	BinanceProxyURL string   `toml:"binance_proxy_url"` // 支持 ${ENV} 展开
}

// SourceWeight 返回来源权重，未配置时回退到 default 或 0.7。
func (s SourcesConfig) SourceWeight(source string) float64 {
	source = strings.ToLower(strings.TrimSpace(source))
	if w, ok := s.Weights[source]; ok && w > 0 {
		return w
	}
	if w, ok := s.Weights["default"]; ok && w > 0 {
		return w
	}
	return defaultSourceWeight
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
