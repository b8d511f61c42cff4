package config

import (
	"os"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":9992"
	defaultAppLogPath        = "data/logs/tradepilot.log"
	defaultAppOracleLogPath  = "data/logs/tradepilot-oracle.log"
	defaultUserID            = "default_user"
	defaultDBType            = "sqlite"
	defaultDBPath            = "data/db/tradepilot.db"
	defaultDBMaxOpen         = 2
	defaultBrokerProvider    = "alpaca"
	defaultBrokerBaseURL     = "https://paper-api.alpaca.markets"
	defaultBrokerDataURL     = "https://data.alpaca.markets"
	defaultBrokerTimeout     = 10
	defaultBrokerRate        = 3
	defaultOracleProvider    = "http"
	defaultOracleEndpoint    = "http://localhost:8001"
	defaultOracleTimeout     = 180
	defaultOracleRetries     = 2
	defaultEmbeddingURL      = "https://api.openai.com/v1"
	defaultEmbeddingModel    = "text-embedding-3-small"
	defaultEmbeddingStore    = "data/db/memory.db"
	defaultEmbeddingTimeout  = 20
	defaultUserAgent         = "UnifiedTradingBot/0.1"
	defaultSourcesTimeout    = 10
	defaultStockTwitsURL     = "https://api.stocktwits.com/api/2"
	defaultTrendingLimit     = 15
	defaultStreamLimit       = 30
	defaultStockTwitsVolume  = 5
	defaultStockTwitsRate    = 5
	defaultRedditURL         = "https://www.reddit.com"
	defaultRedditPostLimit   = 25
	defaultRedditVolume      = 1
	defaultRedditRate        = 1
	defaultSourceWeight      = 0.7
	defaultMaxPositions      = 5
	defaultMinSentiment      = 0.3
	defaultTakeProfitPct     = 10
	defaultStopLossPct       = 5
	defaultSignalWindow      = 120
	defaultCandidateLimit    = 5
	defaultSentinelThreshold = 0.35
	defaultTotalBudget       = 1000
	defaultMaxPositionSize   = 100
	defaultMaxDrawdown       = 0.10
	defaultRiskTolerance     = "medium"
	defaultMinConfidence     = 0.7
	defaultStrategyName      = "standard"
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 300
	defaultQuoteConcurrency  = 4
	defaultLockType          = "local"
	defaultLockPrefix        = "tradepilot:lock:"
	defaultLockTTL           = 30
	defaultBinanceBaseURL    = "https://fapi.binance.com"
)

var (
	defaultAnalysts   = []string{"market", "fundamentals"}
	defaultSubreddits = []string{"wallstreetbets", "stocks", "investing", "options"}
	defaultCrypto     = []string{"BTC/USD", "ETH/USD", "SOL/USD", "DOGE/USD", "LTC/USD"}
	defaultWeights    = map[string]float64{
		"stocktwits":            0.85,
		"reddit_wallstreetbets": 0.6,
		"reddit_stocks":         0.9,
		"reddit_investing":      0.8,
		"reddit_options":        0.85,
		"default":               defaultSourceWeight,
	}
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Oracle.applyDefaults(keys)
	c.Embedding.applyDefaults(keys)
	c.Sources.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
	c.Lock.applyDefaults(keys)
	c.Crypto.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.oracle_log_path", &a.OracleLog, defaultAppOracleLogPath),
		stringFieldDefault("app.user_id", &a.UserID, defaultUserID),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("database.type", &d.Type, defaultDBType),
		stringFieldDefault("database.path", &d.Path, defaultDBPath),
		intFieldDefault("database.max_open_conns", &d.MaxOpenConns, defaultDBMaxOpen),
	)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.DSN = os.ExpandEnv(d.DSN)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("broker.provider", &b.Provider, defaultBrokerProvider),
		stringFieldDefault("broker.base_url", &b.BaseURL, defaultBrokerBaseURL),
		stringFieldDefault("broker.data_url", &b.DataURL, defaultBrokerDataURL),
		intFieldDefault("broker.timeout_seconds", &b.TimeoutSeconds, defaultBrokerTimeout),
		floatFieldDefault("broker.rate_per_second", &b.RatePerSecond, defaultBrokerRate),
	)
	b.APIKey = os.ExpandEnv(b.APIKey)
	b.APISecret = os.ExpandEnv(b.APISecret)
}

func (o *OracleConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("oracle.provider", &o.Provider, defaultOracleProvider),
		stringFieldDefault("oracle.endpoint", &o.Endpoint, defaultOracleEndpoint),
		intFieldDefault("oracle.timeout_seconds", &o.TimeoutSeconds, defaultOracleTimeout),
		intFieldDefault("oracle.max_retries", &o.MaxRetries, defaultOracleRetries),
		fieldDefault{
			key:   "oracle.analysts",
			need:  func() bool { return len(o.Analysts) == 0 },
			apply: func() { o.Analysts = append([]string(nil), defaultAnalysts...) },
		},
	)
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	o.APIKey = os.ExpandEnv(o.APIKey)
}

func (e *EmbeddingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("embedding.api_url", &e.APIURL, defaultEmbeddingURL),
		stringFieldDefault("embedding.model", &e.Model, defaultEmbeddingModel),
		stringFieldDefault("embedding.store_path", &e.StorePath, defaultEmbeddingStore),
		intFieldDefault("embedding.timeout_seconds", &e.TimeoutSeconds, defaultEmbeddingTimeout),
	)
	e.APIKey = os.ExpandEnv(e.APIKey)
}

func (s *SourcesConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("sources.user_agent", &s.UserAgent, defaultUserAgent),
		intFieldDefault("sources.timeout_seconds", &s.TimeoutSeconds, defaultSourcesTimeout),
		boolFieldDefault("sources.stocktwits.enabled", &s.StockTwits.Enabled, true),
		stringFieldDefault("sources.stocktwits.base_url", &s.StockTwits.BaseURL, defaultStockTwitsURL),
		intFieldDefault("sources.stocktwits.trending_limit", &s.StockTwits.TrendingLimit, defaultTrendingLimit),
		intFieldDefault("sources.stocktwits.stream_limit", &s.StockTwits.StreamLimit, defaultStreamLimit),
		intFieldDefault("sources.stocktwits.min_volume", &s.StockTwits.MinVolume, defaultStockTwitsVolume),
		floatFieldDefault("sources.stocktwits.rate_per_second", &s.StockTwits.RatePerSecond, defaultStockTwitsRate),
		boolFieldDefault("sources.reddit.enabled", &s.Reddit.Enabled, true),
		stringFieldDefault("sources.reddit.base_url", &s.Reddit.BaseURL, defaultRedditURL),
		intFieldDefault("sources.reddit.post_limit", &s.Reddit.PostLimit, defaultRedditPostLimit),
		intFieldDefault("sources.reddit.min_volume", &s.Reddit.MinVolume, defaultRedditVolume),
		floatFieldDefault("sources.reddit.rate_per_second", &s.Reddit.RatePerSecond, defaultRedditRate),
		fieldDefault{
			key:   "sources.reddit.subreddits",
			need:  func() bool { return len(s.Reddit.Subreddits) == 0 },
			apply: func() { s.Reddit.Subreddits = append([]string(nil), defaultSubreddits...) },
		},
	)
	// 权重按键补齐，显式配置优先
	if s.Weights == nil {
		s.Weights = make(map[string]float64, len(defaultWeights))
	}
	for k, v := range defaultWeights {
		if _, ok := s.Weights[k]; !ok {
			s.Weights[k] = v
		}
	}
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("trading.max_positions", &t.MaxPositions, defaultMaxPositions),
		floatFieldDefault("trading.min_sentiment", &t.MinSentiment, defaultMinSentiment),
		floatFieldDefault("trading.take_profit_pct", &t.TakeProfitPct, defaultTakeProfitPct),
		floatFieldDefault("trading.stop_loss_pct", &t.StopLossPct, defaultStopLossPct),
		intFieldDefault("trading.signal_window_minutes", &t.SignalWindowMinutes, defaultSignalWindow),
		intFieldDefault("trading.candidate_limit", &t.CandidateLimit, defaultCandidateLimit),
		floatFieldDefault("trading.sentinel_threshold", &t.SentinelThreshold, defaultSentinelThreshold),
	)
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("portfolio.total_budget", &p.TotalBudget, defaultTotalBudget),
		floatFieldDefault("portfolio.max_position_size", &p.MaxPositionSize, defaultMaxPositionSize),
		floatFieldDefault("portfolio.max_drawdown", &p.MaxDrawdown, defaultMaxDrawdown),
		stringFieldDefault("portfolio.risk_tolerance", &p.RiskTolerance, defaultRiskTolerance),
		floatFieldDefault("portfolio.min_confidence", &p.MinConfidence, defaultMinConfidence),
		stringFieldDefault("portfolio.strategy_name", &p.StrategyName, defaultStrategyName),
	)
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("scheduler.run_immediately", &s.RunImmediately, true),
		intFieldDefault("scheduler.breaker_threshold", &s.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("scheduler.breaker_cooldown_seconds", &s.BreakerCooldownSeconds, defaultBreakerCooldown),
		intFieldDefault("scheduler.quote_concurrency", &s.QuoteConcurrency, defaultQuoteConcurrency),
	)
	s.Signals.applyDefaults(keys, "scheduler.signals", 30, 60)
	s.Decision.applyDefaults(keys, "scheduler.decision", 120, 600)
	s.Monitor.applyDefaults(keys, "scheduler.monitor", 60, 45)
	s.Watchlist.applyDefaults(keys, "scheduler.watchlist", 3600, 900)
	s.Snapshot.applyDefaults(keys, "scheduler.snapshot", 3600, 30)
}

func (t *TaskSchedule) applyDefaults(keys keySet, prefix string, interval, timeout int) {
	applyFieldDefaults(keys,
		boolFieldDefault(prefix+".enabled", &t.Enabled, true),
		intFieldDefault(prefix+".interval_seconds", &t.IntervalSeconds, interval),
		intFieldDefault(prefix+".timeout_seconds", &t.TimeoutSeconds, timeout),
	)
}

func (l *LockConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("lock.type", &l.Type, defaultLockType),
		stringFieldDefault("lock.prefix", &l.Prefix, defaultLockPrefix),
		intFieldDefault("lock.ttl_seconds", &l.TTLSeconds, defaultLockTTL),
	)
	l.Type = strings.ToLower(strings.TrimSpace(l.Type))
	l.RedisPassword = os.ExpandEnv(l.RedisPassword)
}

func (c *CryptoConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("crypto.binance_quotes", &c.BinanceQuotes, true),
		stringFieldDefault("crypto.binance_base_url", &c.BinanceBaseURL, defaultBinanceBaseURL),
		fieldDefault{
			key:   "crypto.symbols",
			need:  func() bool { return len(c.Symbols) == 0 },
			apply: func() { c.Symbols = append([]string(nil), defaultCrypto...) },
		},
	)
	c.BinanceProxyURL = strings.TrimSpace(os.ExpandEnv(c.BinanceProxyURL))
}

func (n *NotifyConfig) expandSecrets() {
	n.Telegram.BotToken = os.ExpandEnv(n.Telegram.BotToken)
	n.Telegram.ChatID = os.ExpandEnv(n.Telegram.ChatID)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

// boolFieldDefault 仅在键未出现时生效，显式 false 保持不变。
func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
