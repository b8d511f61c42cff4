package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/config"
	"tradepilot/internal/gateway/binance"
	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/gateway/similarity"
	"tradepilot/internal/gateway/social"
	"tradepilot/internal/logger"
	"tradepilot/internal/market"
	"tradepilot/internal/pkg/lock"
	"tradepilot/internal/pkg/symbol"
	"tradepilot/internal/signal"
	"tradepilot/internal/store/gormstore"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildStore(cfg config.DatabaseConfig) (*gormstore.GormStore, error) {
	return gormstore.Open(gormstore.Options{
		Type:         cfg.Type,
		Path:         cfg.Path,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		LogLevel:     cfg.LogLevel,
	})
}

func buildBroker(cfg config.BrokerConfig, symbols *symbol.Classifier) broker.Broker {
	return broker.NewAlpaca(broker.AlpacaOptions{
		APIKey:        cfg.APIKey,
		APISecret:     cfg.APISecret,
		BaseURL:       cfg.BaseURL,
		DataURL:       cfg.DataURL,
		Timeout:       seconds(cfg.TimeoutSeconds),
		RatePerSecond: cfg.RatePerSecond,
		Symbols:       symbols,
	})
}

// buildQuotes 组合券商报价与 Binance 加密报价；Binance 不可用时只用券商。
func buildQuotes(cfg config.CryptoConfig, b broker.Broker, symbols *symbol.Classifier) *market.Quotes {
	if !cfg.BinanceQuotes {
		return market.NewQuotes(b, nil, symbols)
	}
	src, err := binance.New(binanceConfig(cfg))
	if err != nil {
		logger.Warnf("Binance 报价初始化失败，加密标的回退券商报价: %v", err)
		return market.NewQuotes(b, nil, symbols)
	}
	return market.NewQuotes(b, src, symbols)
}

func binanceConfig(cfg config.CryptoConfig) binance.Config {
	return binance.Config{RESTBaseURL: cfg.BinanceBaseURL, RESTProxyURL: cfg.BinanceProxyURL}
}

func buildLocker(ctx context.Context, cfg config.LockConfig) (lock.Locker, error) {
	if strings.EqualFold(cfg.Type, "redis") {
		l, err := lock.NewRedisLockFromAddr(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("init redis lock: %w", err)
		}
		logger.Infof("✓ 使用 Redis 分布式锁: %s", cfg.RedisAddr)
		return l, nil
	}
	return lock.NewLocalLock(), nil
}

func buildOracle(cfg config.OracleConfig) oracle.Oracle {
	timeout := seconds(cfg.TimeoutSeconds)
	if strings.EqualFold(cfg.Provider, "llm") {
		chat := oracle.NewChatClient(cfg.Endpoint, cfg.APIKey, cfg.Model, timeout, cfg.MaxRetries, cfg.Headers)
		return oracle.NewLLMOracle(chat, cfg.Model)
	}
	return oracle.NewHTTPOracle(cfg.Endpoint, timeout, cfg.Headers)
}

// buildMemory 打开行为记忆库；未配置嵌入服务密钥时使用本地哈希向量。
func buildMemory(cfg config.EmbeddingConfig) (*similarity.SQLiteStore, error) {
	var embedder similarity.Embedder = similarity.HashEmbedder{}
	if strings.TrimSpace(cfg.APIKey) != "" {
		embedder = similarity.NewOpenAIEmbedder(cfg.APIURL, cfg.APIKey, cfg.Model, seconds(cfg.TimeoutSeconds))
	} else {
		logger.Warnf("未配置 embedding.api_key，记忆库使用本地哈希向量")
	}
	return similarity.NewSQLiteStore(cfg.StorePath, embedder)
}

// buildFeeds 按配置创建社交来源，禁用的来源返回 nil。
func buildFeeds(cfg config.SourcesConfig) (signal.StreamFeed, signal.ForumFeed) {
	var (
		stream signal.StreamFeed
		forum  signal.ForumFeed
	)
	if cfg.StockTwits.Enabled {
		stream = social.NewStockTwits(social.ClientOptions{
			BaseURL:       cfg.StockTwits.BaseURL,
			UserAgent:     cfg.UserAgent,
			Timeout:       seconds(cfg.TimeoutSeconds),
			RatePerSecond: cfg.StockTwits.RatePerSecond,
		}, cfg.StockTwits.StreamLimit)
	}
	if cfg.Reddit.Enabled {
		forum = social.NewReddit(social.ClientOptions{
			BaseURL:       cfg.Reddit.BaseURL,
			UserAgent:     cfg.UserAgent,
			Timeout:       seconds(cfg.TimeoutSeconds),
			RatePerSecond: cfg.Reddit.RatePerSecond,
		}, cfg.Reddit.PostLimit)
	}
	return stream, forum
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return notifier.Nop{}
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}
