package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Oracle.validate(); err != nil {
		return err
	}
	if err := c.Trading.Validate(); err != nil {
		return err
	}
	if err := c.Portfolio.validate(); err != nil {
		return err
	}
	if err := c.Lock.validate(); err != nil {
		return err
	}
	return c.Notify.validate()
}

func (d *DatabaseConfig) validate() error {
	switch d.Type {
	case "sqlite":
		if strings.TrimSpace(d.Path) == "" && strings.TrimSpace(d.DSN) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "postgresql", "mysql":
		if strings.TrimSpace(d.DSN) == "" {
			return fmt.Errorf("database.dsn is required for %s", d.Type)
		}
	default:
		return fmt.Errorf("database.type %q is not supported", d.Type)
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	if b.Provider != "alpaca" {
		return fmt.Errorf("broker.provider %q is not supported", b.Provider)
	}
	if b.TimeoutSeconds <= 0 {
		return fmt.Errorf("broker.timeout_seconds must be > 0")
	}
	return nil
}

func (o *OracleConfig) validate() error {
	switch o.Provider {
	case "http":
		if strings.TrimSpace(o.Endpoint) == "" {
			return fmt.Errorf("oracle.endpoint is required")
		}
	case "llm":
		if strings.TrimSpace(o.Endpoint) == "" || strings.TrimSpace(o.Model) == "" {
			return fmt.Errorf("oracle.endpoint and oracle.model are required for llm provider")
		}
	default:
		return fmt.Errorf("oracle.provider %q is not supported", o.Provider)
	}
	if o.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle.timeout_seconds must be > 0")
	}
	return nil
}

// Validate 校验交易阈值，热更新时同样调用。
func (t TradingConfig) Validate() error {
	if t.MaxPositions <= 0 {
		return fmt.Errorf("trading.max_positions must be > 0")
	}
	if t.MinSentiment < -1 || t.MinSentiment > 1 {
		return fmt.Errorf("trading.min_sentiment must be within [-1, 1]")
	}
	if t.TakeProfitPct <= 0 || t.StopLossPct <= 0 {
		return fmt.Errorf("trading.take_profit_pct and trading.stop_loss_pct must be > 0")
	}
	if t.SentinelThreshold < 0 || t.SentinelThreshold > 1 {
		return fmt.Errorf("trading.sentinel_threshold must be within [0, 1]")
	}
	return nil
}

func (p *PortfolioConfig) validate() error {
	if p.TotalBudget < 0 || p.MaxPositionSize < 0 {
		return fmt.Errorf("portfolio budget values must be >= 0")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("portfolio.min_confidence must be within [0, 1]")
	}
	return nil
}

func (l *LockConfig) validate() error {
	switch l.Type {
	case "local":
		return nil
	case "redis":
		if strings.TrimSpace(l.RedisAddr) == "" {
			return fmt.Errorf("lock.redis_addr is required for redis lock")
		}
		return nil
	default:
		return fmt.Errorf("lock.type %q is not supported", l.Type)
	}
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled && (strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
