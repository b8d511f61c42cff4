package agent

import (
	"context"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/guardrail"
	"tradepilot/internal/store/model"
)

// Quoter 返回最新报价。
type Quoter interface {
	Latest(ctx context.Context, symbol string) (broker.Quote, error)
}

// TradeCalendar 判断标的当前是否可交易。
type TradeCalendar interface {
	CanTrade(symbol string) (bool, string)
}

// Guard 为下单前的硬性风控。
type Guard interface {
	Check(ctx context.Context, symbol string, qty, price float64) guardrail.Verdict
}

// PortfolioReader 读取最新组合配置。
type PortfolioReader interface {
	Portfolio(ctx context.Context) (*model.PortfolioConfig, error)
}
