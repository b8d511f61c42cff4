package market

import (
	"context"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/logger"
	"tradepilot/internal/pkg/symbol"
)

// QuoteSource 为券商报价。
type QuoteSource interface {
	GetLatestQuote(ctx context.Context, symbol string) (broker.Quote, error)
}

// PriceSource 为加密货币的备用报价来源。
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (broker.Quote, error)
}

// Quotes 组合券商与加密货币报价：加密标的优先使用 crypto 来源，失败时回退券商。
type Quotes struct {
	broker  QuoteSource
	crypto  PriceSource
	symbols *symbol.Classifier
}

func NewQuotes(b QuoteSource, crypto PriceSource, symbols *symbol.Classifier) *Quotes {
	if symbols == nil {
		symbols = symbol.NewClassifier(nil)
	}
	return &Quotes{broker: b, crypto: crypto, symbols: symbols}
}

func (q *Quotes) Latest(ctx context.Context, sym string) (broker.Quote, error) {
	if q.crypto != nil && q.symbols.IsCrypto(sym) {
		quote, err := q.crypto.Quote(ctx, sym)
		if err == nil {
			return quote, nil
		}
		logger.Debugf("加密报价 %s 获取失败，回退券商: %v", sym, err)
	}
	return q.broker.GetLatestQuote(ctx, sym)
}
