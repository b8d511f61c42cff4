package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Broker 为券商接口，成交以券商为准。
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetLatestQuote(ctx context.Context, symbol string) (Quote, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Order, error)
	ClosePosition(ctx context.Context, symbol string, qty float64) (Order, error)
}

type Account struct {
	Equity      decimal.Decimal
	LastEquity  decimal.Decimal
	Cash        decimal.Decimal
	BuyingPower decimal.Decimal
	Status      string
}

type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarketValue   decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPL  decimal.Decimal
}

type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// BuyPrice 返回用于开仓估算的价格：优先卖一价，缺失时回退买一价。
func (q Quote) BuyPrice() float64 {
	if q.Ask > 0 {
		return q.Ask
	}
	return q.Bid
}

// SellPrice 返回用于平仓估值的价格：优先买一价，缺失时回退卖一价。
func (q Quote) SellPrice() float64 {
	if q.Bid > 0 {
		return q.Bid
	}
	return q.Ask
}

type OrderRequest struct {
	Symbol        string
	Qty           float64
	Side          string // buy / sell
	ClientOrderID string
}

type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           string
	Qty            decimal.Decimal
	Status         string
	FilledAvgPrice decimal.Decimal
	SubmittedAt    time.Time
}

// BrokerError 表示券商明确拒绝（余额不足、标的不支持、休市等），重试无意义。
type BrokerError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *BrokerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("broker rejected (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("broker rejected (http %d): %s", e.StatusCode, e.Message)
}

// TransientError 表示超时、网络错误、限流或 5xx，可在下个周期重试。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("broker %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsRejected(err error) bool {
	var be *BrokerError
	return errors.As(err, &be)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
