package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/pkg/symbol"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// AlpacaOptions 为 Alpaca REST 连接参数。
type AlpacaOptions struct {
	APIKey        string
	APISecret     string
	BaseURL       string
	DataURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Symbols       *symbol.Classifier
}

// Alpaca 通过 REST 接口实现 Broker。
type Alpaca struct {
	trading *resty.Client
	data    *resty.Client
	limiter *rate.Limiter
	symbols *symbol.Classifier
}

func NewAlpaca(opts AlpacaOptions) *Alpaca {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://paper-api.alpaca.markets"
	}
	if opts.DataURL == "" {
		opts.DataURL = "https://data.alpaca.markets"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Symbols == nil {
		opts.Symbols = symbol.NewClassifier(nil)
	}
	mk := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(base, "/")).
			SetTimeout(opts.Timeout).
			SetHeader("APCA-API-KEY-ID", opts.APIKey).
			SetHeader("APCA-API-SECRET-KEY", opts.APISecret).
			SetHeader("Accept", "application/json")
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond)+1)
	}
	return &Alpaca{
		trading: mk(opts.BaseURL),
		data:    mk(opts.DataURL),
		limiter: lim,
		symbols: opts.Symbols,
	}
}

type alpacaAccount struct {
	Equity      decimal.Decimal `json:"equity"`
	LastEquity  decimal.Decimal `json:"last_equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Status      string          `json:"status"`
}

type alpacaPosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

type alpacaOrder struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Qty            decimal.NullDecimal `json:"qty"`
	Status         string              `json:"status"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

func (o alpacaOrder) toOrder() Order {
	return Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Qty:            o.Qty.Decimal,
		Status:         o.Status,
		FilledAvgPrice: o.FilledAvgPrice.Decimal,
		SubmittedAt:    o.SubmittedAt,
	}
}

type alpacaQuote struct {
	Bid  float64   `json:"bp"`
	Ask  float64   `json:"ap"`
	Time time.Time `json:"t"`
}

type alpacaErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *Alpaca) GetAccount(ctx context.Context) (Account, error) {
	var acct alpacaAccount
	if err := a.do(ctx, a.trading, http.MethodGet, "/v2/account", nil, nil, &acct); err != nil {
		return Account{}, err
	}
	return Account{
		Equity:      acct.Equity,
		LastEquity:  acct.LastEquity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		Status:      acct.Status,
	}, nil
}

func (a *Alpaca) GetPositions(ctx context.Context) ([]Position, error) {
	var raw []alpacaPosition
	if err := a.do(ctx, a.trading, http.MethodGet, "/v2/positions", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, Position(p))
	}
	return out, nil
}

// GetLatestQuote 股票走 /v2/stocks，加密货币走 v1beta3 crypto 接口。
func (a *Alpaca) GetLatestQuote(ctx context.Context, sym string) (Quote, error) {
	sym = symbol.Normalize(sym)
	if a.symbols.IsCrypto(sym) {
		pair := a.symbols.Alpaca(sym)
		var resp struct {
			Quotes map[string]alpacaQuote `json:"quotes"`
		}
		query := map[string]string{"symbols": pair}
		if err := a.do(ctx, a.data, http.MethodGet, "/v1beta3/crypto/us/latest/quotes", query, nil, &resp); err != nil {
			return Quote{}, err
		}
		q, ok := resp.Quotes[pair]
		if !ok {
			return Quote{}, &BrokerError{StatusCode: http.StatusNotFound, Message: "no quote for " + pair}
		}
		return Quote{Symbol: sym, Bid: q.Bid, Ask: q.Ask, Time: q.Time}, nil
	}
	var resp struct {
		Quote alpacaQuote `json:"quote"`
	}
	if err := a.do(ctx, a.data, http.MethodGet, "/v2/stocks/"+url.PathEscape(sym)+"/quotes/latest", nil, nil, &resp); err != nil {
		return Quote{}, err
	}
	return Quote{Symbol: sym, Bid: resp.Quote.Bid, Ask: resp.Quote.Ask, Time: resp.Quote.Time}, nil
}

// PlaceMarketOrder 提交市价单，加密货币使用 gtc，股票使用 day。
func (a *Alpaca) PlaceMarketOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Qty <= 0 {
		return Order{}, &BrokerError{StatusCode: http.StatusUnprocessableEntity, Message: "qty must be positive"}
	}
	side := strings.ToLower(req.Side)
	if side != "buy" && side != "sell" {
		return Order{}, &BrokerError{StatusCode: http.StatusUnprocessableEntity, Message: "invalid side " + req.Side}
	}
	tif := "day"
	sym := symbol.Normalize(req.Symbol)
	if a.symbols.IsCrypto(sym) {
		tif = "gtc"
		sym = a.symbols.Alpaca(sym)
	}
	body := map[string]any{
		"symbol":        sym,
		"qty":           decimal.NewFromFloat(req.Qty).String(),
		"side":          side,
		"type":          "market",
		"time_in_force": tif,
	}
	if req.ClientOrderID != "" {
		body["client_order_id"] = req.ClientOrderID
	}
	var order alpacaOrder
	if err := a.do(ctx, a.trading, http.MethodPost, "/v2/orders", nil, body, &order); err != nil {
		return Order{}, err
	}
	logger.Infof("Alpaca 下单成功 %s %s %s (tif=%s, id=%s)", side, body["qty"], sym, tif, order.ID)
	return order.toOrder(), nil
}

// ClosePosition 按数量平仓。
func (a *Alpaca) ClosePosition(ctx context.Context, sym string, qty float64) (Order, error) {
	sym = symbol.Normalize(sym)
	path := "/v2/positions/" + url.PathEscape(strings.ReplaceAll(a.symbols.Alpaca(sym), "/", ""))
	var query map[string]string
	if qty > 0 {
		query = map[string]string{"qty": decimal.NewFromFloat(qty).String()}
	}
	var order alpacaOrder
	if err := a.do(ctx, a.trading, http.MethodDelete, path, query, nil, &order); err != nil {
		return Order{}, err
	}
	return order.toOrder(), nil
}

func (a *Alpaca) do(ctx context.Context, c *resty.Client, method, path string, query map[string]string, body any, out any) error {
	op := method + " " + path
	if err := a.limiter.Wait(ctx); err != nil {
		return &TransientError{Op: op, Err: err}
	}
	start := time.Now()
	req := c.R().SetContext(ctx).ForceContentType("application/json")
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	metrics.ObserveExternal("broker", err, time.Since(start))
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests || code >= 500 {
		return &TransientError{Op: op, Err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(resp.String()))}
	}
	if code >= 400 {
		var eb alpacaErrorBody
		_ = json.Unmarshal(resp.Body(), &eb)
		if eb.Message == "" {
			eb.Message = strings.TrimSpace(resp.String())
		}
		return &BrokerError{StatusCode: code, Code: eb.Code, Message: eb.Message}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}
