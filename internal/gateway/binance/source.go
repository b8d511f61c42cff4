package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/metrics"
	"tradepilot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// PriceSource 通过 Binance USDT 永续盘口为加密标的提供报价。
type PriceSource struct {
	client *futures.Client
}

func New(cfg Config) (*PriceSource, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &PriceSource{client: client}, nil
}

// Quote 返回买一/卖一价，sym 可为 BTC/USD、BTCUSD 或 BTC。
func (s *PriceSource) Quote(ctx context.Context, sym string) (broker.Quote, error) {
	pair := symbol.Binance(sym)
	if pair == "" {
		return broker.Quote{}, fmt.Errorf("symbol is required")
	}
	start := time.Now()
	res, err := s.client.NewListBookTickersService().Symbol(pair).Do(ctx)
	metrics.ObserveExternal("binance", err, time.Since(start))
	if err != nil {
		return broker.Quote{}, &broker.TransientError{Op: "binance book ticker " + pair, Err: err}
	}
	for _, bt := range res {
		if bt == nil || !strings.EqualFold(bt.Symbol, pair) {
			continue
		}
		bid, _ := strconv.ParseFloat(bt.BidPrice, 64)
		ask, _ := strconv.ParseFloat(bt.AskPrice, 64)
		if bid <= 0 && ask <= 0 {
			break
		}
		return broker.Quote{Symbol: symbol.Normalize(sym), Bid: bid, Ask: ask, Time: time.Now().UTC()}, nil
	}
	return broker.Quote{}, fmt.Errorf("binance: no book ticker for %s", pair)
}
