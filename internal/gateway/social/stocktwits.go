package social

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/signal"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// StockTwits 拉取热门代码与代码消息流。
type StockTwits struct {
	client      *resty.Client
	limiter     *rate.Limiter
	streamLimit int
}

func NewStockTwits(opts ClientOptions, streamLimit int) *StockTwits {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.stocktwits.com/api/2"
	}
	if streamLimit <= 0 {
		streamLimit = 30
	}
	return &StockTwits{
		client:      newRestyClient(opts),
		limiter:     newLimiter(opts.RatePerSecond),
		streamLimit: streamLimit,
	}
}

type trendingResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
	} `json:"symbols"`
}

type streamResponse struct {
	Messages []struct {
		ID        int64  `json:"id"`
		Body      string `json:"body"`
		CreatedAt string `json:"created_at"`
		Entities  struct {
			Sentiment *struct {
				Basic string `json:"basic"`
			} `json:"sentiment"`
		} `json:"entities"`
	} `json:"messages"`
}

// Trending 返回热门代码，最多 limit 个。
func (s *StockTwits) Trending(ctx context.Context, limit int) ([]string, error) {
	var resp trendingResponse
	if err := get(ctx, s.client, s.limiter, "stocktwits", "/trending/symbols.json", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Symbols))
	for _, sym := range resp.Symbols {
		v := strings.ToUpper(strings.TrimSpace(sym.Symbol))
		if v == "" {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Stream 返回某代码最近的消息，时间无法解析时保留零值。
func (s *StockTwits) Stream(ctx context.Context, symbol string) ([]signal.Message, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	var resp streamResponse
	path := "/streams/symbol/" + url.PathEscape(symbol) + ".json"
	query := map[string]string{"limit": strconv.Itoa(s.streamLimit)}
	if err := get(ctx, s.client, s.limiter, "stocktwits", path, query, &resp); err != nil {
		return nil, err
	}
	out := make([]signal.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := signal.Message{ID: m.ID, Body: m.Body}
		if m.Entities.Sentiment != nil {
			msg.Sentiment = m.Entities.Sentiment.Basic
		}
		if ts, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			msg.CreatedAt = ts
		}
		out = append(out, msg)
	}
	return out, nil
}
