package social

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// DefaultUserAgent 为社交源请求使用的 UA。
const DefaultUserAgent = "UnifiedTradingBot/0.1"

// ClientOptions 为社交源 HTTP 客户端的公共参数。
type ClientOptions struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
}

func newRestyClient(opts ClientOptions) *resty.Client {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "application/json")
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// StatusError 表示社交源返回了非 2xx 状态。
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned http %d", e.Source, e.Code)
}

func get(ctx context.Context, c *resty.Client, lim *rate.Limiter, source, path string, query map[string]string, out any) error {
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", source, err)
	}
	if resp.IsError() {
		return &StatusError{Source: source, Code: resp.StatusCode()}
	}
	return nil
}
