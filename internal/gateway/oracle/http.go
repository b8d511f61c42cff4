package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"

	"github.com/go-resty/resty/v2"
)

// HTTPOracle 调用独立部署的分析服务：POST {endpoint}/analyze。
type HTTPOracle struct {
	client *resty.Client
}

func NewHTTPOracle(endpoint string, timeout time.Duration, headers map[string]string) *HTTPOracle {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	for k, v := range headers {
		c.SetHeader(k, v)
	}
	return &HTTPOracle{client: c}
}

func (o *HTTPOracle) Analyze(ctx context.Context, req Request) (Analysis, error) {
	if err := req.validate(); err != nil {
		return Analysis{}, err
	}
	body := map[string]any{
		"ticker":   strings.ToUpper(req.Ticker),
		"date":     req.Date,
		"analysts": req.Analysts,
	}
	start := time.Now()
	resp, err := o.client.R().SetContext(ctx).SetBody(body).Post("/analyze")
	metrics.ObserveExternal("oracle", err, time.Since(start))
	if err != nil {
		return Analysis{}, fmt.Errorf("oracle request failed: %w", err)
	}
	raw := resp.String()
	logger.LogOracleExchange("response", "http", req.Ticker, raw)
	if !resp.IsSuccess() {
		return Analysis{}, fmt.Errorf("oracle status=%d: %s", resp.StatusCode(), strings.TrimSpace(raw))
	}
	out, err := parseVerdict(raw)
	if err != nil {
		return Analysis{}, err
	}
	out.Ticker = strings.ToUpper(req.Ticker)
	out.Date = req.Date
	return out, nil
}
