package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"

	"github.com/go-resty/resty/v2"
)

const llmSystemPrompt = `You are an equity research committee. Combine the requested analyst perspectives ` +
	`and answer ONLY with a JSON object: {"decision":"BUY|HOLD|SELL","confidence":0-1,"reasoning":"...",` +
	`"reports":{"<analyst>":"<short report>"}}.`

// ChatClient 兼容 OpenAI / DeepSeek / Qwen 的 /chat/completions 接口。
type ChatClient struct {
	client     *resty.Client
	model      string
	maxRetries int
	backoff    time.Duration
}

func NewChatClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int, headers map[string]string) *ChatClient {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	// 兼容把完整 /chat/completions 写进配置的情况
	base = strings.TrimSuffix(base, "/chat/completions")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := resty.New().SetBaseURL(base).SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	for k, v := range headers {
		c.SetHeader(k, v)
	}
	return &ChatClient{client: c, model: model, maxRetries: maxRetries, backoff: 800 * time.Millisecond}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete 发送一轮对话，对 429/5xx 做有限重试并支持 Retry-After。
func (c *ChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body := map[string]any{"model": c.model, "messages": messages, "temperature": 0.2}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var ok chatResponse
		var fail chatError
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&ok).
			SetError(&fail).
			ForceContentType("application/json").
			Post("/chat/completions")
		if err != nil {
			return "", fmt.Errorf("chat request failed: %w", err)
		}
		if resp.IsSuccess() {
			if len(ok.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return ok.Choices[0].Message.Content, nil
		}
		msg := strings.TrimSpace(fail.Error.Message)
		if msg == "" {
			msg = resp.Status()
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode(), msg)
		if !retryable(resp.StatusCode()) || attempt == c.maxRetries {
			break
		}
		wait := c.backoff << attempt
		if ra := resp.Header().Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		if wait > 8*time.Second {
			wait = 8 * time.Second
		}
		logger.Warnf("分析模型返回 %d，%s 后重试 (%d/%d)", resp.StatusCode(), wait, attempt+1, c.maxRetries)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryable(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// LLMOracle 通过聊天模型产出交易结论。
type LLMOracle struct {
	chat     *ChatClient
	provider string
}

func NewLLMOracle(chat *ChatClient, provider string) *LLMOracle {
	if provider == "" {
		provider = "llm"
	}
	return &LLMOracle{chat: chat, provider: provider}
}

func (o *LLMOracle) Analyze(ctx context.Context, req Request) (Analysis, error) {
	if err := req.validate(); err != nil {
		return Analysis{}, err
	}
	ticker := strings.ToUpper(req.Ticker)
	analysts := req.Analysts
	if len(analysts) == 0 {
		analysts = []string{"market", "fundamentals"}
	}
	user := fmt.Sprintf("Ticker: %s\nTrade date: %s\nAnalysts: %s\nShould we open a long position today?",
		ticker, req.Date, strings.Join(analysts, ", "))
	logger.LogOracleExchange("request", o.provider, ticker, user)

	start := time.Now()
	raw, err := o.chat.Complete(ctx, llmSystemPrompt, user)
	metrics.ObserveExternal("oracle", err, time.Since(start))
	if err != nil {
		return Analysis{}, err
	}
	logger.LogOracleExchange("response", o.provider, ticker, raw)
	out, err := parseVerdict(raw)
	if err != nil {
		return Analysis{}, err
	}
	out.Ticker = ticker
	out.Date = req.Date
	return out, nil
}
