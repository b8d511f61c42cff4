package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// Telegram 将告警推送至指定群/频道。
type Telegram struct {
	chatID string
	token  string
	client *resty.Client
	retry  time.Duration
}

func NewTelegram(botToken, chatID string) *Telegram {
	return newTelegram(telegramAPI, botToken, chatID)
}

func newTelegram(baseURL, botToken, chatID string) *Telegram {
	return &Telegram{
		chatID: chatID,
		token:  botToken,
		client: resty.New().SetBaseURL(baseURL).SetTimeout(15 * time.Second),
		retry:  time.Second,
	}
}

// SendText 发送 Markdown 文本，最多尝试 3 次。
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	var lastErr error
	for i := 0; i < 3; i++ {
		resp, err := t.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post("/bot" + t.token + "/sendMessage")
		switch {
		case err != nil:
			lastErr = err
		case resp.IsSuccess():
			return nil
		default:
			lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * t.retry):
		}
	}
	return lastErr
}
