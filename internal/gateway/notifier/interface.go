package notifier

import "context"

// TextNotifier 为最小文本推送接口，调用方无需依赖具体实现。
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// Nop 丢弃所有消息，用于未配置推送的场景。
type Nop struct{}

func (Nop) SendText(context.Context, string) error { return nil }
