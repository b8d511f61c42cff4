package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageLen = 3800

// Section 表示推送中的一个段落。
type Section struct {
	Title string
	Lines []string
}

// Message 为统一格式的 Telegram 推送。
type Message struct {
	Icon      string
	Title     string
	Sections  []Section
	Footer    string
	Timestamp time.Time
}

// Render 生成 Markdown 文本，超长时截断。
func (m Message) Render() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header + "\n\n")
	}
	b.WriteString(renderSections(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeFence(footer) + "\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

// TradeOpened 为自主开仓推送。
func TradeOpened(symbol string, qty, price, confidence float64, reason string, at time.Time) Message {
	return Message{
		Icon:  "🟢",
		Title: "Opened " + symbol,
		Sections: []Section{{
			Title: "Order",
			Lines: []string{
				fmt.Sprintf("Bought %v shares @ $%.2f", qty, price),
				fmt.Sprintf("Cost $%.2f", qty*price),
				fmt.Sprintf("Confidence %.0f%%", confidence*100),
			},
		}},
		Footer:    reason,
		Timestamp: at,
	}
}

// PositionClosed 为平仓推送，亏损使用红色图标。
func PositionClosed(symbol string, qty, entry, exit, pnl, pnlPct float64, reason string, at time.Time) Message {
	icon := "✅"
	if pnl < 0 {
		icon = "🔴"
	}
	return Message{
		Icon:  icon,
		Title: "Closed " + symbol,
		Sections: []Section{{
			Title: "Result",
			Lines: []string{
				fmt.Sprintf("Sold %v shares @ $%.2f (entry $%.2f)", qty, exit, entry),
				fmt.Sprintf("PnL $%+.2f (%+.2f%%)", pnl, pnlPct),
			},
		}},
		Footer:    reason,
		Timestamp: at,
	}
}

func renderSections(secs []Section) string {
	var b strings.Builder
	first := true
	for _, sec := range secs {
		lines := nonEmpty(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if first {
			b.WriteString("```\n")
			first = false
		} else {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(escapeFence(title) + "\n")
		}
		for _, line := range lines {
			b.WriteString("- " + escapeFence(line) + "\n")
		}
	}
	if first {
		return ""
	}
	b.WriteString("```\n\n")
	return b.String()
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
