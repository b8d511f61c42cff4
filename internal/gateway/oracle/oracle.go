package oracle

import (
	"context"
	"fmt"
	"strings"
)

const (
	DecisionBuy  = "BUY"
	DecisionHold = "HOLD"
	DecisionSell = "SELL"
)

// Oracle 为外部分析引擎，只关心最终结论与置信度。
type Oracle interface {
	Analyze(ctx context.Context, req Request) (Analysis, error)
}

type Request struct {
	Ticker   string
	Date     string // YYYY-MM-DD
	Analysts []string
}

type Analysis struct {
	Ticker     string
	Date       string
	Decision   string
	Confidence float64
	Reasoning  string
	Reports    map[string]any
}

var decisionAliases = map[string]string{
	"BUY":         DecisionBuy,
	"STRONG BUY":  DecisionBuy,
	"LONG":        DecisionBuy,
	"SELL":        DecisionSell,
	"STRONG SELL": DecisionSell,
	"SHORT":       DecisionSell,
	"HOLD":        DecisionHold,
	"WAIT":        DecisionHold,
	"NEUTRAL":     DecisionHold,
}

// NormalizeDecision 按整词把结论统一为 BUY/HOLD/SELL；带否定或混合的描述返回空串。
func NormalizeDecision(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimRight(s, ".!;:, ")
	s = strings.Join(strings.Fields(s), " ")
	return decisionAliases[s]
}

// ClampConfidence 将置信度限制在 [0,1]；大于 1 的值按百分比处理。
func ClampConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return fmt.Errorf("oracle: ticker required")
	}
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("oracle: date required")
	}
	return nil
}
