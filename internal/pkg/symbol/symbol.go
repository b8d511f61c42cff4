package symbol

import (
	"strings"
)

// Symbol 为加密货币交易对的拆分结果；股票代码解析后为空。
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) IsPair() bool {
	return s.Base != "" && s.Quote != ""
}

// Slash 返回 BASE/QUOTE 形式。
func (s Symbol) Slash() string {
	if !s.IsPair() {
		return ""
	}
	return s.Base + "/" + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "USD"}

// Parse 识别 BTC/USD、BTCUSD、BTCUSDT 等形式。
func Parse(s string) Symbol {
	s = Normalize(s)
	if s == "" {
		return Symbol{}
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}
	return Symbol{}
}

// Normalize 去空白并转大写。
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// Classifier 判断标的是否为 7x24 交易的加密货币。
type Classifier struct {
	crypto map[string]struct{}
}

func NewClassifier(cryptoSymbols []string) *Classifier {
	c := &Classifier{crypto: make(map[string]struct{}, len(cryptoSymbols)*2)}
	for _, s := range NormalizeList(cryptoSymbols) {
		c.crypto[s] = struct{}{}
		c.crypto[strings.ReplaceAll(s, "/", "")] = struct{}{}
	}
	return c
}

// IsCrypto 命中配置集合，或形如 *USD / X/USD 时返回 true。
func (c *Classifier) IsCrypto(s string) bool {
	s = Normalize(s)
	if s == "" {
		return false
	}
	if c != nil {
		if _, ok := c.crypto[s]; ok {
			return true
		}
		if _, ok := c.crypto[strings.ReplaceAll(s, "/", "")]; ok {
			return true
		}
	}
	return Parse(s).IsPair()
}

// Alpaca 返回券商使用的形式：加密货币为 BASE/QUOTE，股票原样。
func (c *Classifier) Alpaca(s string) string {
	s = Normalize(s)
	if !c.IsCrypto(s) {
		return s
	}
	if p := Parse(s); p.IsPair() {
		return p.Slash()
	}
	return s + "/USD"
}
