package symbol

// Binance 返回 USDT 永续合约代码，例如 BTC/USD -> BTCUSDT。
func Binance(s string) string {
	s = Normalize(s)
	if s == "" {
		return ""
	}
	base := s
	if p := Parse(s); p.IsPair() {
		base = p.Base
	}
	return base + "USDT"
}
