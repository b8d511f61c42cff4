package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{"btc/usd", "DOGE"})
	assert.True(t, c.IsCrypto("BTCUSD"))
	assert.True(t, c.IsCrypto("btc/usd"))
	assert.True(t, c.IsCrypto("DOGE"))
	assert.True(t, c.IsCrypto("ETH/USD"))
	assert.True(t, c.IsCrypto("SOLUSD"))
	assert.False(t, c.IsCrypto("NVDA"))
	assert.False(t, c.IsCrypto(""))

	assert.Equal(t, "BTC/USD", c.Alpaca("BTCUSD"))
	assert.Equal(t, "DOGE/USD", c.Alpaca("doge"))
	assert.Equal(t, "NVDA", c.Alpaca("nvda"))
}

func TestBinance(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance("BTC/USD"))
	assert.Equal(t, "ETHUSDT", Binance("ethusd"))
	assert.Equal(t, "DOGEUSDT", Binance("DOGE"))
	assert.Equal(t, "", Binance(" "))
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"NVDA", "AAPL"}, NormalizeList([]string{" nvda", "AAPL", "NVDA", ""}))
	assert.Nil(t, NormalizeList(nil))
}
