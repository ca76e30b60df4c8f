package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Symbol{
		"btc-usd":       {Base: "BTC", Quote: "USD"},
		"ETH/USDT":      {Base: "ETH", Quote: "USDT"},
		"ETHUSDT":       {Base: "ETH", Quote: "USDT"},
		"SOLUSD":        {Base: "SOL", Quote: "USD"},
		"BTC/USDT:USDT": {Base: "BTC", Quote: "USDT"},
		"doge_eur":      {Base: "DOGE", Quote: "EUR"},
		"USDT":          {},
		"-USD":          {},
		"":              {},
	}
	for raw, want := range cases {
		assert.Equal(t, want, Parse(raw), raw)
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc-usdt"))
	assert.Equal(t, "BTC-USDT", Binance.FromExchange("BTCUSDT"))
	assert.Equal(t, "ETH-USD", Coinbase.ToExchange("eth/usd"))
	assert.Equal(t, "XYZ", Normalize(" xyz "))
	assert.True(t, IsValid("ETH-USD"))
	assert.False(t, IsValid("ETH"))
}
