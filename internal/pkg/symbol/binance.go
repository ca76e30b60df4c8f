package symbol

import "strings"

type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	if sym := Parse(internal); sym.Base != "" {
		return sym.Base + sym.Quote
	}
	return strings.ToUpper(strings.TrimSpace(internal))
}

func (BinanceConverter) FromExchange(raw string) string {
	return Normalize(raw)
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}

// CoinbaseConverter 对应 Coinbase 的 BASE-QUOTE product id，与内部写法一致。
type CoinbaseConverter struct{}

func (CoinbaseConverter) ToExchange(internal string) string {
	return Normalize(internal)
}

func (CoinbaseConverter) FromExchange(raw string) string {
	return Normalize(raw)
}

func (CoinbaseConverter) Format() Format {
	return FormatCoinbase
}

var Coinbase = CoinbaseConverter{}
