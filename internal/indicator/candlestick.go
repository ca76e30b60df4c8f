package indicator

import "voltrade/internal/market"

// Bias 是单根或两根 K 线形态给出的倾向。
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNone    Bias = "none"
)

const fibRetrace = 0.382

// Hammer328 判断 32.8 形态（锤子线/倒锤子线）：阳线开盘价位于上方 38.2% 区域，
// 阴线开盘价位于下方 38.2% 区域。
func Hammer328(r market.Record) (Bias, bool) {
	span := r.High - r.Low
	if r.Close > r.Open {
		return BiasBullish, r.Open > r.High-span*fibRetrace
	}
	return BiasBearish, r.Open < r.Low+span*fibRetrace
}

// Engulfing 判断吞没形态。前后两根方向相同时返回 BiasNone。
func Engulfing(prev, next market.Record) (Bias, bool) {
	switch {
	case prev.Close > prev.Open && next.Open > next.Close:
		return BiasBearish, next.Open > prev.Close && next.Close < prev.Open
	case prev.Open > prev.Close && next.Close > next.Open:
		return BiasBullish, next.Close > prev.Open && next.Open < prev.Close
	}
	return BiasNone, false
}

// CloseAboveBelow 判断反向 K 线是否收在前一根的高点之上或低点之下。
func CloseAboveBelow(prev, next market.Record) (Bias, bool) {
	switch {
	case prev.Close > prev.Open && next.Open > next.Close:
		return BiasBearish, next.Close < prev.Low
	case prev.Open > prev.Close && next.Close > next.Open:
		return BiasBullish, next.Close > prev.High
	}
	return BiasNone, false
}
