package indicator

import (
	"voltrade/internal/market"

	"github.com/markcheno/go-talib"
)

// IsRising 跟踪回调低点与突破高点：任一低点跌破最近的回调低点即判定为非上升结构。
func IsRising(records market.Records) (bool, error) {
	if err := market.NeedRecords("is rising", 1, len(records)); err != nil {
		return false, err
	}
	currentLow := records[0].Low
	pullbackLow := records[0].Low
	highestHigh := records[0].High
	for _, r := range records {
		switch {
		case r.Low < pullbackLow:
			return false, nil
		case r.Low < currentLow && r.Low > pullbackLow:
			currentLow = r.Low
		case r.High > highestHigh:
			highestHigh = r.High
			pullbackLow = currentLow
			currentLow = r.Low
		}
	}
	return true, nil
}

// IsFalling 是 IsRising 的镜像：任一高点突破最近的反弹高点即判定为非下降结构。
func IsFalling(records market.Records) (bool, error) {
	if err := market.NeedRecords("is falling", 1, len(records)); err != nil {
		return false, err
	}
	currentHigh := records[0].High
	pullbackHigh := records[0].High
	lowestLow := records[0].Low
	for _, r := range records {
		switch {
		case r.High > pullbackHigh:
			return false, nil
		case r.High > currentHigh && r.High < pullbackHigh:
			currentHigh = r.High
		case r.Low < lowestLow:
			lowestLow = r.Low
			pullbackHigh = currentHigh
			currentHigh = r.High
		}
	}
	return true, nil
}

// SuperTrend 返回 ATR 通道趋势线，序列第 i 项对应 records[period+i]。
// 上下轨以 (high+low)/2 ± multiplier*ATR 计算，收盘未穿越时轨道锁定，价格穿越当前轨道时翻转。
func SuperTrend(records market.Records, period int, multiplier float64) ([]float64, error) {
	if period <= 0 {
		return nil, &market.ConfigurationError{Key: "indicators.supertrend_period", Reason: "must be > 0"}
	}
	if multiplier <= 0 {
		return nil, &market.ConfigurationError{Key: "indicators.supertrend_multiplier", Reason: "must be > 0"}
	}
	if err := market.NeedRecords("super trend", period+1, len(records)); err != nil {
		return nil, err
	}
	atr := talib.Atr(records.Highs(), records.Lows(), records.Closes(), period)

	out := make([]float64, 0, len(records)-period)
	var finalUpper, finalLower, trend float64
	for i := period; i < len(records); i++ {
		r := records[i]
		mid := (r.High + r.Low) / 2
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]
		if i == period {
			finalUpper, finalLower = basicUpper, basicLower
			if r.Close <= finalUpper {
				trend = finalUpper
			} else {
				trend = finalLower
			}
			out = append(out, trend)
			continue
		}
		prevClose := records[i-1].Close
		prevUpper, prevLower := finalUpper, finalLower
		if basicUpper < prevUpper || prevClose > prevUpper {
			finalUpper = basicUpper
		}
		if basicLower > prevLower || prevClose < prevLower {
			finalLower = basicLower
		}
		if trend == prevUpper {
			if r.Close <= finalUpper {
				trend = finalUpper
			} else {
				trend = finalLower
			}
		} else {
			if r.Close >= finalLower {
				trend = finalLower
			} else {
				trend = finalUpper
			}
		}
		out = append(out, trend)
	}
	return out, nil
}
