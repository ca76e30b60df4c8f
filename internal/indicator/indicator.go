// Package indicator 提供基于价格窗口的无状态指标计算。
package indicator

import (
	"math"

	"voltrade/internal/market"

	"github.com/markcheno/go-talib"
)

// AverageTrueRange 返回窗口内 (high-low) 的均值。
func AverageTrueRange(records market.Records) (float64, error) {
	if err := market.NeedRecords("average true range", 1, len(records)); err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range records {
		total += r.High - r.Low
	}
	return total / float64(len(records)), nil
}

// SimpleMovingAverage 返回窗口内收盘价均值。
func SimpleMovingAverage(records market.Records) (float64, error) {
	if err := market.NeedRecords("simple moving average", 1, len(records)); err != nil {
		return 0, err
	}
	series := talib.Sma(records.Closes(), len(records))
	return lastValid(series), nil
}

// ExponentialMovingAverage 以前 period 条的简单均值为种子，
// 之后按 k=2/(period+1) 逐条平滑。
func ExponentialMovingAverage(records market.Records, period int) (float64, error) {
	series, err := EMASeries(records, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries 返回从第 period 条开始的 EMA 序列（已去掉 talib 的前导占位值）。
func EMASeries(records market.Records, period int) ([]float64, error) {
	if period <= 0 {
		return nil, &market.ConfigurationError{Key: "indicators.ema_period", Reason: "must be > 0"}
	}
	if err := market.NeedRecords("exponential moving average", period, len(records)); err != nil {
		return nil, err
	}
	full := talib.Ema(records.Closes(), period)
	return full[period-1:], nil
}

// RelativeStrengthIndex 以单根 K 线的 close-open 作为涨跌幅，前 period 条求均值作为种子，
// 之后用 Wilder 平滑。avgLoss 为 0 时约定返回 100。
func RelativeStrengthIndex(records market.Records, period int) (float64, error) {
	if period <= 0 {
		return 0, &market.ConfigurationError{Key: "indicators.rsi", Reason: "must be > 0"}
	}
	if err := market.NeedRecords("relative strength index", period, len(records)); err != nil {
		return 0, err
	}
	var avgGain, avgLoss float64
	for _, r := range records[:period] {
		gain, loss := bodyMove(r)
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p
	for _, r := range records[period:] {
		gain, loss := bodyMove(r)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}
	if avgLoss == 0 {
		return 100, nil
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	return math.Max(0, math.Min(100, rsi)), nil
}

func bodyMove(r market.Record) (gain, loss float64) {
	diff := r.Close - r.Open
	if diff > 0 {
		return diff, 0
	}
	return 0, -diff
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}
