package backtest

import (
	"fmt"

	"voltrade/internal/indicator"
	"voltrade/internal/market"
	"voltrade/internal/pattern"
)

// Strategy 根据滑动窗口给出开仓方向。窗口最后一条即信号 K 线。
type Strategy interface {
	Name() string
	Lookback() int
	Decide(window market.Records) (market.Signal, error)
}

// NewStrategy 按名称构造策略；pattern 策略需要 matcher。
func NewStrategy(p Params, matcher *pattern.Matcher) (Strategy, error) {
	switch p.strategyName() {
	case StrategyPattern:
		if matcher == nil {
			return nil, &market.ConfigurationError{Key: "data.pattern_file", Reason: "pattern strategy requires a pattern library"}
		}
		return &PatternStrategy{matcher: matcher}, nil
	case StrategyTrendRSI:
		return &TrendRSIStrategy{Trend: p.Trend, RSI: p.RSI, Oversold: p.RSIOversold, Overbought: p.RSIOverbought}, nil
	case StrategyCross:
		return &CrossStrategy{Short: p.ShortEMA, Long: p.LongEMA}, nil
	case StrategySuperTrend:
		return &SuperTrendStrategy{
			ATR:        p.ATR,
			Period:     p.SuperTrendPeriod,
			Multiplier: p.SuperTrendMultiplier,
			ShortEMA:   p.ShortEMA,
			Volatility: p.VolatilityFilter,
		}, nil
	}
	return nil, &market.ConfigurationError{Key: "backtest.strategy", Reason: fmt.Sprintf("unknown strategy %q", p.Strategy)}
}

// PatternStrategy 用历史形态库匹配窗口末尾的前缀。
type PatternStrategy struct {
	matcher *pattern.Matcher
}

func (s *PatternStrategy) Name() string  { return StrategyPattern }
func (s *PatternStrategy) Lookback() int { return s.matcher.Lookback() }

func (s *PatternStrategy) Decide(window market.Records) (market.Signal, error) {
	return s.matcher.Match(window)
}

// TrendRSIStrategy：上升结构且 RSI 超卖做多，下降结构且 RSI 超买做空。
type TrendRSIStrategy struct {
	Trend      int
	RSI        int
	Oversold   float64
	Overbought float64
}

func (s *TrendRSIStrategy) Name() string { return StrategyTrendRSI }

func (s *TrendRSIStrategy) Lookback() int {
	if s.Trend > s.RSI {
		return s.Trend
	}
	return s.RSI
}

func (s *TrendRSIStrategy) Decide(window market.Records) (market.Signal, error) {
	trend := window.Tail(s.Trend)
	rsi, err := indicator.RelativeStrengthIndex(window.Tail(s.RSI), s.RSI)
	if err != nil {
		return market.SignalNone, err
	}
	rising, err := indicator.IsRising(trend)
	if err != nil {
		return market.SignalNone, err
	}
	if rising && rsi <= s.Oversold {
		return market.SignalBuy, nil
	}
	falling, err := indicator.IsFalling(trend)
	if err != nil {
		return market.SignalNone, err
	}
	if falling && rsi >= s.Overbought {
		return market.SignalShort, nil
	}
	return market.SignalNone, nil
}

// CrossStrategy：金叉做多，死叉做空。
type CrossStrategy struct {
	Short int
	Long  int
}

func (s *CrossStrategy) Name() string  { return StrategyCross }
func (s *CrossStrategy) Lookback() int { return s.Long + 1 }

func (s *CrossStrategy) Decide(window market.Records) (market.Signal, error) {
	rep, err := indicator.CheckCross(window, s.Short, s.Long)
	if err != nil {
		return market.SignalNone, err
	}
	switch rep.Condition {
	case indicator.CrossGolden:
		return market.SignalBuy, nil
	case indicator.CrossDeath:
		return market.SignalShort, nil
	}
	return market.SignalNone, nil
}

// SuperTrendStrategy 先用 ATR/close 过滤横盘，再看收盘相对趋势线的位置以及是否回踩短期 EMA。
type SuperTrendStrategy struct {
	ATR        int
	Period     int
	Multiplier float64
	ShortEMA   int
	Volatility float64
}

func (s *SuperTrendStrategy) Name() string { return StrategySuperTrend }

func (s *SuperTrendStrategy) Lookback() int {
	n := s.Period + 1
	if s.ShortEMA > n {
		n = s.ShortEMA
	}
	if s.ATR+1 > n {
		n = s.ATR + 1
	}
	return n
}

func (s *SuperTrendStrategy) Decide(window market.Records) (market.Signal, error) {
	last, ok := window.Last()
	if !ok || last.Close <= 0 {
		return market.SignalNone, nil
	}
	atr, err := indicator.AverageTrueRange(priorWindow(window, s.ATR))
	if err != nil {
		return market.SignalNone, err
	}
	if atr/last.Close <= s.Volatility {
		return market.SignalNone, nil
	}
	line, err := indicator.SuperTrend(window, s.Period, s.Multiplier)
	if err != nil {
		return market.SignalNone, err
	}
	ema, err := indicator.ExponentialMovingAverage(window, s.ShortEMA)
	if err != nil {
		return market.SignalNone, err
	}
	trend := line[len(line)-1]
	switch {
	case trend < last.Close && last.Low <= ema:
		return market.SignalBuy, nil
	case trend > last.Close && last.High >= ema:
		return market.SignalShort, nil
	}
	return market.SignalNone, nil
}

// priorWindow 返回信号 K 线之前的 n 条记录。
func priorWindow(window market.Records, n int) market.Records {
	if len(window) == 0 {
		return nil
	}
	head := window[:len(window)-1]
	return head.Tail(n)
}
