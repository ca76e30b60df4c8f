package backtest

import (
	"fmt"
	"strings"
	"time"

	"voltrade/internal/ledger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"
)

const (
	StrategyPattern    = "pattern"
	StrategyTrendRSI   = "trend_rsi"
	StrategyCross      = "cross"
	StrategySuperTrend = "supertrend"
)

// Params 是一次回测的完整参数快照。
type Params struct {
	Symbols  []string `json:"symbols" yaml:"symbols"`
	Strategy string   `json:"strategy" yaml:"strategy"`

	Trend                int     `json:"trend" yaml:"trend"`
	ATR                  int     `json:"atr" yaml:"atr"`
	RSI                  int     `json:"rsi" yaml:"rsi"`
	RSIOversold          float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought        float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	ShortEMA             int     `json:"short_ema" yaml:"short_ema"`
	LongEMA              int     `json:"long_ema" yaml:"long_ema"`
	SuperTrendPeriod     int     `json:"supertrend_period" yaml:"supertrend_period"`
	SuperTrendMultiplier float64 `json:"supertrend_multiplier" yaml:"supertrend_multiplier"`
	VolatilityFilter     float64 `json:"volatility_filter" yaml:"volatility_filter"`

	PatternWindow int                `json:"pattern_window" yaml:"pattern_window"`
	Buckets       int                `json:"buckets" yaml:"buckets"`
	Thresholds    pattern.Thresholds `json:"thresholds" yaml:"thresholds"`

	Account ledger.Settings `json:"account" yaml:"account"`

	// Start/End 为 unix 秒，0 表示不限。
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
	// Period 是生效时间相对信号 K 线的偏移。
	Period         time.Duration `json:"period" yaml:"period"`
	Workers        int           `json:"workers" yaml:"workers"`
	LiquidateAtEnd bool          `json:"liquidate_at_end" yaml:"liquidate_at_end"`
}

// DefaultParams 返回常用的默认参数。
func DefaultParams() Params {
	return Params{
		Strategy:             StrategyPattern,
		Trend:                5,
		ATR:                  14,
		RSI:                  14,
		RSIOversold:          30,
		RSIOverbought:        70,
		ShortEMA:             20,
		LongEMA:              200,
		SuperTrendPeriod:     10,
		SuperTrendMultiplier: 3,
		VolatilityFilter:     0.1,
		PatternWindow:        8,
		Buckets:              10,
		Thresholds:           pattern.Thresholds{MinStrength: 5, Confidence: 0.6},
		Account: ledger.Settings{
			StartingBalance:  5000,
			TradeFraction:    0.01,
			ProfitMultiple:   4,
			StopLossMultiple: 1.5,
		},
		Period:  time.Minute,
		Workers: 1,
	}
}

// Validate 校验参数，返回 ConfigurationError。
func (p Params) Validate() error {
	positive := []struct {
		key string
		val int
	}{
		{"indicators.atr", p.ATR},
		{"indicators.trend", p.Trend},
		{"indicators.rsi", p.RSI},
		{"indicators.short_ema", p.ShortEMA},
		{"indicators.long_ema", p.LongEMA},
	}
	for _, f := range positive {
		if f.val <= 0 {
			return &market.ConfigurationError{Key: f.key, Reason: "must be > 0"}
		}
	}
	if p.ShortEMA >= p.LongEMA {
		return &market.ConfigurationError{Key: "indicators.short_ema", Reason: "must be < long_ema"}
	}
	switch p.strategyName() {
	case StrategyPattern, StrategyTrendRSI, StrategyCross, StrategySuperTrend:
	default:
		return &market.ConfigurationError{Key: "backtest.strategy", Reason: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}
	if p.strategyName() == StrategyPattern && (p.PatternWindow < pattern.MinWindow || p.Buckets <= 0) {
		return &market.ConfigurationError{Key: "pattern.window", Reason: fmt.Sprintf("window >= %d and buckets > 0 required", pattern.MinWindow)}
	}
	if p.strategyName() == StrategySuperTrend && (p.SuperTrendPeriod <= 0 || p.SuperTrendMultiplier <= 0) {
		return &market.ConfigurationError{Key: "indicators.supertrend_period", Reason: "period and multiplier must be > 0"}
	}
	if p.Thresholds.Confidence < 0 || p.Thresholds.Confidence >= 1 {
		return &market.ConfigurationError{Key: "pattern.confidence", Reason: "must be in [0, 1)"}
	}
	if p.Account.ProfitMultiple <= 0 || p.Account.StopLossMultiple <= 0 {
		return &market.ConfigurationError{Key: "account.profit_multiple", Reason: "profit and stop-loss multiples must be > 0"}
	}
	if p.Period <= 0 {
		return &market.ConfigurationError{Key: "backtest.period", Reason: "must be > 0"}
	}
	if p.Start > 0 && p.End > 0 && p.End < p.Start {
		return &market.ConfigurationError{Key: "backtest.end", Reason: "before start"}
	}
	if p.Workers < 0 {
		return &market.ConfigurationError{Key: "backtest.workers", Reason: "must be >= 0"}
	}
	return nil
}

func (p Params) strategyName() string {
	return strings.ToLower(strings.TrimSpace(p.Strategy))
}

func (p Params) periodSeconds() int64 {
	sec := int64(p.Period / time.Second)
	if sec <= 0 {
		return 1
	}
	return sec
}

// Warmup 返回滑动窗口长度：ATR 需要最新一根之前的 ATR 条记录，策略有自己的回看长度。
func (p Params) Warmup(s Strategy) int {
	warm := p.ATR + 1
	if s != nil && s.Lookback() > warm {
		warm = s.Lookback()
	}
	return warm
}
