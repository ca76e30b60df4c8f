package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/candles"
	"voltrade/internal/ledger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"
)

// dateLayouts 是日期字段接受的格式。
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate 把日期字符串转换为 unix 秒；空串返回 0（不限）。
func ParseDate(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unsupported date %q", raw)
}

type dateRange struct {
	start, end int64
}

func parseDateRange(prefix, startRaw, endRaw string) (dateRange, error) {
	start, err := ParseDate(startRaw)
	if err != nil {
		return dateRange{}, invalid(prefix+".start", "%v", err)
	}
	end, err := ParseDate(endRaw)
	if err != nil {
		return dateRange{}, invalid(prefix+".end", "%v", err)
	}
	if start > 0 && end > 0 && end < start {
		return dateRange{}, invalid(prefix+".end", "before start")
	}
	return dateRange{start: start, end: end}, nil
}

// IntervalDuration 把 1m/4h/1d/1w 形式的周期转换为时长。
func IntervalDuration(s string) (time.Duration, error) {
	if !IsValidInterval(s) {
		return 0, invalid("interval", "invalid interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, invalid("interval", "invalid interval %q", s)
	}
	unit := time.Minute
	switch s[len(s)-1] {
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// WindowUnit 返回成交量窗口单位。
func (c Config) WindowUnit() (candles.WindowUnit, error) {
	return candles.ParseWindowUnit(c.Candles.WindowUnit)
}

// Thresholds 返回形态方向判定的阈值。
func (c Config) Thresholds() pattern.Thresholds {
	return pattern.Thresholds{MinStrength: c.Pattern.MinStrength, Confidence: c.Pattern.Confidence}
}

// ToParams 把配置转换为回测参数快照。
func (c Config) ToParams() (backtest.Params, error) {
	rng, err := parseDateRange("backtest", c.Backtest.Start, c.Backtest.End)
	if err != nil {
		return backtest.Params{}, err
	}
	period, err := IntervalDuration(c.Backtest.Period)
	if err != nil {
		return backtest.Params{}, &market.ConfigurationError{Key: "backtest.period", Reason: err.Error()}
	}
	ind := c.Indicators
	p := backtest.Params{
		Symbols:              append([]string(nil), c.Backtest.Symbols...),
		Strategy:             c.Backtest.Strategy,
		Trend:                ind.Trend,
		ATR:                  ind.ATR,
		RSI:                  ind.RSI,
		RSIOversold:          ind.RSIOversold,
		RSIOverbought:        ind.RSIOverbought,
		ShortEMA:             ind.ShortEMA,
		LongEMA:              ind.LongEMA,
		SuperTrendPeriod:     ind.SuperTrendPeriod,
		SuperTrendMultiplier: ind.SuperTrendMultiplier,
		VolatilityFilter:     ind.VolatilityFilter,
		PatternWindow:        c.Pattern.Window,
		Buckets:              c.Pattern.Buckets,
		Thresholds:           c.Thresholds(),
		Account: ledger.Settings{
			StartingBalance:  c.Account.StartingBalance,
			TradeFraction:    c.Account.TradeFraction,
			ProfitMultiple:   c.Account.ProfitMultiple,
			StopLossMultiple: c.Account.StopLossMultiple,
		},
		Start:          rng.start,
		End:            rng.end,
		Period:         period,
		Workers:        c.Backtest.Workers,
		LiquidateAtEnd: c.Backtest.LiquidateAtEnd,
	}
	if err := p.Validate(); err != nil {
		return backtest.Params{}, err
	}
	return p, nil
}

// Scenarios 返回配置中的命名日期区间。
func (c Config) Scenarios() ([]backtest.Scenario, error) {
	out := make([]backtest.Scenario, 0, len(c.Backtest.Scenarios))
	for i, sc := range c.Backtest.Scenarios {
		rng, err := parseDateRange(fmt.Sprintf("backtest.scenarios[%d]", i), sc.Start, sc.End)
		if err != nil {
			return nil, err
		}
		out = append(out, backtest.Scenario{Name: strings.TrimSpace(sc.Name), Start: rng.start, End: rng.end})
	}
	return out, nil
}
