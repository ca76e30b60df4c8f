package config

import (
	"fmt"
	"strings"

	"voltrade/internal/candles"
	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"

	"github.com/robfig/cron/v3"
)

// validate 对配置进行基础校验，错误统一为 ConfigurationError。
func validate(c *Config) error {
	checks := []func() error{
		c.App.validate,
		c.Candles.validate,
		c.Indicators.validate,
		c.Pattern.validate,
		c.Account.validate,
		c.Backtest.validate,
		c.Ingest.validate,
		c.Schedule.validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return &market.ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

func (a *AppConfig) validate() error {
	if _, err := logger.ParseLevel(a.LogLevel); err != nil {
		return invalid("app.log_level", "%v", err)
	}
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case logger.FormatText, logger.FormatJSON:
		return nil
	}
	return invalid("app.log_format", "must be text or json, got %q", a.LogFormat)
}

func (c *CandlesConfig) validate() error {
	if _, err := candles.ParseWindowUnit(c.WindowUnit); err != nil {
		return err
	}
	if c.RangeCount <= 0 {
		return invalid("candles.range_count", "must be > 0")
	}
	return nil
}

func (i *IndicatorsConfig) validate() error {
	if i.ATR <= 0 || i.Trend <= 0 || i.RSI <= 0 {
		return invalid("indicators.atr", "atr, trend and rsi must be > 0")
	}
	if i.ShortEMA <= 0 || i.ShortEMA >= i.LongEMA {
		return invalid("indicators.short_ema", "must satisfy 0 < short_ema < long_ema")
	}
	if i.RSIOversold < 0 || i.RSIOverbought > 100 || i.RSIOversold >= i.RSIOverbought {
		return invalid("indicators.rsi_oversold", "must satisfy 0 <= oversold < overbought <= 100")
	}
	return nil
}

func (p *PatternConfig) validate() error {
	if p.Window < pattern.MinWindow {
		return invalid("pattern.window", "must be >= %d", pattern.MinWindow)
	}
	if p.Buckets <= 0 {
		return invalid("pattern.buckets", "must be > 0")
	}
	if p.MinStrength < 0 {
		return invalid("pattern.min_strength", "must be >= 0")
	}
	if p.Confidence < 0 || p.Confidence >= 1 {
		return invalid("pattern.confidence", "must be in [0, 1)")
	}
	return nil
}

func (a *AccountConfig) validate() error {
	if a.StartingBalance <= 0 {
		return invalid("account.starting_balance", "must be > 0")
	}
	if a.TradeFraction <= 0 || a.TradeFraction > 1 {
		return invalid("account.trade_fraction", "must be in (0, 1]")
	}
	if a.ProfitMultiple <= 0 {
		return invalid("account.profit_multiple", "must be > 0")
	}
	if a.StopLossMultiple <= 0 {
		return invalid("account.stop_loss_multiple", "must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if _, err := parseDateRange("backtest", b.Start, b.End); err != nil {
		return err
	}
	if !IsValidInterval(b.Period) {
		return invalid("backtest.period", "invalid period %q", b.Period)
	}
	if b.Workers < 0 {
		return invalid("backtest.workers", "must be >= 0")
	}
	seen := make(map[string]bool, len(b.Scenarios))
	for i, sc := range b.Scenarios {
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return invalid(fmt.Sprintf("backtest.scenarios[%d].name", i), "cannot be empty")
		}
		if seen[name] {
			return invalid(fmt.Sprintf("backtest.scenarios[%d].name", i), "duplicate scenario %q", name)
		}
		seen[name] = true
		if _, err := parseDateRange(fmt.Sprintf("backtest.scenarios[%d]", i), sc.Start, sc.End); err != nil {
			return err
		}
	}
	return nil
}

func (i *IngestConfig) validate() error {
	switch i.Source {
	case "binance", "coinbase":
	default:
		return invalid("ingest.source", "only binance or coinbase supported, got %q", i.Source)
	}
	if !IsValidInterval(i.Interval) {
		return invalid("ingest.interval", "invalid interval %q", i.Interval)
	}
	if i.RateLimit <= 0 {
		return invalid("ingest.rate_limit", "must be > 0")
	}
	if i.PageLimit <= 0 {
		return invalid("ingest.page_limit", "must be > 0")
	}
	if _, err := parseDateRange("ingest", i.Start, i.End); err != nil {
		return err
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(s.RebuildCron); err != nil {
		return invalid("schedule.rebuild_cron", "%v", err)
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
