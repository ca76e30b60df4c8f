package config

import (
	"strings"

	"voltrade/internal/logger"
	"voltrade/internal/pkg/symbol"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultCandleDBDir     = "data/candles"
	defaultResultDBPath    = "data/voltrade.db"
	defaultPatternFile     = "data/patterns.csv"
	defaultReportDir       = "data/reports"
	defaultWindowUnit      = "day"
	defaultRangeCount      = 7
	defaultTrend           = 5
	defaultATR             = 14
	defaultRSI             = 14
	defaultRSIOversold     = 30
	defaultRSIOverbought   = 70
	defaultShortEMA        = 20
	defaultLongEMA         = 200
	defaultSTPeriod        = 10
	defaultSTMultiplier    = 3
	defaultVolatility      = 0.1
	defaultPatternWindow   = 8
	defaultPatternBuckets  = 10
	defaultMinStrength     = 5
	defaultConfidence      = 0.6
	defaultBalance         = 5000
	defaultTradeFraction   = 0.01
	defaultProfitMultiple  = 4
	defaultStopMultiple    = 1.5
	defaultStrategy        = "pattern"
	defaultPeriod          = "1m"
	defaultWorkers         = 1
	defaultIngestSource    = "binance"
	defaultBinanceREST     = "https://api.binance.com"
	defaultCoinbaseREST    = "https://api.exchange.coinbase.com"
	defaultIngestInterval  = "1m"
	defaultIngestRateLimit = 5
	defaultIngestPageLimit = 1000
	defaultRebuildCron     = "0 0 * * *"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Candles.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Pattern.applyDefaults(keys)
	c.Account.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Ingest.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, logger.FormatText),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.candle_db_dir", &d.CandleDBDir, defaultCandleDBDir),
		stringFieldDefault("data.result_db_path", &d.ResultDBPath, defaultResultDBPath),
		stringFieldDefault("data.pattern_file", &d.PatternFile, defaultPatternFile),
		stringFieldDefault("data.report_dir", &d.ReportDir, defaultReportDir),
	)
}

func (c *CandlesConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("candles.window_unit", &c.WindowUnit, defaultWindowUnit),
		intFieldDefault("candles.range_count", &c.RangeCount, defaultRangeCount),
	)
}

func (i *IndicatorsConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("indicators.trend", &i.Trend, defaultTrend),
		intFieldDefault("indicators.atr", &i.ATR, defaultATR),
		intFieldDefault("indicators.rsi", &i.RSI, defaultRSI),
		floatFieldDefault("indicators.rsi_oversold", &i.RSIOversold, defaultRSIOversold),
		floatFieldDefault("indicators.rsi_overbought", &i.RSIOverbought, defaultRSIOverbought),
		intFieldDefault("indicators.short_ema", &i.ShortEMA, defaultShortEMA),
		intFieldDefault("indicators.long_ema", &i.LongEMA, defaultLongEMA),
		intFieldDefault("indicators.supertrend_period", &i.SuperTrendPeriod, defaultSTPeriod),
		floatFieldDefault("indicators.supertrend_multiplier", &i.SuperTrendMultiplier, defaultSTMultiplier),
		floatFieldDefault("indicators.volatility_filter", &i.VolatilityFilter, defaultVolatility),
	)
}

func (p *PatternConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("pattern.window", &p.Window, defaultPatternWindow),
		intFieldDefault("pattern.buckets", &p.Buckets, defaultPatternBuckets),
		intFieldDefault("pattern.min_strength", &p.MinStrength, defaultMinStrength),
		floatFieldDefault("pattern.confidence", &p.Confidence, defaultConfidence),
	)
}

func (a *AccountConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("account.starting_balance", &a.StartingBalance, defaultBalance),
		fieldDefault{
			key:   "account.trade_fraction",
			need:  func() bool { return a.TradeFraction <= 0 || a.TradeFraction > 1 },
			apply: func() { a.TradeFraction = defaultTradeFraction },
		},
		floatFieldDefault("account.profit_multiple", &a.ProfitMultiple, defaultProfitMultiple),
		floatFieldDefault("account.stop_loss_multiple", &a.StopLossMultiple, defaultStopMultiple),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.strategy", &b.Strategy, defaultStrategy),
		stringFieldDefault("backtest.period", &b.Period, defaultPeriod),
		intFieldDefault("backtest.workers", &b.Workers, defaultWorkers),
	)
	b.Symbols = NormalizeSymbols(b.Symbols)
	b.Strategy = strings.ToLower(strings.TrimSpace(b.Strategy))
}

func (i *IngestConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ingest.source", &i.Source, defaultIngestSource),
		stringFieldDefault("ingest.interval", &i.Interval, defaultIngestInterval),
		floatFieldDefault("ingest.rate_limit", &i.RateLimit, defaultIngestRateLimit),
		intFieldDefault("ingest.page_limit", &i.PageLimit, defaultIngestPageLimit),
	)
	i.Source = strings.ToLower(strings.TrimSpace(i.Source))
	if strings.TrimSpace(i.BaseURL) == "" {
		switch i.Source {
		case "coinbase":
			i.BaseURL = defaultCoinbaseREST
		default:
			i.BaseURL = defaultBinanceREST
		}
	}
	i.Symbols = NormalizeSymbols(i.Symbols)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("schedule.rebuild_cron", &s.RebuildCron, defaultRebuildCron),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// NormalizeSymbols 转换为内部 BASE-QUOTE 写法并去重，保持原顺序。
func NormalizeSymbols(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, sym := range list {
		sym = symbol.Normalize(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
