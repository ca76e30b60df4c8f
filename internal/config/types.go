package config

import "strings"

// Config 是 voltrade 的主配置载体。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Data       DataConfig       `mapstructure:"data"`
	Candles    CandlesConfig    `mapstructure:"candles"`
	Indicators IndicatorsConfig `mapstructure:"indicators"`
	Pattern    PatternConfig    `mapstructure:"pattern"`
	Account    AccountConfig    `mapstructure:"account"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // text | json
	LogPath     string `mapstructure:"log_path"`
	JournalPath string `mapstructure:"journal_path"`
	HTTPAddr    string `mapstructure:"http_addr"`
}

// DataConfig 描述各类数据文件的位置。
type DataConfig struct {
	CandleDBDir  string `mapstructure:"candle_db_dir"`
	ResultDBPath string `mapstructure:"result_db_path"`
	PatternFile  string `mapstructure:"pattern_file"`
	ReportDir    string `mapstructure:"report_dir"`
	// ImportCSV 非空时 ingest 从该 CSV 导入而不是访问交易所。
	ImportCSV string `mapstructure:"import_csv"`
}

type CandlesConfig struct {
	WindowUnit string `mapstructure:"window_unit"` // hour | day | week | month
	RangeCount int    `mapstructure:"range_count"`
}

type IndicatorsConfig struct {
	Trend                int     `mapstructure:"trend"`
	ATR                  int     `mapstructure:"atr"`
	RSI                  int     `mapstructure:"rsi"`
	RSIOversold          float64 `mapstructure:"rsi_oversold"`
	RSIOverbought        float64 `mapstructure:"rsi_overbought"`
	ShortEMA             int     `mapstructure:"short_ema"`
	LongEMA              int     `mapstructure:"long_ema"`
	SuperTrendPeriod     int     `mapstructure:"supertrend_period"`
	SuperTrendMultiplier float64 `mapstructure:"supertrend_multiplier"`
	VolatilityFilter     float64 `mapstructure:"volatility_filter"`
}

type PatternConfig struct {
	Window      int     `mapstructure:"window"`
	Buckets     int     `mapstructure:"buckets"`
	MinStrength int     `mapstructure:"min_strength"`
	Confidence  float64 `mapstructure:"confidence"`
}

// AccountConfig 控制模拟账户的资金与止盈止损倍数。
type AccountConfig struct {
	StartingBalance  float64 `mapstructure:"starting_balance"`
	TradeFraction    float64 `mapstructure:"trade_fraction"`     // 每笔投入占初始资金的比例 0~1
	ProfitMultiple   float64 `mapstructure:"profit_multiple"`    // 止盈 = ATR × profit_multiple
	StopLossMultiple float64 `mapstructure:"stop_loss_multiple"` // 止损 = ATR × stop_loss_multiple
}

type BacktestConfig struct {
	Symbols        []string         `mapstructure:"symbols"`
	Strategy       string           `mapstructure:"strategy"`
	Start          string           `mapstructure:"start"`
	End            string           `mapstructure:"end"`
	Period         string           `mapstructure:"period"`
	Workers        int              `mapstructure:"workers"`
	LiquidateAtEnd bool             `mapstructure:"liquidate_at_end"`
	Scenarios      []ScenarioConfig `mapstructure:"scenarios"`
}

// ScenarioConfig 是一个命名的日期区间，按顺序依次回测。
type ScenarioConfig struct {
	Name  string `mapstructure:"name"`
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// IngestConfig 描述分钟行情的抓取来源。
type IngestConfig struct {
	Source    string   `mapstructure:"source"` // binance | coinbase
	BaseURL   string   `mapstructure:"base_url"`
	Symbols   []string `mapstructure:"symbols"`
	Interval  string   `mapstructure:"interval"`
	Start     string   `mapstructure:"start"`
	End       string   `mapstructure:"end"`
	RateLimit float64  `mapstructure:"rate_limit"` // 每秒请求数
	PageLimit int      `mapstructure:"page_limit"`
}

type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RebuildCron string `mapstructure:"rebuild_cron"`
}

// IngestSymbols 返回抓取用的 symbol 列表，未配置时沿用回测列表。
func (c Config) IngestSymbols() []string {
	if len(c.Ingest.Symbols) > 0 {
		return c.Ingest.Symbols
	}
	return c.Backtest.Symbols
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
