package backtest

import (
	"time"

	"voltrade/internal/ledger"
)

const (
	FailureInsufficientData = "insufficient_data"
	FailureValidation       = "validation"
	FailureConfiguration    = "configuration"
	FailureOther            = "error"
)

// SymbolFailure 记录被中止的 symbol。
type SymbolFailure struct {
	Symbol  string `json:"symbol" yaml:"symbol"`
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// SymbolStats 是单个 symbol 的运行统计。
type SymbolStats struct {
	Symbol  string `json:"symbol" yaml:"symbol"`
	Records int    `json:"records" yaml:"records"`
	Steps   int    `json:"steps" yaml:"steps"`
	Signals int    `json:"signals" yaml:"signals"`
	Opened  int    `json:"opened" yaml:"opened"`
	Closed  int    `json:"closed" yaml:"closed"`
}

// BalancePoint 是资金曲线上的一个点（每个窗口步进一次）。
type BalancePoint struct {
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Timestamp int64   `json:"ts" yaml:"ts"`
	Balance   float64 `json:"balance" yaml:"balance"`
}

// Result 是一次回测的输出。
type Result struct {
	RunID           string            `json:"run_id" yaml:"run_id"`
	Strategy        string            `json:"strategy" yaml:"strategy"`
	Params          Params            `json:"params" yaml:"params"`
	StartingBalance float64           `json:"starting_balance" yaml:"starting_balance"`
	FinalBalance    float64           `json:"final_balance" yaml:"final_balance"`
	MaxDrawdown     float64           `json:"max_drawdown" yaml:"max_drawdown"`
	Profit          float64           `json:"profit" yaml:"profit"`
	ReturnPct       float64           `json:"return_pct" yaml:"return_pct"`
	PortfolioValue  float64           `json:"portfolio_value" yaml:"portfolio_value"`
	Positions       []ledger.Position `json:"positions" yaml:"positions"`
	Summary         ledger.Summary    `json:"summary" yaml:"summary"`
	Failures        []SymbolFailure   `json:"failures,omitempty" yaml:"failures,omitempty"`
	Symbols         []SymbolStats     `json:"symbols" yaml:"symbols"`
	Curve           []BalancePoint    `json:"-" yaml:"-"`
	StartedAt       time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time         `json:"finished_at" yaml:"finished_at"`
}

// Score 是参数搜索使用的目标值。
func (r Result) Score() float64 { return r.FinalBalance }

// Failed 判断某个 symbol 是否被中止。
func (r Result) Failed(symbol string) bool {
	for _, f := range r.Failures {
		if f.Symbol == symbol {
			return true
		}
	}
	return false
}
