package backtest

import (
	"context"
	"time"

	"voltrade/internal/logger"
	"voltrade/internal/market"
)

// Scenario 是一个命名的回测日期区间。
type Scenario struct {
	Name  string `json:"name" yaml:"name"`
	Start int64  `json:"start" yaml:"start"`
	End   int64  `json:"end" yaml:"end"`
}

// ScenarioResult 对应一个场景的输出；Err 仅在参数非法或取消时非空。
type ScenarioResult struct {
	Scenario Scenario `json:"scenario" yaml:"scenario"`
	Result   Result   `json:"result" yaml:"result"`
	Err      error    `json:"-" yaml:"-"`
}

// RunScenarios 依次运行各场景，每个场景使用独立的账户。
func RunScenarios(ctx context.Context, p Params, data map[string]market.Records, strategy Strategy, scenarios []Scenario) []ScenarioResult {
	out := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			out = append(out, ScenarioResult{Scenario: sc, Err: ctx.Err()})
			continue
		}
		params := p
		params.Start, params.End = sc.Start, sc.End
		res, err := RunBacktest(ctx, params, data, strategy)
		if err != nil {
			logger.Warnf("scenario %s failed: %v", sc.Name, err)
		} else {
			logger.Infof("scenario %s [%s ~ %s] final=%.2f drawdown=%.2f",
				sc.Name, fmtTS(sc.Start), fmtTS(sc.End), res.FinalBalance, res.MaxDrawdown)
		}
		out = append(out, ScenarioResult{Scenario: sc, Result: res, Err: err})
	}
	return out
}

// ValidSymbols 返回历史起点不晚于 needFrom 的 symbol，即有足够预热数据的 symbol。
func ValidSymbols(data map[string]market.Records, needFrom int64) []string {
	var out []string
	for _, sym := range market.Symbols(data) {
		records := data[sym]
		if len(records) == 0 {
			continue
		}
		if records[0].Timestamp <= needFrom {
			out = append(out, sym)
		}
	}
	return out
}

func fmtTS(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
