package candles

import (
	"fmt"

	"voltrade/internal/logger"
	"voltrade/internal/market"
)

// SymbolResult 是单个 symbol 的成交量 K 线生成结果。
type SymbolResult struct {
	Symbol  string
	Limit   float64
	Candles market.Records
	Err     error
}

// BuildPerSymbol 按 symbol 分组，用各自的历史计算成交量上限并生成 K 线。
// 单个 symbol 失败只记录在结果中，不影响其它 symbol。
func BuildPerSymbol(records market.Records, unit WindowUnit, rangeCount int) []SymbolResult {
	grouped := records.BySymbol()
	out := make([]SymbolResult, 0, len(grouped))
	for _, sym := range market.Symbols(grouped) {
		res := SymbolResult{Symbol: sym}
		limit, err := ComputeVolumeLimit(grouped[sym], unit, rangeCount)
		if err != nil {
			res.Err = fmt.Errorf("%s: %w", sym, err)
			logger.Warnf("volume candles skipped symbol=%s err=%v", sym, err)
			out = append(out, res)
			continue
		}
		res.Limit = limit
		res.Candles, res.Err = BuildVolumeCandles(grouped[sym], limit)
		if res.Err == nil {
			logger.Infof("volume candles built symbol=%s limit=%.4f input=%d output=%d",
				sym, limit, len(grouped[sym]), len(res.Candles))
		}
		out = append(out, res)
	}
	return out
}
