package ledger

import (
	"voltrade/internal/market"

	"github.com/shopspring/decimal"
)

// Summary 按方向汇总已实现与未实现盈亏。
type Summary struct {
	Opened         int     `json:"opened" yaml:"opened"`
	Closed         int     `json:"closed" yaml:"closed"`
	StillOpen      int     `json:"still_open" yaml:"still_open"`
	Wins           int     `json:"wins" yaml:"wins"`
	Losses         int     `json:"losses" yaml:"losses"`
	LongClosedPnL  float64 `json:"long_closed_pnl" yaml:"long_closed_pnl"`
	ShortClosedPnL float64 `json:"short_closed_pnl" yaml:"short_closed_pnl"`
	LongOpenPnL    float64 `json:"long_open_pnl" yaml:"long_open_pnl"`
	ShortOpenPnL   float64 `json:"short_open_pnl" yaml:"short_open_pnl"`
}

func (a *Account) Summary() Summary {
	return Summarize(a.Positions())
}

// Summarize 对任意仓位列表计算汇总，用于账户与持久化后的运行记录。
func Summarize(positions []Position) Summary {
	var s Summary
	longClosed, shortClosed := decimal.Zero, decimal.Zero
	longOpen, shortOpen := decimal.Zero, decimal.Zero
	for _, p := range positions {
		s.Opened++
		if pnl, ok := p.RealizedPnL(); ok {
			s.Closed++
			switch {
			case pnl > 0:
				s.Wins++
			case pnl < 0:
				s.Losses++
			}
			if p.Side == market.SideShort {
				shortClosed = shortClosed.Add(decFromFloat(pnl))
			} else {
				longClosed = longClosed.Add(decFromFloat(pnl))
			}
			continue
		}
		s.StillOpen++
		pnl := decFromFloat(p.UnrealizedPnL())
		if p.Side == market.SideShort {
			shortOpen = shortOpen.Add(pnl)
		} else {
			longOpen = longOpen.Add(pnl)
		}
	}
	s.LongClosedPnL = decToFloat(longClosed)
	s.ShortClosedPnL = decToFloat(shortClosed)
	s.LongOpenPnL = decToFloat(longOpen)
	s.ShortOpenPnL = decToFloat(shortOpen)
	return s
}
