package market

import "strings"

// Side 是仓位方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, true
	case "short", "sell":
		return SideShort, true
	}
	return "", false
}

// Signal 是形态或指标给出的方向。
type Signal string

const (
	SignalBuy   Signal = "buy"
	SignalShort Signal = "short"
	SignalHold  Signal = "hold"
	SignalNone  Signal = "none"
)

// Side 把可交易信号映射到开仓方向。
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy:
		return SideLong, true
	case SignalShort:
		return SideShort, true
	}
	return "", false
}
