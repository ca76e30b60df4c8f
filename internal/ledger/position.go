package ledger

import (
	"voltrade/internal/market"
)

// State 是仓位生命周期状态，CLOSED 为终态。
type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// Position 是账本中的一笔仓位。ID 等于开仓顺序下标。
type Position struct {
	ID           int         `json:"id" yaml:"id"`
	Symbol       string      `json:"symbol" yaml:"symbol"`
	Side         market.Side `json:"side" yaml:"side"`
	State        State       `json:"state" yaml:"state"`
	OpenTime     int64       `json:"open_time" yaml:"open_time"`
	EntryPrice   float64     `json:"entry_price" yaml:"entry_price"`
	CurrentPrice float64     `json:"current_price" yaml:"current_price"`
	ClosePrice   *float64    `json:"close_price,omitempty" yaml:"close_price,omitempty"`
	CloseTime    *int64      `json:"close_time,omitempty" yaml:"close_time,omitempty"`
	Quantity     float64     `json:"quantity" yaml:"quantity"`
	StopLoss     float64     `json:"stop_loss" yaml:"stop_loss"`
	ProfitTarget float64     `json:"profit_target" yaml:"profit_target"`
}

func (p Position) IsOpen() bool { return p.State == StateOpen }

// RealizedPnL 返回已平仓仓位的盈亏，未平仓返回 false。
func (p Position) RealizedPnL() (float64, bool) {
	if p.State != StateClosed || p.ClosePrice == nil {
		return 0, false
	}
	return p.pnlAt(*p.ClosePrice), true
}

// UnrealizedPnL 按最新标记价计算盈亏。
func (p Position) UnrealizedPnL() float64 {
	return p.pnlAt(p.CurrentPrice)
}

func (p Position) pnlAt(price float64) float64 {
	diff := decFromFloat(price).Sub(decFromFloat(p.EntryPrice))
	if p.Side == market.SideShort {
		diff = diff.Neg()
	}
	return decToFloat(diff.Mul(decFromFloat(p.Quantity)))
}

// OpenRequest 描述一次开仓。EffectiveTime 之后的更新/平仓才会作用于该仓位。
type OpenRequest struct {
	Side          market.Side
	Symbol        string
	Price         float64
	Quantity      float64
	StopLoss      float64
	ProfitTarget  float64
	EffectiveTime int64
}

func (r OpenRequest) validate() error {
	if !r.Side.Valid() {
		return &market.ValidationError{Field: "side", Reason: "must be long or short"}
	}
	if r.Symbol == "" {
		return &market.ValidationError{Field: "symbol", Reason: "empty"}
	}
	if err := validPrice("price", r.Price); err != nil {
		return err
	}
	if err := validPrice("quantity", r.Quantity); err != nil {
		return err
	}
	if err := validPrice("stop_loss", r.StopLoss); err != nil {
		return err
	}
	if err := validPrice("profit_target", r.ProfitTarget); err != nil {
		return err
	}
	switch r.Side {
	case market.SideLong:
		if !(decimalLT(r.StopLoss, r.Price) && decimalLT(r.Price, r.ProfitTarget)) {
			return &market.ValidationError{Field: "brackets", Reason: "long requires stop_loss < price < profit_target"}
		}
	case market.SideShort:
		if !(decimalLT(r.ProfitTarget, r.Price) && decimalLT(r.Price, r.StopLoss)) {
			return &market.ValidationError{Field: "brackets", Reason: "short requires profit_target < price < stop_loss"}
		}
	}
	return nil
}

func validPrice(field string, v float64) error {
	if decFromFloat(v).Sign() <= 0 {
		return &market.ValidationError{Field: field, Reason: "must be a positive finite number"}
	}
	return nil
}
