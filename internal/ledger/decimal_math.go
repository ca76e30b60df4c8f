package ledger

import (
	"math"

	"voltrade/internal/market"

	"github.com/shopspring/decimal"
)

var decimalZero = decimal.Zero

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }
func decimalLT(a, b float64) bool  { return decimalCompare(a, b) < 0 }
func decimalGT(a, b float64) bool  { return decimalCompare(a, b) > 0 }

// notional 返回 price*qty 的精确值。
func notional(price, qty float64) decimal.Decimal {
	return decFromFloat(price).Mul(decFromFloat(qty))
}

// targetHit 判断价格是否到达止盈：多头 price >= target，空头 price <= target。
func targetHit(side market.Side, price, target float64) bool {
	switch side {
	case market.SideShort:
		return decimalLTE(price, target)
	default:
		return decimalGTE(price, target)
	}
}

// stopHit 判断价格是否击穿止损：多头 price < stop，空头 price > stop。
func stopHit(side market.Side, price, stop float64) bool {
	switch side {
	case market.SideShort:
		return decimalGT(price, stop)
	default:
		return decimalLT(price, stop)
	}
}
