package indicator

import (
	"math"

	"voltrade/internal/market"
)

// CrossCondition 描述短期与长期 EMA 的相对走势。
type CrossCondition string

const (
	CrossGolden            CrossCondition = "golden_cross"
	CrossDeath             CrossCondition = "death_cross"
	CrossApproachFromAbove CrossCondition = "approaching_from_above"
	CrossDivergeAbove      CrossCondition = "diverging_above"
	CrossApproachFromBelow CrossCondition = "approaching_from_below"
	CrossDivergeBelow      CrossCondition = "diverging_below"
)

// CrossReport 记录最近两根的短/长 EMA 与判定结果。
type CrossReport struct {
	PrevShort float64        `json:"prev_short"`
	PrevLong  float64        `json:"prev_long"`
	Short     float64        `json:"short"`
	Long      float64        `json:"long"`
	Condition CrossCondition `json:"condition"`
}

// CheckCross 在最后两根 K 线上检测金叉/死叉以及均线的靠拢或发散。
func CheckCross(records market.Records, shortPeriod, longPeriod int) (CrossReport, error) {
	if shortPeriod <= 0 || longPeriod <= shortPeriod {
		return CrossReport{}, &market.ConfigurationError{Key: "indicators.short_ema/long_ema", Reason: "need 0 < short < long"}
	}
	if err := market.NeedRecords("check cross", longPeriod+1, len(records)); err != nil {
		return CrossReport{}, err
	}
	shortSeries, err := EMASeries(records, shortPeriod)
	if err != nil {
		return CrossReport{}, err
	}
	longSeries, err := EMASeries(records, longPeriod)
	if err != nil {
		return CrossReport{}, err
	}
	rep := CrossReport{
		PrevShort: shortSeries[len(shortSeries)-2],
		PrevLong:  longSeries[len(longSeries)-2],
		Short:     shortSeries[len(shortSeries)-1],
		Long:      longSeries[len(longSeries)-1],
	}
	prevGap := math.Abs(rep.PrevShort - rep.PrevLong)
	gap := math.Abs(rep.Short - rep.Long)
	switch {
	case rep.PrevShort < rep.PrevLong && rep.Short >= rep.Long:
		rep.Condition = CrossGolden
	case rep.PrevShort > rep.PrevLong && rep.Short <= rep.Long:
		rep.Condition = CrossDeath
	case rep.Short >= rep.Long:
		if prevGap >= gap {
			rep.Condition = CrossApproachFromAbove
		} else {
			rep.Condition = CrossDivergeAbove
		}
	default:
		if prevGap >= gap {
			rep.Condition = CrossApproachFromBelow
		} else {
			rep.Condition = CrossDivergeBelow
		}
	}
	return rep, nil
}
