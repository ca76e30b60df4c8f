package candles

import (
	"fmt"
	"strings"

	"voltrade/internal/market"
)

// WindowUnit 表示一个日历单位包含的分钟记录数。
type WindowUnit int

const (
	UnitHour  WindowUnit = 60
	UnitDay   WindowUnit = 1440
	UnitWeek  WindowUnit = 10080
	UnitMonth WindowUnit = 43800
)

func (u WindowUnit) String() string {
	switch u {
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// ParseWindowUnit 解析 hour/day/week/month。
func ParseWindowUnit(raw string) (WindowUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hour", "h":
		return UnitHour, nil
	case "day", "d":
		return UnitDay, nil
	case "week", "w":
		return UnitWeek, nil
	case "month", "m":
		return UnitMonth, nil
	}
	return 0, &market.ConfigurationError{Key: "candles.window_unit", Reason: fmt.Sprintf("unrecognized window unit %q", raw)}
}

// ComputeVolumeLimit 取最近 unit*rangeCount 条记录的成交量之和除以 rangeCount，
// 即每个日历单位的平均成交量。
func ComputeVolumeLimit(records market.Records, unit WindowUnit, rangeCount int) (float64, error) {
	if rangeCount <= 0 {
		return 0, &market.ConfigurationError{Key: "candles.range_count", Reason: "must be > 0"}
	}
	if unit <= 0 {
		return 0, &market.ConfigurationError{Key: "candles.window_unit", Reason: "must be > 0"}
	}
	need := int(unit) * rangeCount
	if err := market.NeedRecords("compute volume limit", need, len(records)); err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range records.Tail(need) {
		total += r.Volume
	}
	return total / float64(rangeCount), nil
}
