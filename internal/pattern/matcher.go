package pattern

import (
	"voltrade/internal/market"
)

// Matcher 用合并后的前缀表匹配实时窗口。
type Matcher struct {
	windowSize int
	buckets    int
	thresholds Thresholds
	rows       map[string]Consolidated
}

func NewMatcher(rows []Consolidated, windowSize, buckets int, th Thresholds) (*Matcher, error) {
	if windowSize < MinWindow {
		return nil, windowError(windowSize)
	}
	if buckets <= 0 {
		return nil, &market.ConfigurationError{Key: "pattern.buckets", Reason: "must be > 0"}
	}
	m := &Matcher{
		windowSize: windowSize,
		buckets:    buckets,
		thresholds: th,
		rows:       make(map[string]Consolidated, len(rows)),
	}
	for _, row := range rows {
		if len(row.Prefix) != windowSize-1 {
			return nil, &market.ValidationError{Field: "prefix", Reason: "length does not match pattern window"}
		}
		key := sequenceKey(row.Prefix)
		if existing, ok := m.rows[key]; ok {
			existing.Total += row.Total
			existing.Buy += row.Buy
			existing.Short += row.Short
			existing.Hold += row.Hold
			m.rows[key] = existing
			continue
		}
		m.rows[key] = row
	}
	return m, nil
}

// Lookback 返回匹配所需的记录数（前缀长度）。
func (m *Matcher) Lookback() int { return m.windowSize - 1 }

func (m *Matcher) Size() int { return len(m.rows) }

// Match 对窗口末尾 windowSize-1 条记录打分，前缀精确命中且足够强时返回多数方向。
func (m *Matcher) Match(window market.Records) (market.Signal, error) {
	if err := market.NeedRecords("match signal", m.Lookback(), len(window)); err != nil {
		return market.SignalNone, err
	}
	sig, err := ScoreWindow(window.Tail(m.Lookback()), m.buckets)
	if err != nil {
		return market.SignalNone, err
	}
	row, ok := m.rows[sig.Key()]
	if !ok {
		return market.SignalNone, nil
	}
	return row.Direction(m.thresholds), nil
}
