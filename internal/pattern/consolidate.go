package pattern

import (
	"voltrade/internal/market"
)

// Consolidated 是去掉末位后的前缀及其各方向累计强度。
type Consolidated struct {
	Prefix []int `json:"prefix"`
	Total  int   `json:"total"`
	Buy    int   `json:"buy"`
	Short  int   `json:"short"`
	Hold   int   `json:"hold"`
}

// Thresholds 决定一个前缀是否足够强以至于可交易。
type Thresholds struct {
	MinStrength int     `json:"min_strength" yaml:"min_strength"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// Direction 在 Total 超过 MinStrength 且某一方向占比超过 Confidence 时返回该方向。
func (c Consolidated) Direction(th Thresholds) market.Signal {
	if c.Total <= 0 || c.Total <= th.MinStrength {
		return market.SignalNone
	}
	total := float64(c.Total)
	switch {
	case c.Buy > c.Short && float64(c.Buy)/total > th.Confidence:
		return market.SignalBuy
	case c.Short > c.Buy && float64(c.Short)/total > th.Confidence:
		return market.SignalShort
	}
	return market.SignalNone
}

// Consolidate 以 sequence[:windowSize-1] 为前缀分组累加强度，输出顺序为前缀首次出现的顺序。
func Consolidate(lib *Library, windowSize int) ([]Consolidated, error) {
	if windowSize < MinWindow {
		return nil, windowError(windowSize)
	}
	var out []Consolidated
	index := make(map[string]int)
	for _, sig := range lib.Signatures() {
		if len(sig.Sequence) < windowSize {
			return nil, &market.ValidationError{Field: "sequence", Reason: "shorter than pattern window"}
		}
		prefix := sig.Sequence[:windowSize-1]
		key := sequenceKey(prefix)
		idx, ok := index[key]
		if !ok {
			p := make([]int, len(prefix))
			copy(p, prefix)
			idx = len(out)
			index[key] = idx
			out = append(out, Consolidated{Prefix: p})
		}
		row := &out[idx]
		row.Total += sig.Strength
		switch sig.Signal {
		case market.SignalBuy:
			row.Buy += sig.Strength
		case market.SignalShort:
			row.Short += sig.Strength
		default:
			row.Hold += sig.Strength
		}
	}
	return out, nil
}

// FilterStrong 只保留可交易的前缀。
func FilterStrong(rows []Consolidated, th Thresholds) []Consolidated {
	out := make([]Consolidated, 0, len(rows))
	for _, row := range rows {
		if row.Direction(th) != market.SignalNone {
			out = append(out, row)
		}
	}
	return out
}
