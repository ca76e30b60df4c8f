// Package pattern 把价格窗口离散化为桶序列，统计历史形态并据此匹配实时窗口。
package pattern

import (
	"math"
	"strconv"
	"strings"

	"voltrade/internal/market"
)

// MinWindow 是可用的最小窗口：实时匹配的前缀 (window-1) 至少要能打出两个桶。
const MinWindow = 3

// Signature 是一个窗口的离散形态：每条收盘价映射到的桶序号、末两桶给出的方向以及出现次数。
type Signature struct {
	Sequence []int         `json:"sequence"`
	Signal   market.Signal `json:"signal"`
	Strength int           `json:"strength"`
}

func windowError(windowSize int) error {
	return &market.ConfigurationError{Key: "pattern.window", Reason: "must be >= " + strconv.Itoa(MinWindow) + ", got " + strconv.Itoa(windowSize)}
}

// Key 返回序列的规范字符串，用作精确匹配的索引。
func (s Signature) Key() string { return sequenceKey(s.Sequence) }

// ScoreWindow 按窗口内收盘价的最小/最大值划分 buckets 个等宽区间，
// 把每条收盘价四舍五入到桶序号。末两桶上升为 buy，下降为 short，相等为 hold。
func ScoreWindow(records market.Records, buckets int) (Signature, error) {
	if buckets <= 0 {
		return Signature{}, &market.ConfigurationError{Key: "pattern.buckets", Reason: "must be > 0"}
	}
	if err := market.NeedRecords("score window", 2, len(records)); err != nil {
		return Signature{}, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		lo = math.Min(lo, r.Close)
		hi = math.Max(hi, r.Close)
	}
	seq := make([]int, len(records))
	if span := hi - lo; span > 0 {
		width := span / float64(buckets)
		for i, r := range records {
			seq[i] = int(math.Round((r.Close - lo) / width))
		}
	}
	last, prev := seq[len(seq)-1], seq[len(seq)-2]
	sig := Signature{Sequence: seq, Strength: 1, Signal: market.SignalHold}
	switch {
	case last > prev:
		sig.Signal = market.SignalBuy
	case last < prev:
		sig.Signal = market.SignalShort
	}
	return sig, nil
}

func sequenceKey(seq []int) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
