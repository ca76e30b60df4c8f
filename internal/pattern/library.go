package pattern

import (
	"voltrade/internal/logger"
	"voltrade/internal/market"
)

// Library 是按首次出现顺序保存的形态集合，以序列精确索引。
type Library struct {
	entries []Signature
	index   map[string]int
}

func NewLibrary() *Library {
	return &Library{index: make(map[string]int)}
}

// Observe 累加相同序列的强度，新序列追加到末尾。
func (l *Library) Observe(sig Signature) {
	key := sig.Key()
	if idx, ok := l.index[key]; ok {
		l.entries[idx].Strength += sig.Strength
		return
	}
	if sig.Strength <= 0 {
		sig.Strength = 1
	}
	seq := make([]int, len(sig.Sequence))
	copy(seq, sig.Sequence)
	sig.Sequence = seq
	l.index[key] = len(l.entries)
	l.entries = append(l.entries, sig)
}

func (l *Library) Len() int { return len(l.entries) }

// Signatures 返回副本。
func (l *Library) Signatures() []Signature {
	out := make([]Signature, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Library) Lookup(seq []int) (Signature, bool) {
	idx, ok := l.index[sequenceKey(seq)]
	if !ok {
		return Signature{}, false
	}
	return l.entries[idx], true
}

// BuildLibrary 在每个 symbol 的完整历史上逐条滑动 windowSize 窗口并统计形态。
// 历史不足一个窗口的 symbol 被跳过。
func BuildLibrary(recordsPerSymbol map[string]market.Records, windowSize, buckets int) (*Library, error) {
	if windowSize < MinWindow {
		return nil, windowError(windowSize)
	}
	if buckets <= 0 {
		return nil, &market.ConfigurationError{Key: "pattern.buckets", Reason: "must be > 0"}
	}
	lib := NewLibrary()
	for _, sym := range market.Symbols(recordsPerSymbol) {
		records := recordsPerSymbol[sym]
		if len(records) < windowSize {
			logger.Warnf("pattern library skip symbol=%s records=%d window=%d", sym, len(records), windowSize)
			continue
		}
		before := lib.Len()
		for start := 0; start+windowSize <= len(records); start++ {
			sig, err := ScoreWindow(records[start:start+windowSize], buckets)
			if err != nil {
				return nil, err
			}
			lib.Observe(sig)
		}
		logger.Debugf("pattern library symbol=%s windows=%d new_shapes=%d",
			sym, len(records)-windowSize+1, lib.Len()-before)
	}
	return lib, nil
}
