package market

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record 是一条 OHLCV 观测（分钟 K 线或成交量 K 线），按时间戳升序排列。
type Record struct {
	Timestamp int64   `json:"timestamp" yaml:"timestamp"`
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Open      float64 `json:"open" yaml:"open"`
	High      float64 `json:"high" yaml:"high"`
	Low       float64 `json:"low" yaml:"low"`
	Close     float64 `json:"close" yaml:"close"`
	Volume    float64 `json:"volume" yaml:"volume"`
}

type Records []Record

// Time 返回 UTC 时间。
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Validate 校验价格与成交量是否为有限非负数且 high >= low。
func (r Record) Validate() error {
	fields := []struct {
		name string
		val  float64
	}{
		{"open", r.Open},
		{"high", r.High},
		{"low", r.Low},
		{"close", r.Close},
		{"volume", r.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return &ValidationError{Field: f.name, Reason: "not a finite number"}
		}
		if f.val < 0 {
			return &ValidationError{Field: f.name, Reason: fmt.Sprintf("negative value %v", f.val)}
		}
	}
	if r.High < r.Low {
		return &ValidationError{Field: "high", Reason: fmt.Sprintf("high %v below low %v", r.High, r.Low)}
	}
	return nil
}

// ParseRecord 把字符串列转换为 Record，列名不区分大小写，"time" 可替代 "timestamp"。
func ParseRecord(fields map[string]string) (Record, error) {
	get := func(names ...string) (string, bool) {
		for _, name := range names {
			for k, v := range fields {
				if strings.EqualFold(strings.TrimSpace(k), name) {
					return strings.TrimSpace(v), true
				}
			}
		}
		return "", false
	}
	var rec Record
	raw, ok := get("timestamp", "time")
	if !ok {
		return Record{}, &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		return Record{}, err
	}
	rec.Timestamp = ts
	rec.Symbol, _ = get("symbol")
	targets := []struct {
		name string
		dst  *float64
	}{
		{"open", &rec.Open},
		{"high", &rec.High},
		{"low", &rec.Low},
		{"close", &rec.Close},
		{"volume", &rec.Volume},
	}
	for _, t := range targets {
		raw, ok := get(t.name)
		if !ok {
			return Record{}, &ValidationError{Field: t.name, Reason: "missing"}
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Record{}, &ValidationError{Field: t.name, Reason: fmt.Sprintf("not numeric: %q", raw)}
		}
		*t.dst = val
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// parseTimestamp 接受 unix 秒、unix 毫秒或 RFC3339 文本。
func parseTimestamp(raw string) (int64, error) {
	if raw == "" {
		return 0, &ValidationError{Field: "timestamp", Reason: "empty"}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return n / 1000, nil
		}
		return n, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, &ValidationError{Field: "timestamp", Reason: fmt.Sprintf("unrecognized format %q", raw)}
}

func (rs Records) Closes() []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Close
	}
	return out
}

func (rs Records) Highs() []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.High
	}
	return out
}

func (rs Records) Lows() []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Low
	}
	return out
}

func (rs Records) Volumes() []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Volume
	}
	return out
}

// Last 返回最后一条记录；空序列返回 false。
func (rs Records) Last() (Record, bool) {
	if len(rs) == 0 {
		return Record{}, false
	}
	return rs[len(rs)-1], true
}

// Tail 返回末尾 n 条记录（不足时返回全部）。
func (rs Records) Tail(n int) Records {
	if n <= 0 {
		return nil
	}
	if n >= len(rs) {
		return rs
	}
	return rs[len(rs)-n:]
}

// BySymbol 按 symbol 分组，组内按时间戳升序。
func (rs Records) BySymbol() map[string]Records {
	out := make(map[string]Records)
	for _, r := range rs {
		out[r.Symbol] = append(out[r.Symbol], r)
	}
	for sym := range out {
		out[sym].Sort()
	}
	return out
}

// Between 返回 [start, end] 闭区间内的记录，0 表示不限。
func (rs Records) Between(start, end int64) Records {
	out := make(Records, 0, len(rs))
	for _, r := range rs {
		if start > 0 && r.Timestamp < start {
			continue
		}
		if end > 0 && r.Timestamp > end {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (rs Records) Sort() {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp < rs[j].Timestamp })
}

// Symbols 返回排序后的 symbol 列表。
func Symbols(data map[string]Records) []string {
	out := make([]string, 0, len(data))
	for sym := range data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Snapshot 生成窗口的单行摘要，用于日志。
func (rs Records) Snapshot() string {
	if len(rs) == 0 {
		return ""
	}
	first := rs[0]
	last := rs[len(rs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, bar := range rs {
		if bar.Low < low {
			low = bar.Low
		}
		if bar.High > high {
			high = bar.High
		}
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("close=%.4f", last.Close))
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%d bars)", (last.Close-base)/base*100, len(rs)))
	}
	sb.WriteString(fmt.Sprintf(", range %.4f-%.4f", low, high))
	sb.WriteString(", at " + last.Time().Format("2006-01-02 15:04") + "Z")
	return sb.String()
}
