package candles

import (
	"voltrade/internal/market"
)

// Aggregator 把固定时间粒度的记录重采样为固定成交量的 K 线。
// 触发拆分的那条记录剩余的成交量保存在 carry 中，作为下一根 K 线的起点。
type Aggregator struct {
	limit float64

	active bool
	bar    market.Record
	volume float64
	amount float64

	carry *market.Record
}

func NewAggregator(limit float64) (*Aggregator, error) {
	if limit <= 0 {
		return nil, &market.ConfigurationError{Key: "candles.volume_limit", Reason: "must be > 0"}
	}
	return &Aggregator{limit: limit}, nil
}

func (a *Aggregator) Limit() float64 { return a.limit }

// Push 消费一条记录，返回因此完成的 K 线（通常 0 或 1 根）。
func (a *Aggregator) Push(r market.Record) market.Records {
	if !a.active {
		a.begin(r)
	} else {
		a.widen(r)
	}
	remaining := r.Volume
	if a.volume+remaining < a.limit {
		a.volume += remaining
		a.amount += remaining * r.Close
		return nil
	}

	take := a.limit - a.volume
	a.amount += take * r.Close
	out := market.Records{a.emit(r.Timestamp)}
	remaining = nonNegative(remaining - take)

	// 单条记录的成交量可能足以填满多根 K 线
	for remaining >= a.limit {
		a.startFrom(r)
		a.amount = a.limit * r.Close
		out = append(out, a.emit(r.Timestamp))
		remaining = nonNegative(remaining - a.limit)
	}

	rest := r
	rest.Volume = remaining
	a.carry = &rest
	return out
}

// Pending 返回尚未达到上限的聚合状态（进行中的 K 线或仅剩的 carry），它们不会被输出。
func (a *Aggregator) Pending() (market.Record, bool) {
	if a.active {
		bar := a.bar
		bar.Volume = a.volume
		if a.volume > 0 {
			bar.Close = a.amount / a.volume
		}
		return bar, true
	}
	if a.carry != nil {
		return *a.carry, true
	}
	return market.Record{}, false
}

// begin 用 carry（若有）加上新记录开启一根 K 线。
func (a *Aggregator) begin(r market.Record) {
	if a.carry == nil {
		a.startFrom(r)
		return
	}
	seed := *a.carry
	a.carry = nil
	a.startFrom(seed)
	a.volume = seed.Volume
	a.amount = seed.Volume * seed.Close
	a.widen(r)
}

func (a *Aggregator) startFrom(r market.Record) {
	a.active = true
	a.bar = market.Record{
		Symbol: r.Symbol,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
	}
	a.volume = 0
	a.amount = 0
}

func (a *Aggregator) widen(r market.Record) {
	if r.High > a.bar.High {
		a.bar.High = r.High
	}
	if r.Low < a.bar.Low {
		a.bar.Low = r.Low
	}
}

func (a *Aggregator) emit(ts int64) market.Record {
	bar := a.bar
	bar.Timestamp = ts
	bar.Volume = a.limit
	bar.Close = a.amount / a.limit
	a.active = false
	a.volume = 0
	a.amount = 0
	a.bar = market.Record{}
	return bar
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// BuildVolumeCandles 是 Aggregator 的批量形式，末尾未满的 K 线不输出。
func BuildVolumeCandles(records market.Records, limit float64) (market.Records, error) {
	agg, err := NewAggregator(limit)
	if err != nil {
		return nil, err
	}
	var out market.Records
	for _, r := range records {
		out = append(out, agg.Push(r)...)
	}
	return out, nil
}
