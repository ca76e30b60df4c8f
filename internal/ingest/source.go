package ingest

import (
	"context"

	"voltrade/internal/market"
)

// FetchRequest 描述一次远端分钟 K 线请求。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix 秒，含
	End      int64 // Unix 秒，含
	Limit    int
}

// Source 统一不同交易所的拉取行为，返回按时间升序的记录。
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) (market.Records, error)
	Name() string
}

// RecordStore 是 Service 依赖的最小存储接口，candlestore.Store 满足它。
type RecordStore interface {
	Insert(ctx context.Context, timeframe string, records market.Records) (int, error)
	LoadTimestamps(ctx context.Context, symbol, timeframe string, start, end int64) ([]int64, error)
}
