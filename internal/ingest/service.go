// Package ingest 从交易所或 CSV 拉取分钟 K 线并写入本地 candlestore。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

// ServiceConfig 配置 Service。
type ServiceConfig struct {
	Store     RecordStore
	Source    Source
	Timeframe string
	Interval  string
	Step      time.Duration
	// RateLimit 为每秒请求数，<=0 取 5。
	RateLimit float64
	PageLimit int

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Report 记录单个 symbol 的拉取结果，Err 非空表示该 symbol 失败。
type Report struct {
	Symbol   string `json:"symbol"`
	Pages    int    `json:"pages"`
	Skipped  int    `json:"skipped"`
	Empty    int    `json:"empty"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Err      error  `json:"-"`
}

type Service struct {
	store     RecordStore
	source    Source
	timeframe string
	interval  string
	step      int64
	pageLimit int

	limiter *rate.Limiter
	breaker *circuit.Breaker
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, &market.ConfigurationError{Key: "ingest.store", Reason: "store is required"}
	}
	if cfg.Source == nil {
		return nil, &market.ConfigurationError{Key: "ingest.source", Reason: "source is required"}
	}
	if cfg.Step < time.Second {
		return nil, &market.ConfigurationError{Key: "ingest.interval", Reason: fmt.Sprintf("step %s too small", cfg.Step)}
	}
	tf := strings.TrimSpace(cfg.Timeframe)
	if tf == "" {
		tf = "1m"
	}
	perSec := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		perSec = 5
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 1000
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Service{
		store:     cfg.Store,
		source:    cfg.Source,
		timeframe: tf,
		interval:  cfg.Interval,
		step:      int64(cfg.Step / time.Second),
		pageLimit: pageLimit,
		limiter:   rate.NewLimiter(perSec, 1),
		breaker:   circuit.New(cfg.Source.Name(), cfg.BreakerThreshold, cooldown),
	}, nil
}

// Ingest 依次拉取每个 symbol 的 [start,end]，单个 symbol 失败不影响其余 symbol。
// 只有 ctx 取消时才返回 error。
func (s *Service) Ingest(ctx context.Context, symbols []string, start, end int64) ([]Report, error) {
	if end < start {
		return nil, &market.ValidationError{Field: "end", Reason: fmt.Sprintf("end %d before start %d", end, start)}
	}
	reports := make([]Report, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep := s.ingestSymbol(ctx, sym, start, end)
		if rep.Err != nil {
			if errors.Is(rep.Err, context.Canceled) || errors.Is(rep.Err, context.DeadlineExceeded) {
				reports = append(reports, rep)
				return reports, rep.Err
			}
			logger.Warnf("[ingest] %s %s 失败: %v", s.source.Name(), sym, rep.Err)
		} else {
			logger.Infof("[ingest] %s %s 完成: pages=%d skipped=%d fetched=%d inserted=%d",
				s.source.Name(), sym, rep.Pages, rep.Skipped, rep.Fetched, rep.Inserted)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (s *Service) ingestSymbol(ctx context.Context, symbol string, start, end int64) Report {
	rep := Report{Symbol: symbol}
	span := s.step * int64(s.pageLimit-1)
	for cursor := start; cursor <= end; {
		pageEnd := cursor + span
		if pageEnd > end {
			pageEnd = end
		}
		rep.Pages++
		expected := int((pageEnd-cursor)/s.step) + 1
		have, err := s.store.LoadTimestamps(ctx, symbol, s.timeframe, cursor, pageEnd)
		if err != nil {
			rep.Err = fmt.Errorf("load timestamps: %w", err)
			return rep
		}
		if len(have) >= expected {
			rep.Skipped++
			cursor = pageEnd + s.step
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			rep.Err = err
			return rep
		}
		var page market.Records
		err = s.breaker.Do(func() error {
			var ferr error
			page, ferr = s.source.Fetch(ctx, FetchRequest{
				Symbol:   symbol,
				Interval: s.interval,
				Start:    cursor,
				End:      pageEnd,
				Limit:    expected,
			})
			return ferr
		})
		if err != nil {
			rep.Err = fmt.Errorf("%s fetch [%d,%d]: %w", s.source.Name(), cursor, pageEnd, err)
			return rep
		}
		page = page.Between(cursor, pageEnd)
		for i := range page {
			page[i].Symbol = symbol
		}
		rep.Fetched += len(page)
		if len(page) == 0 {
			rep.Empty++
			cursor = pageEnd + s.step
			continue
		}
		n, err := s.store.Insert(ctx, s.timeframe, page)
		rep.Inserted += n
		if err != nil {
			rep.Err = err
			return rep
		}
		cursor = pageEnd + s.step
	}
	return rep
}

// ImportCSV 读取 CSV 记录表并写入 store，返回写入条数。
func ImportCSV(ctx context.Context, store RecordStore, timeframe string, r io.Reader, defaultSymbol string) (int, error) {
	records, err := market.ReadCSV(r, defaultSymbol)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.Symbol) == "" {
			return 0, &market.ValidationError{Field: "symbol", Reason: fmt.Sprintf("missing symbol at ts=%d", rec.Timestamp)}
		}
	}
	n, err := store.Insert(ctx, timeframe, records)
	if err != nil {
		return n, err
	}
	logger.Infof("[ingest] csv 导入 %d 条记录", n)
	return n, nil
}
