// Package coinbase 通过 Coinbase Exchange 公共接口拉取历史分钟 K 线。
package coinbase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voltrade/internal/ingest"
	"voltrade/internal/market"
	symbolpkg "voltrade/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

// maxCandles 是单次请求允许的最大条数。
const maxCandles = 300

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

type Source struct {
	baseURL string
	client  *http.Client
}

func New(cfg Config) *Source {
	base := strings.TrimRight(strings.TrimSpace(cfg.RESTBaseURL), "/")
	if base == "" {
		base = "https://api.exchange.coinbase.com"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{baseURL: base, client: &http.Client{Timeout: timeout}}
}

func (s *Source) Name() string { return "coinbase" }

// Fetch 拉取 [Start,End]；超过 300 条时按页循环请求，结果按时间升序。
func (s *Source) Fetch(ctx context.Context, req ingest.FetchRequest) (market.Records, error) {
	product := symbolpkg.Coinbase.ToExchange(req.Symbol)
	if !symbolpkg.IsValid(product) {
		return nil, &market.ValidationError{Field: "symbol", Reason: fmt.Sprintf("invalid product %q", req.Symbol)}
	}
	granularity, err := granularitySeconds(req.Interval)
	if err != nil {
		return nil, err
	}
	if req.End < req.Start {
		return nil, &market.ValidationError{Field: "end", Reason: "end before start"}
	}
	span := granularity * (maxCandles - 1)
	var out market.Records
	for cursor := req.Start; cursor <= req.End; cursor += span + granularity {
		pageEnd := cursor + span
		if pageEnd > req.End {
			pageEnd = req.End
		}
		page, err := s.fetchPage(ctx, product, granularity, cursor, pageEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	out = out.Between(req.Start, req.End)
	out.Sort()
	return dedupe(out), nil
}

func (s *Source) fetchPage(ctx context.Context, product string, granularity, start, end int64) (market.Records, error) {
	q := url.Values{}
	q.Set("granularity", strconv.FormatInt(granularity, 10))
	q.Set("start", time.Unix(start, 0).UTC().Format(time.RFC3339))
	q.Set("end", time.Unix(end, 0).UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/products/%s/candles?%s", s.baseURL, url.PathEscape(product), q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("coinbase %s: status %d: %s", product, resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("coinbase %s: invalid json", product)
	}
	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, fmt.Errorf("coinbase %s: unexpected payload", product)
	}
	symbol := symbolpkg.Normalize(product)
	var out market.Records
	for _, row := range rows.Array() {
		cols := row.Array()
		if len(cols) < 6 {
			return nil, fmt.Errorf("coinbase %s: short candle row %s", product, row.Raw)
		}
		// [time, low, high, open, close, volume]
		rec := market.Record{
			Timestamp: cols[0].Int(),
			Symbol:    symbol,
			Low:       cols[1].Float(),
			High:      cols[2].Float(),
			Open:      cols[3].Float(),
			Close:     cols[4].Float(),
			Volume:    cols[5].Float(),
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", rec.Timestamp, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// granularitySeconds 只接受 Coinbase 支持的粒度。
func granularitySeconds(interval string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "", "1m":
		return 60, nil
	case "5m":
		return 300, nil
	case "15m":
		return 900, nil
	case "1h":
		return 3600, nil
	case "6h":
		return 21600, nil
	case "1d":
		return 86400, nil
	}
	return 0, &market.ConfigurationError{Key: "ingest.interval", Reason: fmt.Sprintf("coinbase does not support %q", interval)}
}

func dedupe(rs market.Records) market.Records {
	if len(rs) < 2 {
		return rs
	}
	out := rs[:1]
	for _, r := range rs[1:] {
		if r.Timestamp == out[len(out)-1].Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}
