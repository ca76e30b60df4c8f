// Package binance 通过 go-binance 现货接口拉取历史分钟 K 线。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voltrade/internal/ingest"
	"voltrade/internal/market"
	symbolpkg "voltrade/internal/pkg/symbol"

	gobinance "github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// Source 基于 go-binance SDK 实现 ingest.Source。
type Source struct {
	cfg    Config
	client *gobinance.Client
	now    func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, &market.ConfigurationError{Key: "ingest.proxy", Reason: err.Error()}
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client, now: time.Now}, nil
}

func (s *Source) Name() string { return "binance" }

// Fetch 拉取 [Start,End] 内的 K 线，未收盘的最后一根会被丢弃。
func (s *Source) Fetch(ctx context.Context, req ingest.FetchRequest) (market.Records, error) {
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return nil, &market.ValidationError{Field: "symbol", Reason: "symbol is required"}
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = "1m"
	}
	limit := req.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := s.client.NewKlinesService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Interval(interval).
		Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start * 1000)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End * 1000)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	nowMs := s.now().UnixMilli()
	out := make(market.Records, 0, len(kls))
	for _, kl := range kls {
		if kl == nil || kl.CloseTime > nowMs {
			continue
		}
		rec := market.Record{
			Timestamp: kl.OpenTime / 1000,
			Symbol:    symbolpkg.Normalize(symbol),
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("kline %d: %w", kl.OpenTime, err)
		}
		out = append(out, rec)
	}
	out.Sort()
	return out, nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
