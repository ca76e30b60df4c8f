package app

import (
	"strings"
	"time"

	"voltrade/internal/config"
	"voltrade/internal/gateway/binance"
	"voltrade/internal/gateway/coinbase"
	"voltrade/internal/ingest"
	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/store/candlestore"
	"voltrade/internal/store/runstore"
)

func provideCandleStore(cfg *config.Config) (*candlestore.Store, func(), error) {
	st, err := candlestore.NewStore(cfg.Data.CandleDBDir)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			logger.Warnf("close candle store: %v", err)
		}
	}, nil
}

func provideRunStore(cfg *config.Config) (*runstore.Store, func(), error) {
	st, err := runstore.Open(cfg.Data.ResultDBPath)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			logger.Warnf("close run store: %v", err)
		}
	}, nil
}

// newSource 按 ingest.source 构造交易所数据源。
func newSource(cfg config.IngestConfig) (ingest.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "binance":
		return binance.New(binance.Config{RESTBaseURL: cfg.BaseURL, HTTPTimeout: 15 * time.Second})
	case "coinbase":
		return coinbase.New(coinbase.Config{RESTBaseURL: cfg.BaseURL, HTTPTimeout: 15 * time.Second}), nil
	}
	return nil, &market.ConfigurationError{Key: "ingest.source", Reason: "unknown source " + cfg.Source}
}
