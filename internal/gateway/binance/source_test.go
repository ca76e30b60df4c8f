package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voltrade/internal/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchKlines(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{
			"symbol":    q.Get("symbol"),
			"interval":  q.Get("interval"),
			"startTime": q.Get("startTime"),
			"endTime":   q.Get("endTime"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[120000,"11","13","10","12","5",179999,"0",3,"0","0","0"],
			[60000,"10","12","9","11","4",119999,"0",2,"0","0","0"],
			[180000,"12","14","11","13","6",239999,"0",1,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	src.now = func() time.Time { return time.UnixMilli(200000) }

	recs, err := src.Fetch(context.Background(), ingest.FetchRequest{
		Symbol: "btc-usdt", Interval: "1m", Start: 60, End: 180, Limit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", gotQuery["symbol"])
	assert.Equal(t, "1m", gotQuery["interval"])
	assert.Equal(t, "60000", gotQuery["startTime"])
	assert.Equal(t, "180000", gotQuery["endTime"])

	require.Len(t, recs, 2)
	assert.Equal(t, int64(60), recs[0].Timestamp)
	assert.Equal(t, int64(120), recs[1].Timestamp)
	assert.Equal(t, "BTC-USDT", recs[0].Symbol)
	assert.InDelta(t, 11.0, recs[0].Close, 1e-9)
	assert.InDelta(t, 5.0, recs[1].Volume, 1e-9)
}

func TestFetchRequiresSymbol(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), ingest.FetchRequest{})
	assert.Error(t, err)
	assert.Equal(t, "binance", src.Name())
}
