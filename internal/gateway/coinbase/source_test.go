package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"voltrade/internal/ingest"
	"voltrade/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/ETH-USD/candles", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("granularity"))
		assert.Equal(t, "1970-01-01T00:01:00Z", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`[[180,9,12,10,11,3.5],[120,8,11,9,10,2],[60,7,10,8,9,1]]`))
	}))
	defer srv.Close()

	src := New(Config{RESTBaseURL: srv.URL})
	recs, err := src.Fetch(context.Background(), ingest.FetchRequest{Symbol: "eth/usd", Interval: "1m", Start: 60, End: 180})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int64{60, 120, 180}, []int64{recs[0].Timestamp, recs[1].Timestamp, recs[2].Timestamp})
	assert.Equal(t, market.Record{Timestamp: 180, Symbol: "ETH-USD", Open: 10, High: 12, Low: 9, Close: 11, Volume: 3.5}, recs[2])
}

func TestFetchPaginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src := New(Config{RESTBaseURL: srv.URL})
	// 301 根分钟线需要两页
	_, err := src.Fetch(context.Background(), ingest.FetchRequest{Symbol: "BTC-USD", Start: 0, End: 300 * 60})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"NotFound"}`))
	}))
	defer srv.Close()

	src := New(Config{RESTBaseURL: srv.URL})
	_, err := src.Fetch(context.Background(), ingest.FetchRequest{Symbol: "NOPE-USD", Start: 60, End: 120})
	assert.ErrorContains(t, err, "NotFound")
}

func TestFetchRejectsUnsupportedInterval(t *testing.T) {
	src := New(Config{})
	_, err := src.Fetch(context.Background(), ingest.FetchRequest{Symbol: "BTC-USD", Interval: "3m"})
	assert.ErrorIs(t, err, market.ErrConfiguration)
}
