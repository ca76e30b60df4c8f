package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/ledger"
	"voltrade/internal/market"
	"voltrade/internal/store/candlestore"
	"voltrade/internal/store/runstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	got RunRequest
	err error
}

func (f *fakeRunner) Run(_ context.Context, req RunRequest) (backtest.Result, error) {
	f.got = req
	if f.err != nil {
		return backtest.Result{}, f.err
	}
	return backtest.Result{RunID: "new-run", Strategy: req.Strategy, StartingBalance: 5000, FinalBalance: 5000}, nil
}

func newTestServer(t *testing.T, runner Runner) (*Server, *runstore.Store, *candlestore.Store) {
	t.Helper()
	runs, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })
	cs, err := candlestore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	srv, err := NewServer(Config{Results: runs, Candles: cs, Runner: runner})
	require.NoError(t, err)
	return srv, runs, cs
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var out map[string]json.RawMessage
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func seedRun(t *testing.T, runs *runstore.Store, id string, final float64) {
	t.Helper()
	res := backtest.Result{
		RunID:           id,
		Strategy:        backtest.StrategyPattern,
		Params:          backtest.DefaultParams(),
		StartingBalance: 5000,
		FinalBalance:    final,
		Positions: []ledger.Position{
			{ID: 0, Symbol: "BTC-USD", Side: market.SideLong, State: ledger.StateOpen, EntryPrice: 100, CurrentPrice: 105, Quantity: 1},
		},
		StartedAt:  time.Unix(100, 0),
		FinishedAt: time.Unix(200, 0),
	}
	require.NoError(t, runs.SaveRun(context.Background(), res, ""))
}

func TestRunEndpoints(t *testing.T) {
	srv, runs, _ := newTestServer(t, nil)
	seedRun(t, runs, "run-a", 5100)

	rec, body := do(t, srv, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []runstore.RunRecord
	require.NoError(t, json.Unmarshal(body["runs"], &list))
	require.Len(t, list, 1)
	assert.Equal(t, "run-a", list[0].RunID)

	rec, _ = do(t, srv, http.MethodGet, "/api/runs/run-a", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, srv, http.MethodGet, "/api/runs/run-a/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []ledger.Position
	require.NoError(t, json.Unmarshal(body["positions"], &positions))
	assert.Len(t, positions, 1)

	rec, _ = do(t, srv, http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/runs/missing/positions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, srv, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agg runstore.Aggregate
	require.NoError(t, json.Unmarshal(body["summary"], &agg))
	assert.Equal(t, 1, agg.Runs)
	assert.Equal(t, "run-a", agg.BestRunID)

	rec, _ = do(t, srv, http.MethodGet, "/api/patterns", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRunValidatesBody(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := newTestServer(t, runner)

	rec, body := do(t, srv, http.MethodPost, "/api/runs", `{"strategy":"cross","symbols":["BTC-USD"],"workers":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, string(body["error"]))
	assert.Equal(t, "cross", runner.got.Strategy)
	assert.Equal(t, []string{"BTC-USD"}, runner.got.Symbols)
	assert.Equal(t, 2, runner.got.Workers)

	for _, bad := range []string{
		`{"strategy":"martingale"}`,
		`{"symbols":"BTC-USD"}`,
		`{"workers":0}`,
		`{"unknown":true}`,
		`not json`,
	} {
		rec, _ := do(t, srv, http.MethodPost, "/api/runs", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec, _ = do(t, srv, http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	runner.err = market.NeedRecords("backtest", 10, 2)
	rec, _ = do(t, srv, http.MethodPost, "/api/runs", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStartRunWithoutRunner(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec, _ := do(t, srv, http.MethodPost, "/api/runs", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCandleEndpoints(t *testing.T) {
	srv, _, cs := newTestServer(t, nil)
	_, err := cs.Insert(context.Background(), candlestore.TimeframeVolume, market.Records{
		{Timestamp: 60, Symbol: "ETH-USD", Open: 1, High: 2, Low: 1, Close: 2, Volume: 5},
		{Timestamp: 120, Symbol: "ETH-USD", Open: 2, High: 3, Low: 2, Close: 3, Volume: 5},
	})
	require.NoError(t, err)

	rec, body := do(t, srv, http.MethodGet, "/api/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["ETH-USD"]`, string(body["symbols"]))

	rec, body = do(t, srv, http.MethodGet, "/api/candles?symbol=ETH-USD&start_ts=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs market.Records
	require.NoError(t, json.Unmarshal(body["candles"], &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, int64(120), recs[0].Timestamp)

	rec, _ = do(t, srv, http.MethodGet, "/api/candles", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
