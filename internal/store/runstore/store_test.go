package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/ledger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(id string, final float64) backtest.Result {
	closePrice := 120.0
	closeTime := int64(300)
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return backtest.Result{
		RunID:           id,
		Strategy:        backtest.StrategyPattern,
		Params:          backtest.DefaultParams(),
		StartingBalance: 5000,
		FinalBalance:    final,
		MaxDrawdown:     4950,
		Profit:          final - 5000,
		Positions: []ledger.Position{
			{ID: 0, Symbol: "BTC-USD", Side: market.SideLong, State: ledger.StateClosed, OpenTime: 180,
				EntryPrice: 100, CurrentPrice: 120, ClosePrice: &closePrice, CloseTime: &closeTime,
				Quantity: 0.5, StopLoss: 97, ProfitTarget: 108},
			{ID: 1, Symbol: "ETH-USD", Side: market.SideShort, State: ledger.StateOpen, OpenTime: 240,
				EntryPrice: 50, CurrentPrice: 49, Quantity: 1, StopLoss: 53, ProfitTarget: 42},
		},
		Summary:    ledger.Summary{Opened: 2, Closed: 1, StillOpen: 1, Wins: 1, LongClosedPnL: 10},
		Failures:   []backtest.SymbolFailure{{Symbol: "XRP-USD", Kind: backtest.FailureInsufficientData, Message: "need 15 records"}},
		Symbols:    []backtest.SymbolStats{{Symbol: "BTC-USD", Records: 6, Steps: 4}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestSaveAndReadRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.SaveRun(ctx, sampleResult("run-a", 5010), "q1"))

	rec, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "q1", rec.Scenario)
	assert.Equal(t, 5010.0, rec.FinalBalance)
	assert.Equal(t, 2, rec.PositionCount)
	assert.Equal(t, backtest.DefaultParams().Account, rec.Params.Account)
	assert.Equal(t, backtest.DefaultParams().Period, rec.Params.Period)
	assert.Equal(t, 1, rec.Summary.Wins)
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, "XRP-USD", rec.Failures[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), rec.FinishedAt)

	positions, err := s.ListPositions(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, market.SideLong, positions[0].Side)
	require.NotNil(t, positions[0].ClosePrice)
	assert.Equal(t, 120.0, *positions[0].ClosePrice)
	assert.Nil(t, positions[1].ClosePrice)
	assert.True(t, positions[1].IsOpen())

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.SaveRun(ctx, sampleResult("", 1), "")
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestListRunsAndSummary(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	agg, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, agg.Runs)

	first := sampleResult("run-a", 5010)
	second := sampleResult("run-b", 4900)
	second.MaxDrawdown = 4800
	second.FinishedAt = first.FinishedAt.Add(time.Hour)
	require.NoError(t, s.SaveRun(ctx, first, ""))
	require.NoError(t, s.SaveRun(ctx, second, ""))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)

	agg, err = s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Runs)
	assert.Equal(t, "run-a", agg.BestRunID)
	assert.InDelta(t, 4955.0, agg.AverageFinal, 1e-9)
	assert.Equal(t, 4800.0, agg.WorstDrawdown)
}

func TestPatternsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.LoadPatterns(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	rows := []pattern.Consolidated{
		{Prefix: []int{0, 2, 5}, Total: 9, Buy: 7, Short: 1, Hold: 1},
		{Prefix: []int{5, 3, 0}, Total: 4, Short: 4},
	}
	require.NoError(t, s.SavePatterns(ctx, "lib-1", 4, 5, rows))
	require.NoError(t, s.SavePatterns(ctx, "lib-2", 4, 5, rows[:1]))

	lib, err := s.LoadPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-2", lib.LibraryID)
	assert.Equal(t, 4, lib.Window)
	assert.Equal(t, 5, lib.Buckets)
	assert.Equal(t, rows[:1], lib.Rows)
}
