package candles

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"voltrade/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(ts int64, open, high, low, close, vol float64) market.Record {
	return market.Record{Timestamp: ts, Symbol: "BTC-USD", Open: open, High: high, Low: low, Close: close, Volume: vol}
}

func TestComputeVolumeLimit(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		records := make(market.Records, 59)
		_, err := ComputeVolumeLimit(records, UnitHour, 1)
		var ierr *market.InsufficientDataError
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, 60, ierr.Need)
		assert.Equal(t, 59, ierr.Have)
	})

	t.Run("zero range", func(t *testing.T) {
		_, err := ComputeVolumeLimit(make(market.Records, 100), UnitHour, 0)
		assert.ErrorIs(t, err, market.ErrConfiguration)
	})

	t.Run("uses most recent records", func(t *testing.T) {
		records := make(market.Records, 0, 130)
		for i := 0; i < 10; i++ {
			records = append(records, rec(int64(i), 1, 1, 1, 1, 1000))
		}
		for i := 0; i < 120; i++ {
			records = append(records, rec(int64(100+i), 1, 1, 1, 1, 2))
		}
		limit, err := ComputeVolumeLimit(records, UnitHour, 2)
		require.NoError(t, err)
		assert.InDelta(t, 120.0, limit, 1e-9)
	})
}

func TestParseWindowUnit(t *testing.T) {
	u, err := ParseWindowUnit("Week")
	require.NoError(t, err)
	assert.Equal(t, UnitWeek, u)

	_, err = ParseWindowUnit("fortnight")
	var cerr *market.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

func TestBuildVolumeCandlesSplitsAndCarries(t *testing.T) {
	records := market.Records{
		rec(1, 10, 11, 9, 10, 6),
		rec(2, 10, 13, 10, 12, 6),
		rec(3, 12, 12, 8, 9, 3),
		rec(4, 9, 10, 9, 10, 1),
	}
	out, err := BuildVolumeCandles(records, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)

	first := out[0]
	assert.Equal(t, int64(2), first.Timestamp)
	assert.Equal(t, 10.0, first.Volume)
	assert.Equal(t, 10.0, first.Open)
	assert.Equal(t, 13.0, first.High)
	assert.Equal(t, 9.0, first.Low)
	assert.InDelta(t, (6*10.0+4*12.0)/10, first.Close, 1e-9)

	// carry 2 @12 + 3 + 1 = 6 < 10, never emitted
	pending, ok := (func() (market.Record, bool) {
		agg, _ := NewAggregator(10)
		for _, r := range records {
			agg.Push(r)
		}
		return agg.Pending()
	})()
	require.True(t, ok)
	assert.InDelta(t, 6.0, pending.Volume, 1e-9)
	assert.InDelta(t, (2*12.0+3*9.0+1*10.0)/6, pending.Close, 1e-9)
	assert.Equal(t, 8.0, pending.Low)
}

func TestBuildVolumeCandlesExactFill(t *testing.T) {
	records := market.Records{
		rec(1, 10, 10, 10, 10, 5),
		rec(2, 10, 20, 10, 20, 5),
		rec(3, 30, 30, 30, 30, 10),
	}
	out, err := BuildVolumeCandles(records, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 15.0, out[0].Close, 1e-9)
	// zero-volume carry does not move the next weighted close
	assert.InDelta(t, 30.0, out[1].Close, 1e-9)
	assert.Equal(t, int64(3), out[1].Timestamp)
}

func TestBuildVolumeCandlesLargeRecord(t *testing.T) {
	records := market.Records{
		rec(1, 10, 10, 10, 10, 2),
		rec(2, 12, 12, 12, 12, 25),
	}
	out, err := BuildVolumeCandles(records, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, c := range out {
		assert.Equal(t, 10.0, c.Volume)
	}
	assert.InDelta(t, (2*10.0+8*12.0)/10, out[0].Close, 1e-9)
	assert.InDelta(t, 12.0, out[1].Close, 1e-9)
}

func TestBuildVolumeCandlesRejectsZeroLimit(t *testing.T) {
	_, err := BuildVolumeCandles(nil, 0)
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestBuildVolumeCandlesProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := make(market.Records, 0, 2000)
	price := 100.0
	for i := 0; i < 2000; i++ {
		open := price
		price += rng.Float64()*2 - 1
		high := math.Max(open, price) + rng.Float64()
		low := math.Min(open, price) - rng.Float64()
		records = append(records, rec(int64(i*60), open, high, low, price, float64(rng.Intn(50))))
	}
	const limit = 137.0
	out, err := BuildVolumeCandles(records, limit)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	totalIn := 0.0
	minLow, maxHigh := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		totalIn += r.Volume
		minLow = math.Min(minLow, r.Low)
		maxHigh = math.Max(maxHigh, r.High)
	}
	totalOut := 0.0
	for _, c := range out {
		assert.Equal(t, limit, c.Volume)
		assert.GreaterOrEqual(t, c.Close, c.Low-1e-9)
		assert.LessOrEqual(t, c.Close, c.High+1e-9)
		assert.GreaterOrEqual(t, c.Low, minLow)
		assert.LessOrEqual(t, c.High, maxHigh)
		totalOut += c.Volume
	}
	assert.LessOrEqual(t, totalOut, totalIn)
}

func TestBuildPerSymbolIsolatesFailures(t *testing.T) {
	var records market.Records
	for i := 0; i < 120; i++ {
		r := rec(int64(i*60), 1, 1, 1, 1, 1)
		records = append(records, r)
	}
	for i := 0; i < 10; i++ {
		r := rec(int64(i*60), 1, 1, 1, 1, 1)
		r.Symbol = "ADA-USD"
		records = append(records, r)
	}
	results := BuildPerSymbol(records, UnitHour, 1)
	require.Len(t, results, 2)
	assert.Equal(t, "ADA-USD", results[0].Symbol)
	assert.ErrorIs(t, results[0].Err, market.ErrInsufficientData)
	assert.Equal(t, "BTC-USD", results[1].Symbol)
	require.NoError(t, results[1].Err)
	assert.InDelta(t, 60.0, results[1].Limit, 1e-9)
	assert.Len(t, results[1].Candles, 2)
}
