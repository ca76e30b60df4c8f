package market

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	t.Run("valid row", func(t *testing.T) {
		rec, err := ParseRecord(map[string]string{
			"Time": "1700000000", "symbol": "BTC-USD",
			"open": "100", "high": "110", "low": "95", "close": "105", "volume": "12.5",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), rec.Timestamp)
		assert.Equal(t, "BTC-USD", rec.Symbol)
		assert.Equal(t, 105.0, rec.Close)
		assert.Equal(t, 12.5, rec.Volume)
	})

	t.Run("millisecond timestamp", func(t *testing.T) {
		rec, err := ParseRecord(map[string]string{
			"timestamp": "1700000000000", "open": "1", "high": "1", "low": "1", "close": "1", "volume": "1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), rec.Timestamp)
	})

	t.Run("non numeric price", func(t *testing.T) {
		_, err := ParseRecord(map[string]string{
			"timestamp": "1", "open": "abc", "high": "1", "low": "1", "close": "1", "volume": "1",
		})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "open", verr.Field)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("inverted high low", func(t *testing.T) {
		_, err := ParseRecord(map[string]string{
			"timestamp": "1", "open": "1", "high": "1", "low": "2", "close": "1", "volume": "1",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRecordsHelpers(t *testing.T) {
	rs := Records{
		{Timestamp: 3, Symbol: "ETH-USD", Close: 3},
		{Timestamp: 1, Symbol: "BTC-USD", Close: 1},
		{Timestamp: 2, Symbol: "BTC-USD", Close: 2},
	}
	grouped := rs.BySymbol()
	require.Len(t, grouped, 2)
	assert.Equal(t, []float64{1, 2}, grouped["BTC-USD"].Closes())
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, Symbols(grouped))
	assert.Len(t, rs.Between(2, 3), 2)
	assert.Len(t, rs.Tail(2), 2)
	last, ok := grouped["BTC-USD"].Last()
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Timestamp)
	_, ok = Records{}.Last()
	assert.False(t, ok)
}

func TestCSVRoundTripWithBOM(t *testing.T) {
	records := Records{
		{Timestamp: 60, Symbol: "BTC-USD", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: 120, Symbol: "BTC-USD", Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 4},
	}
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	require.NoError(t, WriteCSV(&buf, records))

	got, err := ReadCSV(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadCSVDefaultSymbol(t *testing.T) {
	in := "time,open,high,low,close,volume\n60,1,1,1,1,1\n"
	got, err := ReadCSV(strings.NewReader(in), "LTC-USD")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "LTC-USD", got[0].Symbol)
}

func TestErrorTaxonomy(t *testing.T) {
	err := NeedRecords("atr", 5, 2)
	var ierr *InsufficientDataError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, 5, ierr.Need)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.NoError(t, NeedRecords("atr", 2, 2))

	cerr := &ConfigurationError{Key: "candles.window_unit", Reason: "unknown"}
	assert.ErrorIs(t, cerr, ErrConfiguration)
	assert.NotErrorIs(t, cerr, ErrValidation)
}
