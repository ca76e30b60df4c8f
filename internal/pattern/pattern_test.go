package pattern

import (
	"bytes"
	"strings"
	"testing"

	"voltrade/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes(vals ...float64) market.Records {
	out := make(market.Records, len(vals))
	for i, v := range vals {
		out[i] = market.Record{Timestamp: int64(i * 60), Symbol: "BTC-USD", Open: v, High: v, Low: v, Close: v, Volume: 1}
	}
	return out
}

func TestScoreWindow(t *testing.T) {
	cases := []struct {
		name    string
		closes  []float64
		buckets int
		seq     []int
		signal  market.Signal
	}{
		{"rising", []float64{10, 12, 14, 20}, 5, []int{0, 1, 2, 5}, market.SignalBuy},
		{"falling", []float64{20, 10}, 4, []int{4, 0}, market.SignalShort},
		{"flat window", []float64{5, 5, 5}, 3, []int{0, 0, 0}, market.SignalHold},
		{"equal tail", []float64{1, 3, 3}, 2, []int{0, 2, 2}, market.SignalHold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := ScoreWindow(closes(tc.closes...), tc.buckets)
			require.NoError(t, err)
			assert.Equal(t, tc.seq, sig.Sequence)
			assert.Equal(t, tc.signal, sig.Signal)
			assert.Equal(t, 1, sig.Strength)
		})
	}

	_, err := ScoreWindow(closes(1), 3)
	assert.ErrorIs(t, err, market.ErrInsufficientData)
	_, err = ScoreWindow(closes(1, 2), 0)
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func buildSample(t *testing.T) *Library {
	t.Helper()
	data := map[string]market.Records{
		"BTC-USD": closes(1, 2, 1, 2, 1),
		"ETH-USD": closes(1, 2),
	}
	lib, err := BuildLibrary(data, 3, 1)
	require.NoError(t, err)
	return lib
}

func TestBuildLibraryCountsRepeats(t *testing.T) {
	lib := buildSample(t)
	require.Equal(t, 2, lib.Len())
	sigs := lib.Signatures()
	assert.Equal(t, []int{0, 1, 0}, sigs[0].Sequence)
	assert.Equal(t, market.SignalShort, sigs[0].Signal)
	assert.Equal(t, 2, sigs[0].Strength)
	assert.Equal(t, []int{1, 0, 1}, sigs[1].Sequence)
	assert.Equal(t, 1, sigs[1].Strength)

	got, ok := lib.Lookup([]int{1, 0, 1})
	require.True(t, ok)
	assert.Equal(t, market.SignalBuy, got.Signal)

	_, err := BuildLibrary(nil, 1, 3)
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestWindowTwoRejected(t *testing.T) {
	lib := buildSample(t)

	_, err := BuildLibrary(map[string]market.Records{"BTC-USD": closes(1, 2, 3)}, 2, 3)
	assert.ErrorIs(t, err, market.ErrConfiguration)

	_, err = Consolidate(lib, 2)
	assert.ErrorIs(t, err, market.ErrConfiguration)

	_, err = NewMatcher(nil, 2, 3, Thresholds{})
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestConsolidateAndMatch(t *testing.T) {
	lib := buildSample(t)
	rows, err := Consolidate(lib, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Consolidated{Prefix: []int{0, 1}, Total: 2, Short: 2}, rows[0])
	assert.Equal(t, Consolidated{Prefix: []int{1, 0}, Total: 1, Buy: 1}, rows[1])

	th := Thresholds{MinStrength: 1, Confidence: 0.6}
	assert.Equal(t, market.SignalShort, rows[0].Direction(th))
	assert.Equal(t, market.SignalNone, rows[1].Direction(th))
	assert.Len(t, FilterStrong(rows, th), 1)

	m, err := NewMatcher(rows, 3, 1, th)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Lookback())

	sig, err := m.Match(closes(100, 5, 9))
	require.NoError(t, err)
	assert.Equal(t, market.SignalShort, sig)

	sig, err = m.Match(closes(9, 5))
	require.NoError(t, err)
	assert.Equal(t, market.SignalNone, sig)

	sig, err = m.Match(closes(3, 3))
	require.NoError(t, err)
	assert.Equal(t, market.SignalNone, sig)

	_, err = m.Match(closes(3))
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestDirectionNeedsMajority(t *testing.T) {
	th := Thresholds{MinStrength: 0, Confidence: 0.6}
	assert.Equal(t, market.SignalNone, Consolidated{Total: 10, Buy: 5, Short: 5}.Direction(th))
	assert.Equal(t, market.SignalNone, Consolidated{Total: 10, Buy: 2, Short: 1, Hold: 7}.Direction(th))
	assert.Equal(t, market.SignalBuy, Consolidated{Total: 10, Buy: 7, Short: 3}.Direction(th))
	assert.Equal(t, market.SignalNone, Consolidated{}.Direction(th))
}

func TestArtifactRoundTrip(t *testing.T) {
	rows := []Consolidated{
		{Prefix: []int{0, 1, 2}, Total: 9, Buy: 6, Short: 2, Hold: 1},
		{Prefix: []int{3, 3, 0}, Total: 4, Buy: 0, Short: 4, Hold: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.Contains(t, buf.String(), `"[0, 1, 2]",9,6,2,1`)

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestArtifactRejectsMalformedRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("sequence,total,buy,short,hold\n\"[1, x]\",1,1,0,0\n"))
	assert.ErrorIs(t, err, market.ErrValidation)

	_, err = ReadCSV(strings.NewReader("sequence,total,buy,short\n\"[1]\",1,1,0\n"))
	assert.ErrorIs(t, err, market.ErrValidation)

	_, err = ReadCSV(strings.NewReader("sequence,total,buy,short,hold\n\"[1, 2]\",-1,1,0,0\n"))
	assert.ErrorIs(t, err, market.ErrValidation)
}
