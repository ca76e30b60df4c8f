package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voltrade/internal/market"
	"voltrade/internal/store/candlestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Fetch(ctx context.Context, req FetchRequest) (market.Records, error) {
	args := m.Called(ctx, req)
	recs, _ := args.Get(0).(market.Records)
	return recs, args.Error(1)
}

func minutes(from, to int64) market.Records {
	var out market.Records
	for ts := from; ts <= to; ts += 60 {
		out = append(out, market.Record{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3})
	}
	return out
}

func newStore(t *testing.T) *candlestore.Store {
	t.Helper()
	st, err := candlestore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newService(t *testing.T, st RecordStore, src Source, page int) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Store:     st,
		Source:    src,
		Timeframe: candlestore.TimeframeMinute,
		Interval:  "1m",
		Step:      time.Minute,
		RateLimit: 1000,
		PageLimit: page,
	})
	require.NoError(t, err)
	return svc
}

func TestIngestPaginatesAndStores(t *testing.T) {
	st := newStore(t)
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool { return r.Start == 60 })).
		Return(minutes(60, 240), nil).Once()
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool { return r.Start == 300 })).
		Return(minutes(300, 420), nil).Once()

	svc := newService(t, st, src, 4)
	reports, err := svc.Ingest(context.Background(), []string{"BTC-USD"}, 60, 420)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.NoError(t, reports[0].Err)
	assert.Equal(t, 2, reports[0].Pages)
	assert.Equal(t, 7, reports[0].Inserted)
	src.AssertExpectations(t)

	got, err := st.All(context.Background(), "BTC-USD", candlestore.TimeframeMinute)
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, "BTC-USD", got[0].Symbol)
}

func TestIngestSkipsStoredPages(t *testing.T) {
	st := newStore(t)
	recs := minutes(60, 240)
	for i := range recs {
		recs[i].Symbol = "ETH-USD"
	}
	_, err := st.Insert(context.Background(), candlestore.TimeframeMinute, recs)
	require.NoError(t, err)

	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool { return r.Start == 300 })).
		Return(minutes(300, 300), nil).Once()

	svc := newService(t, st, src, 4)
	reports, err := svc.Ingest(context.Background(), []string{"ETH-USD"}, 60, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Skipped)
	assert.Equal(t, 1, reports[0].Inserted)
	src.AssertExpectations(t)
}

func TestIngestIsolatesSymbolFailures(t *testing.T) {
	st := newStore(t)
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool { return r.Symbol == "BAD-USD" })).
		Return(nil, errors.New("upstream 500"))
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool { return r.Symbol == "SOL-USD" })).
		Return(minutes(60, 120), nil)

	svc := newService(t, st, src, 10)
	reports, err := svc.Ingest(context.Background(), []string{"BAD-USD", "SOL-USD"}, 60, 120)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.ErrorContains(t, reports[0].Err, "upstream 500")
	assert.NoError(t, reports[1].Err)
	assert.Equal(t, 2, reports[1].Inserted)
}

func TestIngestRejectsBadRange(t *testing.T) {
	svc := newService(t, newStore(t), &mockSource{}, 10)
	_, err := svc.Ingest(context.Background(), []string{"BTC-USD"}, 100, 50)
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceConfig{Source: &mockSource{}, Step: time.Minute})
	assert.ErrorIs(t, err, market.ErrConfiguration)
	_, err = NewService(ServiceConfig{Store: newStore(t), Step: time.Minute})
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestImportCSV(t *testing.T) {
	st := newStore(t)
	csv := "timestamp,open,high,low,close,volume\n60,1,2,0.5,1.5,10\n120,1.5,2.5,1,2,11\n"
	n, err := ImportCSV(context.Background(), st, candlestore.TimeframeMinute, strings.NewReader(csv), "XRP-USD")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	syms, err := st.Symbols(candlestore.TimeframeMinute)
	require.NoError(t, err)
	assert.Equal(t, []string{"XRP-USD"}, syms)
}
