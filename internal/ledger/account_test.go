package ledger

import (
	"errors"
	"sync"
	"testing"

	"voltrade/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	acct, err := NewAccount(Settings{StartingBalance: 5000, ProfitMultiple: 4, StopLossMultiple: 1.5})
	require.NoError(t, err)
	return acct
}

func TestLongRoundTripScenario(t *testing.T) {
	acct := newTestAccount(t)
	pos, err := acct.Open(OpenRequest{
		Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 10,
		StopLoss: 90, ProfitTarget: 140, EffectiveTime: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, pos.ID)
	assert.Equal(t, StateOpen, pos.State)
	assert.InDelta(t, 4000.0, acct.Balance(), 1e-9)
	assert.InDelta(t, 4000.0, acct.MaxDrawdown(), 1e-9)

	marked, err := acct.Update("BTC-USD", 150, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.InDelta(t, 4000.0, acct.Balance(), 1e-9)
	assert.InDelta(t, 1500.0, acct.PortfolioValue(), 1e-9)

	closed, err := acct.Close("BTC-USD", 150, 200)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 5500.0, acct.Balance(), 1e-9)
	require.NotNil(t, closed[0].ClosePrice)
	assert.Equal(t, 150.0, *closed[0].ClosePrice)
	require.NotNil(t, closed[0].CloseTime)
	assert.Equal(t, int64(200), *closed[0].CloseTime)
	assert.Equal(t, StateClosed, closed[0].State)
	assert.Empty(t, acct.OpenPositions(""))
}

func TestShortScenario(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{
		Side: market.SideShort, Symbol: "ETH-USD", Price: 100, Quantity: 5,
		StopLoss: 120, ProfitTarget: 80, EffectiveTime: 100,
	})
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, acct.Balance(), 1e-9)

	_, err = acct.Update("ETH-USD", 80, 200)
	require.NoError(t, err)
	assert.InDelta(t, 5100.0, acct.Balance(), 1e-9)

	closed, err := acct.Close("ETH-USD", 80, 200)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 5100.0, acct.Balance(), 1e-9)

	pnl, ok := closed[0].RealizedPnL()
	require.True(t, ok)
	assert.InDelta(t, 100.0, pnl, 1e-9)
}

func TestShortMarkingTracksDrawdown(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{
		Side: market.SideShort, Symbol: "ETH-USD", Price: 100, Quantity: 5,
		StopLoss: 120, ProfitTarget: 80, EffectiveTime: 100,
	})
	require.NoError(t, err)

	_, err = acct.Update("ETH-USD", 110, 200)
	require.NoError(t, err)
	assert.InDelta(t, 4950.0, acct.Balance(), 1e-9)
	assert.InDelta(t, 4950.0, acct.MaxDrawdown(), 1e-9)

	_, err = acct.Update("ETH-USD", 110, 300)
	require.NoError(t, err)
	assert.InDelta(t, 4950.0, acct.Balance(), 1e-9)

	_, err = acct.Update("ETH-USD", 95, 400)
	require.NoError(t, err)
	assert.InDelta(t, 5025.0, acct.Balance(), 1e-9)
	assert.InDelta(t, 4950.0, acct.MaxDrawdown(), 1e-9)

	// stop is strict: 120 does not close, 121 does
	closed, err := acct.Close("ETH-USD", 120, 500)
	require.NoError(t, err)
	assert.Empty(t, closed)
	closed, err = acct.Close("ETH-USD", 121, 600)
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func TestClosedPositionsAreIdempotent(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{
		Side: market.SideShort, Symbol: "ETH-USD", Price: 100, Quantity: 5,
		StopLoss: 120, ProfitTarget: 80, EffectiveTime: 100,
	})
	require.NoError(t, err)
	_, err = acct.Update("ETH-USD", 80, 200)
	require.NoError(t, err)
	_, err = acct.Close("ETH-USD", 80, 200)
	require.NoError(t, err)
	before := acct.Positions()

	marked, err := acct.Update("ETH-USD", 60, 300)
	require.NoError(t, err)
	assert.Zero(t, marked)
	closed, err := acct.Close("ETH-USD", 60, 300)
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.InDelta(t, 5100.0, acct.Balance(), 1e-9)
	assert.Equal(t, before, acct.Positions())
}

func TestEligibilityRequiresEarlierOpenTime(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{
		Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 1,
		StopLoss: 90, ProfitTarget: 110, EffectiveTime: 100,
	})
	require.NoError(t, err)

	marked, err := acct.Update("BTC-USD", 200, 100)
	require.NoError(t, err)
	assert.Zero(t, marked)
	closed, err := acct.Close("BTC-USD", 200, 100)
	require.NoError(t, err)
	assert.Empty(t, closed)

	marked, err = acct.Update("ETH-USD", 200, 200)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestLiquidateRoundTripLeavesBalanceUnchanged(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{
		Side: market.SideLong, Symbol: "BTC-USD", Price: 123.45, Quantity: 3.3,
		StopLoss: 100, ProfitTarget: 150, EffectiveTime: 100,
	})
	require.NoError(t, err)
	closed, err := acct.Liquidate("BTC-USD", 123.45, 200)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 5000.0, acct.Balance())
}

func TestOpenValidation(t *testing.T) {
	acct := newTestAccount(t)
	cases := []struct {
		name  string
		req   OpenRequest
		field string
	}{
		{"zero quantity", OpenRequest{Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 0, StopLoss: 90, ProfitTarget: 110}, "quantity"},
		{"inverted long brackets", OpenRequest{Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 1, StopLoss: 110, ProfitTarget: 90}, "brackets"},
		{"inverted short brackets", OpenRequest{Side: market.SideShort, Symbol: "BTC-USD", Price: 100, Quantity: 1, StopLoss: 90, ProfitTarget: 110}, "brackets"},
		{"stop equals price", OpenRequest{Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 1, StopLoss: 100, ProfitTarget: 110}, "brackets"},
		{"unknown side", OpenRequest{Side: "flat", Symbol: "BTC-USD", Price: 100, Quantity: 1, StopLoss: 90, ProfitTarget: 110}, "side"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := acct.Open(tc.req)
			var verr *market.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, acct.Positions())
	assert.Equal(t, 5000.0, acct.Balance())
}

func TestNewAccountDefaults(t *testing.T) {
	acct := newTestAccount(t)
	assert.InDelta(t, 50.0, acct.TradeUnitValue(), 1e-9)

	_, err := NewAccount(Settings{StartingBalance: 0})
	assert.ErrorIs(t, err, market.ErrConfiguration)
	_, err = NewAccount(Settings{StartingBalance: 100, TradeFraction: 2})
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestSummary(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.Open(OpenRequest{Side: market.SideLong, Symbol: "BTC-USD", Price: 100, Quantity: 2, StopLoss: 90, ProfitTarget: 120, EffectiveTime: 1})
	require.NoError(t, err)
	_, err = acct.Open(OpenRequest{Side: market.SideShort, Symbol: "ETH-USD", Price: 50, Quantity: 4, StopLoss: 60, ProfitTarget: 40, EffectiveTime: 1})
	require.NoError(t, err)
	_, err = acct.Open(OpenRequest{Side: market.SideLong, Symbol: "LTC-USD", Price: 10, Quantity: 1, StopLoss: 9, ProfitTarget: 12, EffectiveTime: 1})
	require.NoError(t, err)

	_, _ = acct.Update("BTC-USD", 125, 2)
	_, _ = acct.Close("BTC-USD", 125, 2)
	_, _ = acct.Update("ETH-USD", 55, 2)
	_, _ = acct.Update("LTC-USD", 11, 2)

	s := acct.Summary()
	assert.Equal(t, 3, s.Opened)
	assert.Equal(t, 1, s.Closed)
	assert.Equal(t, 2, s.StillOpen)
	assert.Equal(t, 1, s.Wins)
	assert.InDelta(t, 50.0, s.LongClosedPnL, 1e-9)
	assert.InDelta(t, -20.0, s.ShortOpenPnL, 1e-9)
	assert.InDelta(t, 1.0, s.LongOpenPnL, 1e-9)
	assert.Len(t, acct.OpenPositions("ETH-USD"), 1)
}

func TestAccountConcurrentSymbols(t *testing.T) {
	acct := newTestAccount(t)
	symbols := []string{"BTC-USD", "ETH-USD", "LTC-USD", "ADA-USD"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := acct.Open(OpenRequest{Side: market.SideLong, Symbol: sym, Price: 10, Quantity: 1, StopLoss: 9, ProfitTarget: 11, EffectiveTime: int64(i)})
				assert.NoError(t, err)
				_, err = acct.Update(sym, 10, int64(i))
				assert.NoError(t, err)
			}
		}(sym)
	}
	wg.Wait()
	assert.Len(t, acct.Positions(), 100)
	assert.InDelta(t, 4000.0, acct.Balance(), 1e-9)
	for i, p := range acct.Positions() {
		assert.Equal(t, i, p.ID)
	}
}
