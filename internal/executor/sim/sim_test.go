package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func dF(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestSim_MarketOrderRejectsWithoutKnownBook(t *testing.T) {
	e := New(DefaultFees())
	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Market, Qty: d(1)})
	require.True(t, res.Rejected)
	assert.Equal(t, "sim_no_book", res.Reason)
}

func TestSim_MarketOrderCrossesAtBookTopWithTakerFee(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), d(5), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Market, Qty: d(2)})
	require.False(t, res.Rejected)
	require.Len(t, res.Fills, 1)
	f := res.Fills[0]
	assert.True(t, f.Price.Equal(d(101)))
	assert.True(t, f.Qty.Equal(d(2)))
	assert.False(t, f.IsMaker)
	assert.True(t, f.Fee.Equal(d(101).Mul(d(2)).Mul(dF(0.0004))))
}

func TestSim_LimitOrderRestsWhenNotCrossing(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), d(5), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(98), Qty: d(1)})
	assert.True(t, res.Resting)
	assert.Empty(t, res.Fills)
}

func TestSim_LimitOrderFillsImmediatelyWhenCrossingAsTaker(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), d(5), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(102), Qty: d(1)})
	require.Len(t, res.Fills, 1)
	assert.False(t, res.Fills[0].IsMaker)
	assert.True(t, res.Fills[0].Price.Equal(d(101)))
}

func TestSim_PostOnlyRejectsWhenWouldCross(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), d(5), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.PostOnly, Price: d(102), Qty: d(1)})
	assert.True(t, res.Rejected)
	assert.False(t, res.Resting)
}

func TestSim_IOCCancelsRemainderAfterOnePass(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), dF(1), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.IOC, Price: d(102), Qty: d(3)})
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].Qty.Equal(dF(1)))
	assert.False(t, res.Resting, "IOC must never rest a remainder")
}

func TestSim_FOKRejectsWhenNotFullyFillable(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), dF(1), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.FOK, Price: d(102), Qty: d(3)})
	assert.True(t, res.Rejected)
	assert.Empty(t, res.Fills)
}

func TestSim_FOKFillsWhenFullyFillable(t *testing.T) {
	e := New(DefaultFees())
	e.OnMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim, d(99), d(5), d(101), d(5), 1))

	res := e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.FOK, Price: d(102), Qty: d(3)})
	require.False(t, res.Rejected)
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].Qty.Equal(d(3)))
}

func TestSim_RestingOrderFillsOnCrossingTradeAtMakerFee(t *testing.T) {
	e := New(DefaultFees())
	res := e.Submit(model.OrderRequest{ClientOrderID: "maker1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(100), Qty: d(2)})
	require.True(t, res.Resting)

	fills := e.OnMarketEvent(model.NewTrade("BTCUSDT", model.VenueSim, d(99), d(5), true, 1, 2))
	require.Len(t, fills, 1)
	assert.Equal(t, "maker1", fills[0].ClientOrderID)
	assert.True(t, fills[0].Price.Equal(d(99)))
	assert.True(t, fills[0].IsMaker)
	assert.True(t, fills[0].Fee.Equal(d(99).Mul(d(2)).Mul(dF(0.0002))))
}

func TestSim_PriceTimePriorityFillsBestPriceFirst(t *testing.T) {
	e := New(DefaultFees())
	e.Submit(model.OrderRequest{ClientOrderID: "low", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(99), Qty: d(5)})
	e.Submit(model.OrderRequest{ClientOrderID: "high", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(100), Qty: d(5)})

	fills := e.OnMarketEvent(model.NewTrade("BTCUSDT", model.VenueSim, d(99), d(3), true, 1, 2))
	require.Len(t, fills, 1)
	assert.Equal(t, "high", fills[0].ClientOrderID, "the higher resting bid has priority")
}

func TestSim_PartialFillLeavesRemainderResting(t *testing.T) {
	e := New(DefaultFees())
	e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, TIF: model.GTC, Price: d(100), Qty: d(5)})

	fills := e.OnMarketEvent(model.NewTrade("BTCUSDT", model.VenueSim, d(99), d(2), true, 1, 2))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Qty.Equal(d(2)))

	ok := e.CancelResting("BTCUSDT", "c1")
	assert.True(t, ok, "3 units must still be resting")
}

func TestSim_CancelRestingRemovesOrder(t *testing.T) {
	e := New(DefaultFees())
	e.Submit(model.OrderRequest{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: model.Sell, Type: model.Limit, TIF: model.GTC, Price: d(105), Qty: d(1)})

	assert.True(t, e.CancelResting("BTCUSDT", "c1"))
	assert.False(t, e.CancelResting("BTCUSDT", "c1"), "cancelling twice must report not-found")
}
