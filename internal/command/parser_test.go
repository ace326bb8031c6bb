package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

func TestParse_Order(t *testing.T) {
	cmd, err := Parse(1, "ORDER BUY BTCUSDT 0.5 25000.10 cid-1")
	require.NoError(t, err)
	assert.Equal(t, KindOrder, cmd.Kind)
	assert.Equal(t, model.Buy, cmd.Order.Side)
	assert.Equal(t, model.Symbol("BTCUSDT"), cmd.Order.Symbol)
	assert.Equal(t, "cid-1", cmd.Order.ClientOrderID)
	assert.Equal(t, model.Limit, cmd.Order.Type)
	assert.Equal(t, model.GTC, cmd.Order.TIF)
}

func TestParse_BuySellAliasesAndTypeTIF(t *testing.T) {
	cmd, err := Parse(2, "SELL ethusdt 2 1800 cid-2 M IOC")
	require.NoError(t, err)
	assert.Equal(t, model.Sell, cmd.Order.Side)
	assert.Equal(t, model.Symbol("ETHUSDT"), cmd.Order.Symbol)
	assert.Equal(t, model.Market, cmd.Order.Type)
	assert.Equal(t, model.IOC, cmd.Order.TIF)
}

func TestParse_MarketOrderRejectsGTC(t *testing.T) {
	_, err := Parse(3, "BUY BTCUSDT 1 0 cid-3 MARKET GTC")
	require.Error(t, err)
}

func TestParse_Cancel(t *testing.T) {
	cmd, err := Parse(4, "CANCEL cid-1")
	require.NoError(t, err)
	assert.Equal(t, KindCancel, cmd.Kind)
	assert.Equal(t, "cid-1", cmd.CancelID)
}

func TestParse_QueryOrders(t *testing.T) {
	cmd, err := Parse(5, "QUERY ORDERS")
	require.NoError(t, err)
	assert.Equal(t, KindQuery, cmd.Kind)
	assert.Equal(t, "ORDERS", cmd.QueryType)
}

func TestParse_StrategyLoadWithParamsAndSubscription(t *testing.T) {
	cmd, err := Parse(6, "STRATEGY LOAD market_maker mm-1 spread=0.001 venue=binance symbol=BTCUSDT event=booktop")
	require.NoError(t, err)
	assert.Equal(t, KindStrategy, cmd.Kind)
	assert.Equal(t, "LOAD", cmd.StrategySub)
	assert.Equal(t, "market_maker", cmd.StrategyType)
	assert.Equal(t, "mm-1", cmd.StrategyID)
	assert.Equal(t, "0.001", cmd.StrategyArgs["spread"])
	assert.Equal(t, "binance", cmd.StrategyArgs["venue"])
}

func TestParse_StrategyUnknownSubcommand(t *testing.T) {
	_, err := Parse(7, "STRATEGY BOGUS mm-1")
	require.Error(t, err)
}

func TestParse_Subscribe(t *testing.T) {
	cmd, err := Parse(8, "SUBSCRIBE binance btcusdt trade")
	require.NoError(t, err)
	assert.Equal(t, KindSubscribe, cmd.Kind)
	assert.Equal(t, model.Venue("binance"), cmd.SubVenue)
	assert.Equal(t, model.Symbol("BTCUSDT"), cmd.SubSymbol)
	assert.Equal(t, "trade", cmd.SubEventType)
}

func TestParse_EmptyLineIsError(t *testing.T) {
	_, err := Parse(9, "   ")
	require.Error(t, err)
}

func TestParse_UnrecognizedVerb(t *testing.T) {
	_, err := Parse(10, "FROBNICATE x")
	require.Error(t, err)
}
