package gridstrat

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

func newGrid(t *testing.T) *Strategy {
	t.Helper()
	factory := New(Config{
		Symbol:         "BTCUSDT",
		PriceInterval:  decimal.NewFromInt(10),
		OrderQty:       decimal.NewFromFloat(0.01),
		BuyWindowSize:  3,
		SellWindowSize: 3,
		PriceDecimals:  2,
		Neutral:        true,
	})
	impl := factory.New()
	require.NoError(t, impl.OnInit(nil))
	return impl.(*Strategy)
}

func TestGrid_FirstTickQuotesBothSides(t *testing.T) {
	s := newGrid(t)
	evt := model.NewTrade("BTCUSDT", model.VenueSim, decimal.NewFromInt(50000), decimal.NewFromInt(1), false, 1, 1)
	actions := s.OnMarketEvent(evt)

	var buys, sells int
	for _, a := range actions {
		require.Equal(t, model.ActionSubmit, a.Type)
		if a.Submit.Side == model.Buy {
			buys++
		} else {
			sells++
		}
	}
	assert.Equal(t, 3, buys)
	assert.Equal(t, 3, sells)
}

func TestGrid_DoesNotRequoteSameLevelTwice(t *testing.T) {
	s := newGrid(t)
	evt := model.NewTrade("BTCUSDT", model.VenueSim, decimal.NewFromInt(50000), decimal.NewFromInt(1), false, 1, 1)
	first := s.OnMarketEvent(evt)
	require.NotEmpty(t, first)

	second := s.OnMarketEvent(evt)
	assert.Empty(t, second, "an unchanged price must not re-submit already-open levels")
}

func TestGrid_IgnoresOtherSymbols(t *testing.T) {
	s := newGrid(t)
	evt := model.NewTrade("ETHUSDT", model.VenueSim, decimal.NewFromInt(3000), decimal.NewFromInt(1), false, 1, 1)
	actions := s.OnMarketEvent(evt)
	assert.Empty(t, actions)
}

func TestGrid_FillFreesLevelForRequote(t *testing.T) {
	s := newGrid(t)
	evt := model.NewTrade("BTCUSDT", model.VenueSim, decimal.NewFromInt(50000), decimal.NewFromInt(1), false, 1, 1)
	actions := s.OnMarketEvent(evt)
	require.NotEmpty(t, actions)
	cid := actions[0].Submit.ClientOrderID

	s.OnOrderUpdate(model.OrderState{ClientOrderID: cid, Status: model.StatusFilled})
	again := s.OnMarketEvent(evt)
	assert.NotEmpty(t, again, "a filled level must be eligible to re-quote")
}
