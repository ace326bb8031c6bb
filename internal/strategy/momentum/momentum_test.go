package momentum

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

func newMomentum(t *testing.T, fast, slow int) *Strategy {
	t.Helper()
	factory := New(Config{Symbol: "BTCUSDT", Fast: fast, Slow: slow, Qty: decimal.NewFromInt(1)})
	impl := factory.New()
	require.NoError(t, impl.OnInit(nil))
	return impl.(*Strategy)
}

func klineAt(symbol model.Symbol, close int64, ts int64) model.MarketEvent {
	return model.NewKline(symbol, model.VenueSim,
		decimal.NewFromInt(close), decimal.NewFromInt(close), decimal.NewFromInt(close), decimal.NewFromInt(close),
		decimal.NewFromInt(1), ts, ts, ts)
}

func TestMomentum_NoSignalBeforeSlowWindowFills(t *testing.T) {
	s := newMomentum(t, 2, 4)
	for i := int64(1); i <= 3; i++ {
		actions := s.OnMarketEvent(klineAt("BTCUSDT", 100, i))
		assert.Empty(t, actions)
	}
}

func TestMomentum_GoesLongOnUptrendCrossover(t *testing.T) {
	s := newMomentum(t, 2, 4)
	closes := []int64{100, 100, 100, 100, 110, 120}
	var actions []model.Action
	for i, c := range closes {
		actions = append(actions, s.OnMarketEvent(klineAt("BTCUSDT", c, int64(i)+1))...)
	}
	require.NotEmpty(t, actions)
	assert.Equal(t, model.Buy, actions[0].Submit.Side)
	assert.True(t, s.inLong)
}

func TestMomentum_DeterministicAcrossTwoRuns(t *testing.T) {
	closes := []int64{100, 102, 101, 105, 110, 108, 115, 120, 118, 125}

	run := func() []model.Action {
		s := newMomentum(t, 2, 4)
		var all []model.Action
		for i, c := range closes {
			all = append(all, s.OnMarketEvent(klineAt("BTCUSDT", c, int64(i)+1))...)
		}
		return all
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Submit.ClientOrderID, second[i].Submit.ClientOrderID)
		assert.Equal(t, first[i].Submit.Side, second[i].Submit.Side)
	}
}
