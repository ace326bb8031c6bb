package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

type recordingNotifier struct {
	triggered   []apperrors.Tag
	killReasons []string
}

func (r *recordingNotifier) NotifyRiskTriggered(tag apperrors.Tag, symbol, detail string) {
	r.triggered = append(r.triggered, tag)
}
func (r *recordingNotifier) NotifyKillSwitchEngaged(reason string) {
	r.killReasons = append(r.killReasons, reason)
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.Limits["BTCUSDT"] = SymbolLimits{
		MaxPositionSize: decimal.NewFromInt(10),
		MaxNotional:     decimal.NewFromInt(100000),
	}
	cfg.MaxOpenOrders = 5
	cfg.DailyLossLimit = decimal.NewFromFloat(0.1)
	return cfg
}

func req(symbol string, side model.Side, qty, price decimal.Decimal) model.OrderRequest {
	return model.OrderRequest{ClientOrderID: "c1", Symbol: model.Symbol(symbol), Side: side, Type: model.Limit, TIF: model.GTC, Qty: qty, Price: price}
}

func TestEngine_KillSwitchRejectsAll(t *testing.T) {
	cfg := baseConfig()
	cfg.KillSwitchEnabled = true
	n := &recordingNotifier{}
	e := New(cfg, decimal.NewFromInt(10000), n, nil)

	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100)), 0)
	require.Error(t, err)
	tagged, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TagRiskKillSwitch, tagged.Tag)
}

func TestEngine_TooManyOpenOrders(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)
	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100)), 5)
	require.Error(t, err)
	tagged, _ := apperrors.As(err)
	assert.Equal(t, apperrors.TagRiskTooManyOrder, tagged.Tag)
}

func TestEngine_PositionLimitExceeded(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)
	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(11), decimal.NewFromInt(100)), 0)
	require.Error(t, err)
	tagged, _ := apperrors.As(err)
	assert.Equal(t, apperrors.TagRiskPosition, tagged.Tag)
}

func TestEngine_NotionalLimitExceeded(t *testing.T) {
	cfg := baseConfig()
	cfg.Limits["BTCUSDT"] = SymbolLimits{MaxPositionSize: decimal.NewFromInt(1000), MaxNotional: decimal.NewFromInt(500)}
	e := New(cfg, decimal.NewFromInt(10000), nil, nil)
	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(10), decimal.NewFromInt(100)), 0)
	require.Error(t, err)
	tagged, _ := apperrors.As(err)
	assert.Equal(t, apperrors.TagRiskNotional, tagged.Tag)
}

func TestEngine_InsufficientBalance(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)
	e.SetBalance(model.AccountBalance{Asset: "USDT", Free: decimal.NewFromInt(50), Locked: decimal.Zero})

	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100)), 0)
	require.Error(t, err)
	tagged, _ := apperrors.As(err)
	assert.Equal(t, apperrors.TagRiskInsufficient, tagged.Tag)
}

func TestEngine_OrderPassesAllChecks(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)
	e.SetBalance(model.AccountBalance{Asset: "USDT", Free: decimal.NewFromInt(100000), Locked: decimal.Zero})

	err := e.CheckOrder(req("BTCUSDT", model.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100)), 0)
	assert.NoError(t, err)
}

func TestEngine_ApplyFillTracksPositionAndRealizedPnL(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)

	e.ApplyFill("BTCUSDT", model.Buy, decimal.NewFromInt(5), decimal.NewFromInt(100))
	pos := e.Position("BTCUSDT")
	assert.True(t, pos.NetQty.Equal(decimal.NewFromInt(5)))
	assert.True(t, pos.AvgEntryPrice.Equal(decimal.NewFromInt(100)))

	e.ApplyFill("BTCUSDT", model.Sell, decimal.NewFromInt(2), decimal.NewFromInt(110))
	pos = e.Position("BTCUSDT")
	assert.True(t, pos.NetQty.Equal(decimal.NewFromInt(3)))
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(20)), "2 * (110-100) = 20, got %s", pos.RealizedPnL)
}

func TestEngine_ApplyFillTripsKillSwitchOnDailyLossBreach(t *testing.T) {
	n := &recordingNotifier{}
	e := New(baseConfig(), decimal.NewFromInt(1000), n, nil) // 10% of 1000 = 100 loss threshold

	e.ApplyFill("BTCUSDT", model.Buy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	e.ApplyFill("BTCUSDT", model.Sell, decimal.NewFromInt(10), decimal.NewFromInt(80)) // realized -200

	assert.True(t, e.KillSwitchEngaged())
	require.Len(t, n.killReasons, 1)
}

func TestEngine_ManualTripAndReset(t *testing.T) {
	e := New(baseConfig(), decimal.NewFromInt(10000), nil, nil)
	e.TripKillSwitch("operator halt")
	assert.True(t, e.KillSwitchEngaged())
	e.ResetKillSwitch()
	assert.False(t, e.KillSwitchEngaged())
}
