package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/clock"
	"tradecore/internal/eventqueue"
	"tradecore/internal/executor/sim"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/risk"
	"tradecore/internal/strategy"
)

// crossingStrategy submits one crossing limit buy on its first market event
// so a resting sell already in the book fills it immediately.
type crossingStrategy struct {
	fired bool
	fills []model.Fill
}

func (s *crossingStrategy) OnInit(map[string]float64) error { return nil }

func (s *crossingStrategy) OnMarketEvent(evt model.MarketEvent) []model.Action {
	if s.fired {
		return nil
	}
	s.fired = true
	return []model.Action{model.SubmitAction(model.OrderRequest{
		ClientOrderID: "c1",
		Symbol:        evt.Symbol,
		Side:          model.Buy,
		Type:          model.Limit,
		TIF:           model.GTC,
		Qty:           decimal.NewFromInt(1),
		Price:         decimal.NewFromInt(101),
	})}
}

func (s *crossingStrategy) OnOrderUpdate(model.OrderState) {}
func (s *crossingStrategy) OnFill(f model.Fill)             { s.fills = append(s.fills, f) }
func (s *crossingStrategy) OnTimer(string, int64)           {}
func (s *crossingStrategy) OnStop()                         {}

func newTestEngine(t *testing.T, strat strategy.Strategy) (*Engine, *oms.Store, *sim.Executor) {
	t.Helper()
	q := eventqueue.New(0)
	store := oms.New(nil)
	riskEng := risk.New(risk.DefaultConfig(), decimal.NewFromInt(10_000), nil, nil)
	rt := strategy.NewRuntime([]strategy.Factory{{
		TypeName: "crossing",
		Ranges:   map[string]strategy.ParamRange{},
		New:      func() strategy.Strategy { return strat },
	}}, nil)
	_, err := rt.Load("s1", "crossing", nil, []strategy.Subscription{
		strategy.NewSubscription(model.VenueSim, "BTCUSDT", model.EventBookTop),
	})
	require.NoError(t, err)

	clk := clock.NewVirtualClock(1000, 2000)
	execu := sim.New(sim.DefaultFees())
	e := New(Config{Mode: ModeBacktest, Symbols: []model.Symbol{"BTCUSDT"}}, clk, q, store, riskEng, rt, NopEmitter{}, nil).
		WithSimExecutor(execu)
	return e, store, execu
}

func TestEngine_InitializeRejectsWithoutExecutor(t *testing.T) {
	e := New(Config{Mode: ModeBacktest}, clock.NewVirtualClock(0, 1), eventqueue.New(0), oms.New(nil),
		risk.New(risk.DefaultConfig(), decimal.Zero, nil, nil), strategy.NewRuntime(nil, nil), NopEmitter{}, nil)
	require.Error(t, e.Initialize())
}

func TestEngine_StateTransitions(t *testing.T) {
	e, _, _ := newTestEngine(t, &crossingStrategy{})
	assert.Equal(t, StateIdle, e.State())

	require.NoError(t, e.Initialize())
	assert.Equal(t, StateInitialized, e.State())

	require.Error(t, e.Pause(), "cannot pause before running")

	// Drive a tiny run: one book top whose ask (102) is above the strategy's
	// 101 bid, so the buy rests unfilled; the drained queue then stops the run.
	require.NoError(t, e.PushMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim,
		decimal.NewFromInt(99), decimal.NewFromInt(5), decimal.NewFromInt(102), decimal.NewFromInt(5), 1001)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, e.State())
}

func TestEngine_SubmitCrossesRestingOrderAndFills(t *testing.T) {
	strat := &crossingStrategy{}
	e, store, _ := newTestEngine(t, strat)
	require.NoError(t, e.Initialize())

	// Resting ask at 100 already known to the book via a prior BookTop so
	// the strategy's crossing buy at 101 fills immediately as taker.
	require.NoError(t, e.PushMarketEvent(model.NewBookTop("BTCUSDT", model.VenueSim,
		decimal.NewFromInt(99), decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.NewFromInt(5), 1001)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	st, ok := store.Query("c1")
	require.True(t, ok)
	assert.Equal(t, model.StatusFilled, st.Status)
	assert.True(t, st.ExecutedQty.Equal(decimal.NewFromInt(1)))
	require.Len(t, strat.fills, 1)
	assert.True(t, strat.fills[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestEngine_CancelActionCancelsRestingOrder(t *testing.T) {
	q := eventqueue.New(0)
	store := oms.New(nil)
	riskEng := risk.New(risk.DefaultConfig(), decimal.NewFromInt(10_000), nil, nil)
	rt := strategy.NewRuntime(nil, nil)
	clk := clock.NewVirtualClock(1000, 2000)
	execu := sim.New(sim.DefaultFees())
	e := New(Config{Mode: ModeBacktest}, clk, q, store, riskEng, rt, NopEmitter{}, nil).WithSimExecutor(execu)
	require.NoError(t, e.Initialize())

	req := model.OrderRequest{ClientOrderID: "c2", Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit,
		TIF: model.GTC, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(50)}
	e.handleSubmitAction(context.Background(), req, 1)
	st, ok := store.Query("c2")
	require.True(t, ok)
	assert.Equal(t, model.StatusAccepted, st.Status)

	e.handleCancelAction(context.Background(), "c2", 2)
	st, _ = store.Query("c2")
	assert.Equal(t, model.StatusCancelled, st.Status)
}

func TestEngine_PauseStopsStrategyDispatch(t *testing.T) {
	strat := &crossingStrategy{}
	e, _, _ := newTestEngine(t, strat)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.transition([]State{StateInitialized}, StateRunning))
	require.NoError(t, e.Pause())

	e.handleMarket(context.Background(), model.NewBookTop("BTCUSDT", model.VenueSim,
		decimal.NewFromInt(99), decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.NewFromInt(5), 1001))
	assert.False(t, strat.fired, "strategy must not be dispatched while paused")

	require.NoError(t, e.Resume())
	e.handleMarket(context.Background(), model.NewBookTop("BTCUSDT", model.VenueSim,
		decimal.NewFromInt(99), decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.NewFromInt(5), 1002))
	assert.True(t, strat.fired)
}
