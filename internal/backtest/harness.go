// Package backtest implements the BacktestHarness (C9): it configures an
// Engine in ModeBacktest against a SimExecutor, feeds it historical
// MarketEvents from a DataSource, and reports the run's performance
// metrics once the queue drains. Mirrors the teacher's pattern of driving
// the same dispatch loop the live path uses, only swapping the clock and
// executor underneath it.
package backtest

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"tradecore/internal/clock"
	"tradecore/internal/datasource"
	"tradecore/internal/engine"
	"tradecore/internal/executor/sim"
	"tradecore/internal/eventqueue"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/risk"
	"tradecore/internal/strategy"
	"tradecore/internal/telemetry"
)

// Config is the Harness's run configuration (spec §4.9).
type Config struct {
	StartMs         int64
	EndMs           int64
	InitialBalance  decimal.Decimal
	Symbols         []model.Symbol

	// EquitySampleIntervalMs throttles equity-curve sampling on market
	// data; fills always sample regardless of this interval. Zero samples
	// on every market event.
	EquitySampleIntervalMs int64

	// PeriodsPerYear annualizes the Sharpe ratio; spec default is 252
	// (daily bars). Use 252*24 for hourly, etc.
	PeriodsPerYear float64

	// QueueCapacity bounds the EventQueue; zero means unbounded.
	QueueCapacity int

	Fees   sim.FeeConfig
	Risk   risk.Config
	Logger telemetry.Logger
}

// Harness wires one Engine run end to end: DataSource -> EventQueue ->
// Engine(SimExecutor) -> metricsTracker -> Result.
type Harness struct {
	cfg     Config
	clk     *clock.VirtualClock
	queue   *eventqueue.Queue
	store   *oms.Store
	risk    *risk.Engine
	runtime *strategy.Runtime
	eng     *engine.Engine
	tracker *metricsTracker
}

// New builds a Harness around runtime (already Load()ed with the strategy
// instance under test) and an optional real emitter to mirror events onto
// in addition to the Harness's own metrics tracking. emitter may be nil.
func New(cfg Config, runtime *strategy.Runtime, emitter engine.Emitter) *Harness {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	if emitter == nil {
		emitter = engine.NopEmitter{}
	}

	clk := clock.NewVirtualClock(cfg.StartMs*1_000_000, cfg.EndMs*1_000_000)
	queue := eventqueue.New(cfg.QueueCapacity)
	store := oms.New(cfg.Logger)
	riskEng := risk.New(cfg.Risk, cfg.InitialBalance, nil, cfg.Logger)

	tracker := newMetricsTracker(cfg.InitialBalance, cfg.EquitySampleIntervalMs*1_000_000)
	tracking := &trackingEmitter{Emitter: emitter, tracker: tracker, store: store}

	eng := engine.New(engine.Config{
		Mode:    engine.ModeBacktest,
		Symbols: cfg.Symbols,
	}, clk, queue, store, riskEng, runtime, tracking, cfg.Logger)
	eng.WithSimExecutor(sim.New(cfg.Fees))

	return &Harness{
		cfg:     cfg,
		clk:     clk,
		queue:   queue,
		store:   store,
		risk:    riskEng,
		runtime: runtime,
		eng:     eng,
		tracker: tracker,
	}
}

// Engine exposes the underlying Engine, e.g. for a CommandReader driving
// order submission alongside the replayed market data.
func (h *Harness) Engine() *engine.Engine { return h.eng }

// Load reads every event in [StartMs, EndMs) for symbol from src and
// enqueues it as market data. Call once per symbol before Run.
func (h *Harness) Load(ctx context.Context, src datasource.Source, symbol model.Symbol, dataType datasource.DataType, tf datasource.TimeFrame) error {
	events, err := src.GetData(ctx, symbol, h.cfg.StartMs, h.cfg.EndMs, dataType, tf)
	if err != nil {
		return err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].TsNs < events[j].TsNs })
	for _, evt := range events {
		if err := h.queue.Push(eventqueue.MarketEventOf(evt)); err != nil {
			return err
		}
	}
	return nil
}

// Run initializes the Engine and drives it to completion. In ModeBacktest
// the Engine stops itself once the EventQueue drains, so no separate
// end-of-run check is needed here.
func (h *Harness) Run(ctx context.Context) error {
	if err := h.eng.Initialize(); err != nil {
		return err
	}
	return h.eng.Run(ctx)
}

// Step advances the Engine by exactly one queued event, for external
// step-mode debuggers. Returns false once the queue is empty.
func (h *Harness) Step(ctx context.Context) (bool, error) {
	return h.eng.Step(ctx)
}

// Result computes the run's performance metrics from the tracked equity
// curve and closed trades (spec §4.9).
func (h *Harness) Result() Result {
	return h.tracker.result(h.cfg.PeriodsPerYear)
}
