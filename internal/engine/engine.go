// Package engine implements the Engine (C8): the single-threaded dispatch
// loop that drains the EventQueue, advances the Clock, and serializes every
// callback into RiskEngine, the OrderStore and StrategyRuntime. Mirrors the
// teacher's SimpleEngine in structure (one mutex guarding the lifecycle
// state and the commands-processed count) but generalizes it to drive either a
// SimExecutor (backtest) or a LiveExecutor (live) behind the same loop.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradecore/internal/apperrors"
	"tradecore/internal/clock"
	"tradecore/internal/eventqueue"
	"tradecore/internal/executor/live"
	"tradecore/internal/executor/sim"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/risk"
	"tradecore/internal/strategy"
	"tradecore/internal/telemetry"
)

// State is one node of the Engine's lifecycle state machine (spec §4.8).
type State int

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode selects which order gateway the dispatch loop drives.
type Mode int

const (
	ModeBacktest Mode = iota
	ModeLive
)

// Config is the Engine's static configuration, fixed for the run's lifetime.
type Config struct {
	Mode    Mode
	Symbols []model.Symbol

	// ProgressInterval throttles the progress callback; the spec requires
	// it fire no more than every 100ms wall-clock. Zero uses that default.
	ProgressInterval time.Duration
}

// progressCallbackDefaultInterval is the spec's "at most every 100ms" bound.
const progressCallbackDefaultInterval = 100 * time.Millisecond

// EngineVersion is reported on the engine_started event.
const EngineVersion = "tradecore-engine/1"

// Engine is the C8 dispatch loop. One Engine owns one Clock, one
// EventQueue, one OrderStore, one RiskEngine and one StrategyRuntime for
// the duration of a run.
type Engine struct {
	mu    sync.Mutex
	state State
	cfg   Config

	clk     clock.Clock
	queue   *eventqueue.Queue
	store   *oms.Store
	risk    *risk.Engine
	runtime *strategy.Runtime
	emitter Emitter
	logger  telemetry.Logger

	simExec  *sim.Executor  // ModeBacktest
	liveExec *live.Executor // ModeLive

	runCtx    context.Context
	runCancel context.CancelFunc

	progressCb   func(float64)
	lastProgress time.Time

	commandsProcessed int64
}

// IncrementCommandsProcessed records one more command line handled, for the
// engine_stopped{commands_processed} summary. Called by the CommandReader.
func (e *Engine) IncrementCommandsProcessed() {
	e.mu.Lock()
	e.commandsProcessed++
	e.mu.Unlock()
}

// New creates an Engine in State Idle. Wire a SimExecutor via
// WithSimExecutor or a LiveExecutor via WithLiveExecutor before Initialize,
// matching cfg.Mode.
func New(cfg Config, clk clock.Clock, queue *eventqueue.Queue, store *oms.Store, riskEng *risk.Engine, runtime *strategy.Runtime, emitter Emitter, logger telemetry.Logger) *Engine {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Engine{
		state:   StateIdle,
		cfg:     cfg,
		clk:     clk,
		queue:   queue,
		store:   store,
		risk:    riskEng,
		runtime: runtime,
		emitter: emitter,
		logger:  logger.WithField("component", "engine"),
	}
}

// WithSimExecutor wires the backtest order gateway.
func (e *Engine) WithSimExecutor(s *sim.Executor) *Engine {
	e.simExec = s
	return e
}

// WithLiveExecutor wires the live order gateway.
func (e *Engine) WithLiveExecutor(l *live.Executor) *Engine {
	e.liveExec = l
	return e
}

// SetProgressCallback registers a callback invoked with Clock.Progress() no
// more than every 100ms of wall-clock time during Run.
func (e *Engine) SetProgressCallback(cb func(float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progressCb = cb
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) transition(from []State, to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := false
	for _, f := range from {
		if e.state == f {
			ok = true
			break
		}
	}
	if !ok {
		return apperrors.Wrap(apperrors.KindInternal, apperrors.TagStrategyPanicked,
			fmt.Errorf("%w: from %s to %s", apperrors.ErrInvalidTransition, e.state, to))
	}
	e.state = to
	return nil
}

// Initialize validates the wiring for cfg.Mode and moves Idle -> Initialized.
func (e *Engine) Initialize() error {
	switch e.cfg.Mode {
	case ModeBacktest:
		if e.simExec == nil {
			return apperrors.New(apperrors.KindValidation, apperrors.TagBadParams, "backtest mode requires WithSimExecutor")
		}
	case ModeLive:
		if e.liveExec == nil {
			return apperrors.New(apperrors.KindValidation, apperrors.TagBadParams, "live mode requires WithLiveExecutor")
		}
	}
	return e.transition([]State{StateIdle}, StateInitialized)
}

// Pause moves Running -> Paused. Strategies stop receiving dispatched
// events but the loop keeps running so Resume is cheap.
func (e *Engine) Pause() error {
	return e.transition([]State{StateRunning}, StatePaused)
}

// Resume moves Paused -> Running.
func (e *Engine) Resume() error {
	return e.transition([]State{StatePaused}, StateRunning)
}

// Stop requests a drain-and-halt. Safe to call from any non-terminal state;
// Run observes it and exits once the current event finishes dispatching.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped || e.state == StateStopping {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	cancel := e.runCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.state = StateError
	e.mu.Unlock()
	e.logger.WithField("error", err.Error()).Error("engine entering Error state")
	e.emitter.EmitError(err.Error())
}

// Run drives the dispatch loop to completion: in ModeBacktest it drains the
// EventQueue until empty, in ModeLive it blocks until ctx is cancelled or
// Stop is called. Moves Initialized -> Running, then Stopping -> Stopped on
// a clean exit.
func (e *Engine) Run(ctx context.Context) error {
	if e.State() == StateRunning {
		return apperrors.ErrAlreadyRunning
	}
	if err := e.transition([]State{StateInitialized}, StateRunning); err != nil {
		return err
	}
	e.emitter.EmitEngineStarted(EngineVersion)

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runCtx = runCtx
	e.runCancel = cancel
	e.mu.Unlock()
	defer cancel()

	for {
		select {
		case <-runCtx.Done():
			return e.finishStopping()
		default:
		}

		st := e.State()
		if st == StateStopping {
			return e.finishStopping()
		}
		if st == StatePaused {
			// Idle-wait without draining the queue; Resume picks up where
			// dispatch left off.
			time.Sleep(time.Millisecond)
			continue
		}

		more, err := e.Step(runCtx)
		if err != nil {
			e.fail(err)
			return err
		}
		if !more {
			if e.cfg.Mode == ModeBacktest {
				if e.State() == StateRunning {
					_ = e.Stop()
				}
				continue
			}
			// live mode: queue momentarily empty, wait for the next push
			time.Sleep(time.Millisecond)
		}
	}
}

func (e *Engine) finishStopping() error {
	e.mu.Lock()
	e.state = StateStopped
	processed := e.commandsProcessed
	e.mu.Unlock()
	e.emitter.EmitEngineStopped(processed)
	return nil
}

// Step pops and dispatches exactly one event. more is false when the queue
// was empty. Exported so a backtest step-debugger can drive the loop one
// event at a time.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	evt, ok := e.queue.Pop()
	if !ok {
		return false, nil
	}

	if vc, isVirtual := e.clk.(*clock.VirtualClock); isVirtual {
		if err := vc.AdvanceTo(evt.TsNs); err != nil {
			return true, err
		}
	}

	if err := e.dispatch(ctx, evt); err != nil {
		return true, err
	}

	e.maybeReportProgress()
	return true, nil
}

func (e *Engine) maybeReportProgress() {
	e.mu.Lock()
	cb := e.progressCb
	interval := e.cfg.ProgressInterval
	if interval <= 0 {
		interval = progressCallbackDefaultInterval
	}
	due := time.Since(e.lastProgress) >= interval
	if due {
		e.lastProgress = time.Now()
	}
	e.mu.Unlock()

	if cb != nil && due {
		cb(e.clk.Progress())
	}
}

func (e *Engine) dispatch(ctx context.Context, evt eventqueue.Event) error {
	switch evt.Kind {
	case eventqueue.KindMarket:
		e.handleMarket(ctx, evt.Market)
	case eventqueue.KindOrderAck:
		e.handleOrderAckEvent(evt)
	case eventqueue.KindFill:
		e.handleFillEvent(evt.Fill)
	case eventqueue.KindTimer:
		e.handleTimer(ctx, evt)
	case eventqueue.KindCommand:
		e.handleCommand(ctx, evt.Command)
	}
	return nil
}

func (e *Engine) handleMarket(ctx context.Context, evt model.MarketEvent) {
	e.emitter.EmitMarket(evt)

	if e.cfg.Mode == ModeBacktest {
		for _, f := range e.simExec.OnMarketEvent(evt) {
			e.applySimFill(evt.Symbol, f, evt.TsNs)
		}
	}

	if e.State() != StateRunning {
		return
	}
	actions := e.runtime.DispatchMarketEvent(evt)
	for _, a := range actions {
		e.dispatchAction(ctx, a, evt.TsNs)
	}
}

func (e *Engine) handleTimer(ctx context.Context, evt eventqueue.Event) {
	if e.State() != StateRunning {
		return
	}
	actions := e.runtime.DispatchTimerByName(evt.TimerName, evt.TsNs)
	for _, a := range actions {
		e.dispatchAction(ctx, a, evt.TsNs)
	}
}

// handleCommand is the hook for CommandReader-sourced KindCommand events
// (ORDER/CANCEL/STRATEGY/SUBSCRIBE/QUERY lines); the command package owns
// parsing and calls back into the Engine's public Submit/Cancel surface, so
// by the time a KindCommand event reaches here it only needs logging.
func (e *Engine) handleCommand(ctx context.Context, line string) {
	e.logger.WithField("command", line).Debug("command event drained")
}

// SubmitOrder runs a parsed ORDER command through the same admission path
// as a strategy-emitted ActionSubmit: RiskEngine.CheckOrder, then placement
// on whichever gateway cfg.Mode selects. Exported for the CommandReader.
func (e *Engine) SubmitOrder(ctx context.Context, req model.OrderRequest) {
	e.handleSubmitAction(ctx, req, e.clk.NowNs())
}

// CancelOrder runs a parsed CANCEL command through the same path as a
// strategy-emitted ActionCancel. Exported for the CommandReader.
func (e *Engine) CancelOrder(ctx context.Context, cid string) {
	e.handleCancelAction(ctx, cid, e.clk.NowNs())
}

// QueryOrder returns an immutable snapshot of one order, for a parsed
// QUERY ORDER command.
func (e *Engine) QueryOrder(cid string) (model.OrderState, bool) {
	return e.store.Query(cid)
}

// QuerySnapshot returns every known order, for a parsed QUERY ORDERS
// command.
func (e *Engine) QuerySnapshot() []model.OrderState {
	return e.store.Snapshot()
}

// Runtime exposes the StrategyRuntime so a parsed STRATEGY command can
// load/pause/resume/stop a strategy instance directly.
func (e *Engine) Runtime() *strategy.Runtime {
	return e.runtime
}

// Emitter exposes the wired Emitter so the CommandReader can mirror
// command-received lifecycle events through the same event stream.
func (e *Engine) Emitter() Emitter {
	return e.emitter
}

func (e *Engine) dispatchAction(ctx context.Context, a model.Action, nowNs int64) {
	switch a.Type {
	case model.ActionSubmit:
		e.handleSubmitAction(ctx, a.Submit, nowNs)
	case model.ActionCancel:
		e.handleCancelAction(ctx, a.CancelID, nowNs)
	case model.ActionSetTimer:
		_ = e.queue.Push(eventqueue.TimerEventOf(a.TimerName, a.TimerAtNs, model.PriorityNormal))
	case model.ActionLog:
		e.logger.Info(a.LogMessage)
	}
}

// handleSubmitAction runs Submit Action -> RiskEngine.check -> place, per
// spec §4.8. Risk admission and rejection are always synchronous and local;
// only the venue placement itself differs between backtest (synchronous,
// resolved inline) and live (asynchronous, resolved by a goroutine that
// reports back through the OrderStore the live Executor already owns).
func (e *Engine) handleSubmitAction(ctx context.Context, req model.OrderRequest, nowNs int64) {
	cid, err := e.store.Submit(req)
	if err != nil {
		e.logger.WithField("client_order_id", req.ClientOrderID).Warn("submit rejected: " + err.Error())
		return
	}

	if err := e.risk.CheckOrder(req, e.store.OpenCount()); err != nil {
		tag := apperrors.TagOf(err)
		_ = e.store.OnAck(cid, "", false, string(tag), nowNs)
		e.emitOrderUpdate(cid)
		e.emitter.EmitRiskTriggered(tag, string(req.Symbol), err.Error())
		return
	}
	e.emitOrderUpdate(cid)

	switch e.cfg.Mode {
	case ModeBacktest:
		e.submitToSim(cid, req, nowNs)
	case ModeLive:
		e.submitToLive(ctx, req, nowNs)
	}
}

func (e *Engine) submitToSim(cid string, req model.OrderRequest, nowNs int64) {
	res := e.simExec.Submit(req)
	if res.Rejected {
		_ = e.store.OnAck(cid, "", false, res.Reason, nowNs)
	} else {
		_ = e.store.OnAck(cid, cid, true, "", nowNs)
	}
	e.emitOrderUpdate(cid)

	for _, f := range res.Fills {
		e.applySimFill(req.Symbol, f, nowNs)
	}
}

func (e *Engine) applySimFill(symbol model.Symbol, f sim.FillEvent, nowNs int64) {
	fill, err := e.store.OnFill(f.ClientOrderID, f.Qty, f.Price, f.Fee, nowNs)
	if err != nil {
		e.logger.WithField("client_order_id", f.ClientOrderID).Warn("sim fill rejected by order store: " + err.Error())
		return
	}
	fill.IsMaker = f.IsMaker
	e.handleFillEvent(fill)
}

// handleFillEvent is the single path every fill (sim-synchronous or
// live-asynchronous) flows through: OrderStore already applied, so this
// only forwards to RiskEngine and StrategyRuntime and emits.
func (e *Engine) handleFillEvent(fill model.Fill) {
	st, ok := e.store.Query(fill.ClientOrderID)
	if !ok {
		return
	}
	e.risk.ApplyFill(string(st.Symbol), st.Side, fill.Qty, fill.Price)
	e.emitter.EmitFill(fill)
	e.emitOrderUpdate(fill.ClientOrderID)
	if e.State() == StateRunning {
		e.runtime.DispatchFill(fill)
	}
}

func (e *Engine) handleCancelAction(ctx context.Context, cid string, nowNs int64) {
	switch e.cfg.Mode {
	case ModeBacktest:
		if err := e.store.OnCancelRequest(cid); err != nil {
			return // already terminal: idempotent no-op
		}
		st, ok := e.store.Query(cid)
		if ok {
			e.simExec.CancelResting(st.Symbol, cid)
		}
		_ = e.store.OnCancelAck(cid, nowNs)
		e.emitOrderUpdate(cid)
	case ModeLive:
		go func() {
			if err := e.liveExec.Cancel(ctx, cid, nowNs); err != nil {
				e.logger.WithField("client_order_id", cid).Warn("live cancel failed: " + err.Error())
			}
			e.emitOrderUpdate(cid)
		}()
	}
}

// submitToLive dispatches placement asynchronously: live.Executor.Place
// owns the OrderStore mutation (and the at-most-once retry/reconcile
// contract), so the goroutine's only job after it returns is to read the
// resulting state back and emit it.
func (e *Engine) submitToLive(ctx context.Context, req model.OrderRequest, nowNs int64) {
	go func() {
		err := e.liveExec.Place(ctx, req, nowNs)
		e.emitOrderUpdate(req.ClientOrderID)
		if err != nil {
			if te, ok := apperrors.As(err); ok && te.Tag == apperrors.TagVenueReconcile {
				e.emitter.EmitReconcileRequired(req.ClientOrderID, te.Error())
			}
		}
	}()
}

func (e *Engine) emitOrderUpdate(cid string) {
	st, ok := e.store.Query(cid)
	if !ok {
		return
	}
	e.emitter.EmitOrderUpdate(st)
	if e.State() == StateRunning {
		e.runtime.DispatchOrderUpdate(st)
	}
}

// handleOrderAckEvent reacts to a KindOrderAck pushed by ConsumeUserStream
// for a live-mode terminal/non-fill status transition it already applied
// to the OrderStore (cancel ack, expiry). Fills arrive as KindFill instead.
func (e *Engine) handleOrderAckEvent(evt eventqueue.Event) {
	e.emitOrderUpdate(evt.ClientOrderID)
}
