package strategy

import (
	"fmt"
	"sync"
	"time"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
	"tradecore/internal/telemetry"
)

// RunState is the lifecycle of one loaded strategy instance.
type RunState int

const (
	StateRunning RunState = iota
	StatePaused
	StateErrored
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateErrored:
		return "errored"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Metrics is the per-strategy counters the runtime maintains.
type Metrics struct {
	EventsProcessed   int64
	SignalsGenerated  int64
	Errors            int64
	AvgExecTimeUs     float64 // exponential moving average
}

const emaAlpha = 0.2

// Subscription identifies which events an instance receives.
type Subscription struct {
	Venue     model.Venue
	Symbol    model.Symbol
	EventType model.EventType
}

// Instance wraps one loaded Strategy with its runtime bookkeeping.
type Instance struct {
	ID     string
	Type   string
	Params map[string]float64

	mu      sync.Mutex
	impl    Strategy
	state   RunState
	metrics Metrics
	subs    []Subscription

	pendingTimers []pendingTimer
}

type pendingTimer struct {
	name string
	atNs int64
}

// State returns the current lifecycle state.
func (in *Instance) State() RunState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// MetricsSnapshot returns a copy of the instance's counters.
func (in *Instance) MetricsSnapshot() Metrics {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.metrics
}

// Runtime is the StrategyRuntime. It owns every loaded Instance, routes
// market events to subscribers only, and collects emitted Actions in order.
type Runtime struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]*Instance
	logger    telemetry.Logger
}

// NewRuntime creates an empty Runtime over the given strategy factories.
func NewRuntime(factories []Factory, logger telemetry.Logger) *Runtime {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	fm := make(map[string]Factory, len(factories))
	for _, f := range factories {
		fm[f.TypeName] = f
	}
	return &Runtime{factories: fm, instances: make(map[string]*Instance), logger: logger}
}

// Load instantiates a strategy by type name + params, validating params
// against the factory's declared ranges, and subscribes it to the given
// (venue, symbol, event_type) tuples.
func (r *Runtime) Load(id, typeName string, params map[string]float64, subs []Subscription) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factories[typeName]
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.TagUnknownStrategy,
			fmt.Sprintf("unknown strategy type %q", typeName))
	}
	if err := f.ValidateParams(params); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.TagBadParams, err.Error())
	}

	impl := f.New()
	inst := &Instance{ID: id, Type: typeName, Params: params, impl: impl, state: StateRunning, subs: subs}
	if err := r.safeCall(inst, func() error { return impl.OnInit(params) }); err != nil {
		inst.state = StateErrored
		return inst, apperrors.New(apperrors.KindStrategy, apperrors.TagStrategyPanicked, err.Error())
	}
	r.instances[id] = inst
	return inst, nil
}

// NewSubscription builds a Subscription tuple; exported so callers outside
// the package (the Engine's config loading) can construct the slice passed
// to Load.
func NewSubscription(venue model.Venue, symbol model.Symbol, eventType model.EventType) Subscription {
	return Subscription{Venue: venue, Symbol: symbol, EventType: eventType}
}

// Pause stops event delivery to an instance without unloading it.
func (r *Runtime) Pause(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	inst.mu.Lock()
	if inst.state == StateRunning {
		inst.state = StatePaused
	}
	inst.mu.Unlock()
	return nil
}

// Resume resumes event delivery and drains any timers that fired while
// paused, in timestamp order.
func (r *Runtime) Resume(id string) ([]model.Action, error) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}

	inst.mu.Lock()
	if inst.state == StatePaused {
		inst.state = StateRunning
	}
	timers := inst.pendingTimers
	inst.pendingTimers = nil
	inst.mu.Unlock()

	// deliver pending timers in ts order
	for i := 0; i < len(timers); i++ {
		for j := i + 1; j < len(timers); j++ {
			if timers[j].atNs < timers[i].atNs {
				timers[i], timers[j] = timers[j], timers[i]
			}
		}
	}

	var actions []model.Action
	for _, t := range timers {
		acts := r.dispatchTimer(inst, t.name, t.atNs)
		actions = append(actions, acts...)
	}
	return actions, nil
}

// Stop permanently unloads an instance, invoking OnStop.
func (r *Runtime) Stop(id string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if ok {
		delete(r.instances, id)
	}
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	inst.mu.Lock()
	inst.state = StateStopped
	impl := inst.impl
	inst.mu.Unlock()
	r.safeCall(inst, func() error { impl.OnStop(); return nil })
	return nil
}

// Get returns the loaded instance for id, if any.
func (r *Runtime) Get(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// List returns every currently loaded instance, in no particular order.
func (r *Runtime) List() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// DispatchMarketEvent routes evt to every Running instance subscribed to
// its (venue, symbol, type), collecting their Actions. Each instance's
// Actions keep the order it emitted them in; the order across instances
// follows map iteration and is not fixed.
func (r *Runtime) DispatchMarketEvent(evt model.MarketEvent) []model.Action {
	r.mu.Lock()
	targets := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		inst.mu.Lock()
		subscribed := inst.state == StateRunning && isSubscribed(inst.subs, evt)
		inst.mu.Unlock()
		if subscribed {
			targets = append(targets, inst)
		}
	}
	r.mu.Unlock()

	var out []model.Action
	for _, inst := range targets {
		start := time.Now()
		var acts []model.Action
		err := r.safeCall(inst, func() error {
			acts = inst.impl.OnMarketEvent(evt)
			return nil
		})
		r.recordExec(inst, start, err, len(acts))
		if err == nil {
			out = append(out, acts...)
		}
	}
	return out
}

func (r *Runtime) dispatchTimer(inst *Instance, name string, atNs int64) []model.Action {
	inst.mu.Lock()
	running := inst.state == StateRunning
	paused := inst.state == StatePaused
	inst.mu.Unlock()

	if paused {
		inst.mu.Lock()
		inst.pendingTimers = append(inst.pendingTimers, pendingTimer{name: name, atNs: atNs})
		inst.mu.Unlock()
		return nil
	}
	if !running {
		return nil
	}

	start := time.Now()
	err := r.safeCall(inst, func() error { inst.impl.OnTimer(name, atNs); return nil })
	r.recordExec(inst, start, err, 0)
	return nil
}

// DispatchTimer routes a fired timer to the named instance.
func (r *Runtime) DispatchTimer(id, name string, atNs int64) []model.Action {
	r.mu.Lock()
	inst, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.dispatchTimer(inst, name, atNs)
}

// DispatchTimerByName broadcasts a fired timer to every loaded instance,
// running or paused, by timer name alone. Used by the Engine, which only
// has the name a SetTimerAction carried (Action does not preserve which
// instance emitted it); strategies that care which of their own timers
// fired disambiguate on name themselves, the same way OnFill
// disambiguates on client_order_id.
func (r *Runtime) DispatchTimerByName(name string, atNs int64) []model.Action {
	r.mu.Lock()
	targets := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		targets = append(targets, inst)
	}
	r.mu.Unlock()

	var out []model.Action
	for _, inst := range targets {
		out = append(out, r.dispatchTimer(inst, name, atNs)...)
	}
	return out
}

// DispatchOrderUpdate and DispatchFill notify every loaded, running
// instance; strategies filter on client_order_id themselves since the
// runtime does not track order ownership per strategy.
func (r *Runtime) DispatchOrderUpdate(state model.OrderState) {
	for _, inst := range r.runningInstances() {
		r.safeCall(inst, func() error { inst.impl.OnOrderUpdate(state); return nil })
	}
}

func (r *Runtime) DispatchFill(fill model.Fill) {
	for _, inst := range r.runningInstances() {
		r.safeCall(inst, func() error { inst.impl.OnFill(fill); return nil })
	}
}

func (r *Runtime) runningInstances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		inst.mu.Lock()
		running := inst.state == StateRunning
		inst.mu.Unlock()
		if running {
			out = append(out, inst)
		}
	}
	return out
}

func isSubscribed(subs []Subscription, evt model.MarketEvent) bool {
	for _, s := range subs {
		if s.Venue == evt.Venue && s.Symbol == evt.Symbol && s.EventType == evt.Type {
			return true
		}
	}
	return false
}

// safeCall invokes fn, converting a panic into an Errored transition and a
// StrategyError instead of crashing the engine loop.
func (r *Runtime) safeCall(inst *Instance, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst.mu.Lock()
			inst.state = StateErrored
			inst.metrics.Errors++
			inst.mu.Unlock()
			r.logger.WithField("strategy_id", inst.ID).Error(fmt.Sprintf("strategy panicked: %v", rec))
			err = apperrors.New(apperrors.KindStrategy, apperrors.TagStrategyPanicked, fmt.Sprintf("%v", rec))
		}
	}()
	if callErr := fn(); callErr != nil {
		inst.mu.Lock()
		inst.metrics.Errors++
		inst.mu.Unlock()
		return callErr
	}
	return nil
}

func (r *Runtime) recordExec(inst *Instance, start time.Time, err error, signals int) {
	elapsedUs := float64(time.Since(start).Microseconds())
	inst.mu.Lock()
	inst.metrics.EventsProcessed++
	if inst.metrics.AvgExecTimeUs == 0 {
		inst.metrics.AvgExecTimeUs = elapsedUs
	} else {
		inst.metrics.AvgExecTimeUs = emaAlpha*elapsedUs + (1-emaAlpha)*inst.metrics.AvgExecTimeUs
	}
	inst.metrics.SignalsGenerated += int64(signals)
	inst.mu.Unlock()
}
