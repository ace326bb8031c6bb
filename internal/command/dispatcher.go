package command

import (
	"context"
	"strconv"

	"tradecore/internal/apperrors"
	"tradecore/internal/engine"
	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// Dispatcher applies parsed Commands to a running Engine, emitting the
// lifecycle-mirror and strategy_* events the command stream promises.
type Dispatcher struct {
	eng *engine.Engine
}

// NewDispatcher wires a Dispatcher to eng. eng must already be Initialized.
func NewDispatcher(eng *engine.Engine) *Dispatcher {
	return &Dispatcher{eng: eng}
}

// Apply runs one parsed Command to completion. Non-fatal errors are
// reported through the Engine's Emitter as order_update/error events; Apply
// itself never returns an error the caller needs to act on beyond logging.
func (d *Dispatcher) Apply(ctx context.Context, cmd Command) {
	em := d.eng.Emitter()
	switch cmd.Kind {
	case KindOrder:
		em.EmitOrderReceived(cmd.Order.ClientOrderID, cmd.LineNo)
		d.eng.SubmitOrder(ctx, cmd.Order)

	case KindCancel:
		em.EmitCancelReceived(cmd.CancelID, cmd.LineNo)
		d.eng.CancelOrder(ctx, cmd.CancelID)

	case KindQuery:
		em.EmitQueryReceived(cmd.QueryType, cmd.LineNo)
		d.applyQuery(cmd)

	case KindStrategy:
		em.EmitStrategyCommandReceived(cmd.StrategySub, cmd.LineNo)
		d.applyStrategy(cmd)

	case KindSubscribe:
		em.EmitSubscriptionStatus(cmd.SubVenue, cmd.SubSymbol, cmd.SubEventType, true, "")

	case KindUnsubscribe:
		em.EmitSubscriptionStatus(cmd.SubVenue, cmd.SubSymbol, cmd.SubEventType, false, "")
	}
	d.eng.IncrementCommandsProcessed()
}

func (d *Dispatcher) applyQuery(cmd Command) {
	em := d.eng.Emitter()
	switch cmd.QueryType {
	case "ORDER":
		if len(cmd.QueryArgs) != 1 {
			em.EmitError("QUERY ORDER requires exactly one client_order_id")
			return
		}
		st, ok := d.eng.QueryOrder(cmd.QueryArgs[0])
		if !ok {
			em.EmitError("unknown client_order_id " + cmd.QueryArgs[0])
			return
		}
		em.EmitOrderState(st)
	case "ORDERS":
		for _, st := range d.eng.QuerySnapshot() {
			em.EmitOrderState(st)
		}
	default:
		em.EmitError("unknown query type " + cmd.QueryType)
	}
}

func (d *Dispatcher) applyStrategy(cmd Command) {
	em := d.eng.Emitter()
	rt := d.eng.Runtime()

	switch cmd.StrategySub {
	case "LOAD":
		params, subs, err := splitStrategyArgs(cmd.StrategyArgs)
		if err != nil {
			em.EmitError(err.Error())
			return
		}
		if _, err := rt.Load(cmd.StrategyID, cmd.StrategyType, params, subs); err != nil {
			em.EmitError(err.Error())
			return
		}
		em.EmitStrategyEvent("loaded", cmd.StrategyID, map[string]interface{}{"type": cmd.StrategyType})

	case "START", "RESUME":
		if _, err := rt.Resume(cmd.StrategyID); err != nil {
			em.EmitError(err.Error())
			return
		}
		em.EmitStrategyEvent("resumed", cmd.StrategyID, nil)

	case "STOP", "UNLOAD":
		if err := rt.Stop(cmd.StrategyID); err != nil {
			em.EmitError(err.Error())
			return
		}
		tag := "stopped"
		if cmd.StrategySub == "UNLOAD" {
			tag = "unloaded"
		}
		em.EmitStrategyEvent(tag, cmd.StrategyID, nil)

	case "PAUSE":
		if err := rt.Pause(cmd.StrategyID); err != nil {
			em.EmitError(err.Error())
			return
		}
		em.EmitStrategyEvent("paused", cmd.StrategyID, nil)

	case "LIST":
		for _, inst := range rt.List() {
			em.EmitStrategyEvent("list", inst.ID, map[string]interface{}{
				"type": inst.Type, "state": inst.State().String(),
			})
		}
		em.EmitStrategyEvent("status_all", "", map[string]interface{}{"count": len(rt.List())})

	case "STATUS":
		inst, ok := rt.Get(cmd.StrategyID)
		if !ok {
			em.EmitError("unknown strategy instance " + cmd.StrategyID)
			return
		}
		em.EmitStrategyEvent("status", cmd.StrategyID, map[string]interface{}{
			"type": inst.Type, "state": inst.State().String(),
		})

	case "PARAMS":
		inst, ok := rt.Get(cmd.StrategyID)
		if !ok {
			em.EmitError("unknown strategy instance " + cmd.StrategyID)
			return
		}
		detail := make(map[string]interface{}, len(inst.Params))
		for k, v := range inst.Params {
			detail[k] = v
		}
		em.EmitStrategyEvent("params_updated", cmd.StrategyID, detail)

	case "METRICS":
		inst, ok := rt.Get(cmd.StrategyID)
		if !ok {
			em.EmitError("unknown strategy instance " + cmd.StrategyID)
			return
		}
		m := inst.MetricsSnapshot()
		em.EmitStrategyEvent("metrics", cmd.StrategyID, map[string]interface{}{
			"events_processed":  m.EventsProcessed,
			"signals_generated": m.SignalsGenerated,
			"errors":            m.Errors,
			"avg_exec_time_us":  m.AvgExecTimeUs,
		})
	}
}

// splitStrategyArgs pulls the reserved venue/symbol/event keys out of a
// STRATEGY LOAD command's key=value tokens as a single Subscription, and
// parses everything else as a float64 strategy parameter.
func splitStrategyArgs(args map[string]string) (map[string]float64, []strategy.Subscription, error) {
	params := make(map[string]float64, len(args))
	var venue model.Venue
	var symbol model.Symbol
	var eventType string

	for k, v := range args {
		switch k {
		case "venue":
			venue = model.Venue(v)
		case "symbol":
			symbol = model.Symbol(v)
		case "event":
			eventType = v
		default:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, nil, apperrors.New(apperrors.KindParse, apperrors.TagBadParams, "bad param "+k+"="+v)
			}
			params[k] = f
		}
	}

	var subs []strategy.Subscription
	if venue != "" && symbol != "" && eventType != "" {
		subs = append(subs, strategy.NewSubscription(venue, symbol, eventTypeFromString(eventType)))
	}
	return params, subs, nil
}

func eventTypeFromString(s string) model.EventType {
	switch s {
	case "trade":
		return model.EventTrade
	case "bookdelta":
		return model.EventBookDelta
	case "kline":
		return model.EventKline
	default:
		return model.EventBookTop
	}
}
