package engine

import (
	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// Emitter is the EventEmitter surface (C12) the Engine and CommandReader
// push every lifecycle notification through. Implementations must not
// block; the NDJSON writer flushes each line to its io.Writer as it is
// emitted, so it is only as fast as that writer. The method set mirrors
// the type tags enumerated in spec §6.2.
type Emitter interface {
	// Market data mirror.
	EmitMarket(evt model.MarketEvent)

	// Command-stream lifecycle mirror.
	EmitOrderReceived(clientOrderID string, lineNo int)
	EmitCancelReceived(clientOrderID string, lineNo int)
	EmitQueryReceived(queryType string, lineNo int)
	EmitStrategyCommandReceived(subcommand string, lineNo int)

	// Order/fill state.
	EmitOrderUpdate(st model.OrderState)
	EmitOrderState(st model.OrderState)
	EmitFill(f model.Fill)

	// Account / subscription status.
	EmitAccount(balances []model.AccountBalance)
	EmitSubscriptionStatus(venue model.Venue, symbol model.Symbol, eventType string, active bool, reason string)

	// Strategy lifecycle; tag is one of the strategy_* suffixes from §6.2
	// (loaded, started, stopped, paused, resumed, unloaded, list, status,
	// status_all, params_updated, metrics, metrics_summary) and detail
	// carries the tag-specific payload fields.
	EmitStrategyEvent(tag string, instanceID string, detail map[string]interface{})

	// Engine lifecycle.
	EmitEngineStarted(version string)
	EmitEngineStopped(commandsProcessed int64)
	EmitError(message string)

	// Risk / reconcile signals already wired into the dispatch loop.
	EmitRiskTriggered(tag apperrors.Tag, symbol, detail string)
	EmitKillSwitch(reason string)
	EmitReconcileRequired(clientOrderID, reason string)
}

// NopEmitter discards every event. Used by tests and by callers that only
// want the Engine's side effects on OrderStore/RiskEngine, not the feed.
type NopEmitter struct{}

func (NopEmitter) EmitMarket(model.MarketEvent) {}

func (NopEmitter) EmitOrderReceived(string, int)          {}
func (NopEmitter) EmitCancelReceived(string, int)         {}
func (NopEmitter) EmitQueryReceived(string, int)          {}
func (NopEmitter) EmitStrategyCommandReceived(string, int) {}

func (NopEmitter) EmitOrderUpdate(model.OrderState) {}
func (NopEmitter) EmitOrderState(model.OrderState)  {}
func (NopEmitter) EmitFill(model.Fill)              {}

func (NopEmitter) EmitAccount([]model.AccountBalance) {}
func (NopEmitter) EmitSubscriptionStatus(model.Venue, model.Symbol, string, bool, string) {}

func (NopEmitter) EmitStrategyEvent(string, string, map[string]interface{}) {}

func (NopEmitter) EmitEngineStarted(string)    {}
func (NopEmitter) EmitEngineStopped(int64)     {}
func (NopEmitter) EmitError(string)            {}

func (NopEmitter) EmitRiskTriggered(apperrors.Tag, string, string) {}
func (NopEmitter) EmitKillSwitch(string)                           {}
func (NopEmitter) EmitReconcileRequired(string, string)            {}
