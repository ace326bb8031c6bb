// Package strategy implements the StrategyRuntime (C5): loading strategies
// by type name, routing subscribed market events to them, collecting the
// Actions they emit, and isolating a misbehaving strategy at the runtime
// boundary instead of letting it take the engine down.
package strategy

import (
	"tradecore/internal/model"
)

// Strategy is the capability interface every strategy implementation
// satisfies. Implementations must not block; long-running work yields by
// setting a timer instead.
type Strategy interface {
	OnInit(params map[string]float64) error
	OnMarketEvent(evt model.MarketEvent) []model.Action
	OnOrderUpdate(state model.OrderState)
	OnFill(fill model.Fill)
	OnTimer(name string, atNs int64)
	OnStop()
}

// ParamRange bounds one named parameter a strategy accepts.
type ParamRange struct {
	Min, Max float64
}

// Factory builds a new Strategy instance and exposes the parameter ranges
// it validates against.
type Factory struct {
	TypeName string
	Ranges   map[string]ParamRange
	New      func() Strategy
}

// ValidateParams checks every param in ranges against its bound, and
// rejects unknown keys that aren't declared in ranges.
func (f Factory) ValidateParams(params map[string]float64) error {
	for k, v := range params {
		r, ok := f.Ranges[k]
		if !ok {
			return &ParamError{Param: k, Reason: "unknown parameter for strategy " + f.TypeName}
		}
		if v < r.Min || v > r.Max {
			return &ParamError{Param: k, Reason: "out of range"}
		}
	}
	return nil
}

// ParamError reports a rejected strategy parameter.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string { return "bad_params: " + e.Param + ": " + e.Reason }
