// Package risk implements the pre-trade gate and post-fill accounting
// described in spec §4.4: an ordered sequence of checks that either admits
// an OrderRequest or rejects it with a tagged reason, plus the running
// position/PnL state the checks read from.
package risk

import (
	"github.com/shopspring/decimal"
)

// SymbolLimits bounds risk per trading symbol.
type SymbolLimits struct {
	MaxPositionSize decimal.Decimal
	MaxNotional     decimal.Decimal
}

// Config is the static risk configuration for one engine run.
type Config struct {
	Limits                  map[string]SymbolLimits // keyed by symbol
	DailyLossLimit          decimal.Decimal         // fractional, against start-of-day equity
	MaxOpenOrders           int
	KillSwitchEnabled       bool
	RequireConfirmationAbove decimal.Decimal // informational only; no effect at this layer
}

// DefaultConfig returns a permissive configuration suitable as a starting
// point for tests and CLI defaults.
func DefaultConfig() Config {
	return Config{
		Limits:            make(map[string]SymbolLimits),
		DailyLossLimit:    decimal.NewFromFloat(0.1),
		MaxOpenOrders:     100,
		KillSwitchEnabled: false,
	}
}

func (c Config) limitsFor(symbol string) SymbolLimits {
	if l, ok := c.Limits[symbol]; ok {
		return l
	}
	return SymbolLimits{}
}
