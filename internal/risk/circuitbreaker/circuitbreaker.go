// Package circuitbreaker implements a consecutive-loss / drawdown trip that
// composes with, but does not replace, RiskEngine's kill switch: the kill
// switch is a hard config-driven gate, the breaker is a self-tripping
// safety net keyed on realized trade outcomes.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/telemetry"
)

// State is the breaker's open/closed status.
type State int

const (
	Closed State = iota
	Open
)

// Config bounds when the breaker trips.
type Config struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    decimal.Decimal
	CooldownPeriod       time.Duration
}

// Breaker is one named circuit breaker instance; the engine keeps one per
// symbol plus optionally one "global" instance.
type Breaker struct {
	mu                sync.Mutex
	name              string
	state             State
	cfg               Config
	consecutiveLosses int
	totalPnL          decimal.Decimal
	lastTripped       time.Time
}

// New creates a closed Breaker named for metrics/logging purposes.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: Closed}
}

// RecordTrade feeds one realized trade PnL into the breaker's running
// consecutive-loss and drawdown counters, tripping it if a threshold is
// crossed.
func (b *Breaker) RecordTrade(pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pnl.IsNegative() {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}
	b.totalPnL = b.totalPnL.Add(pnl)
	b.checkThresholdsLocked()
}

func (b *Breaker) checkThresholdsLocked() {
	if b.state == Open {
		return
	}
	if b.cfg.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		b.tripLocked()
		return
	}
	if !b.cfg.MaxDrawdownAmount.IsZero() && b.totalPnL.LessThan(b.cfg.MaxDrawdownAmount.Neg()) {
		b.tripLocked()
	}
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.lastTripped = time.Now()
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(b.name, true)
}

// IsTripped reports whether the breaker currently blocks submits. A
// configured CooldownPeriod auto-resets the breaker once elapsed.
func (b *Breaker) IsTripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return false
	}
	if b.cfg.CooldownPeriod > 0 && time.Since(b.lastTripped) > b.cfg.CooldownPeriod {
		b.state = Closed
		b.consecutiveLosses = 0
		b.totalPnL = decimal.Zero
		telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(b.name, false)
		return false
	}
	return true
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveLosses = 0
	b.totalPnL = decimal.Zero
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(b.name, false)
}

// Trip manually opens the breaker, e.g. from an operator command.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked()
}
