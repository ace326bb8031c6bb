package risk

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
	"tradecore/internal/telemetry"
)

// Notifier receives risk-state-change events the Engine forwards to the
// EventEmitter. Both methods must not block.
type Notifier interface {
	NotifyRiskTriggered(tag apperrors.Tag, symbol, detail string)
	NotifyKillSwitchEngaged(reason string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyRiskTriggered(apperrors.Tag, string, string) {}
func (noopNotifier) NotifyKillSwitchEngaged(string)                   {}

// symbolState is the mutable per-symbol risk accounting the pre-trade
// checks and post-fill update read and write.
type symbolState struct {
	netQty        decimal.Decimal
	avgEntryPrice decimal.Decimal
	realizedPnL   decimal.Decimal
	markPrice     decimal.Decimal
	openOrders    int
}

// Engine is the RiskEngine. One instance guards one account across all
// symbols traded in a session.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	killSwitch bool

	startEquity decimal.Decimal
	symbols     map[string]*symbolState
	balances    map[string]model.AccountBalance

	notifier Notifier
	logger   telemetry.Logger
}

// New creates a RiskEngine with the given config and start-of-day equity
// (used as the daily_loss_limit denominator).
func New(cfg Config, startEquity decimal.Decimal, notifier Notifier, logger telemetry.Logger) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Engine{
		cfg:         cfg,
		killSwitch:  cfg.KillSwitchEnabled,
		startEquity: startEquity,
		symbols:     make(map[string]*symbolState),
		balances:    make(map[string]model.AccountBalance),
		notifier:    notifier,
		logger:      logger,
	}
}

func (e *Engine) stateFor(symbol string) *symbolState {
	st, ok := e.symbols[symbol]
	if !ok {
		st = &symbolState{netQty: decimal.Zero, avgEntryPrice: decimal.Zero, realizedPnL: decimal.Zero, markPrice: decimal.Zero}
		e.symbols[symbol] = st
	}
	return st
}

// SetBalance seeds or updates the free/locked balance for an asset.
func (e *Engine) SetBalance(bal model.AccountBalance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[bal.Asset] = bal
}

// Mark updates the mark price used for unrealized PnL and notional checks
// on a symbol.
func (e *Engine) Mark(symbol string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateFor(symbol).markPrice = price
}

// KillSwitchEngaged reports whether submits are currently being rejected.
func (e *Engine) KillSwitchEngaged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

// TripKillSwitch engages the kill switch directly, e.g. from an operator
// command or a health check outside the pre-trade path.
func (e *Engine) TripKillSwitch(reason string) {
	e.mu.Lock()
	e.killSwitch = true
	e.mu.Unlock()
	e.notifier.NotifyKillSwitchEngaged(reason)
}

// ResetKillSwitch disengages the kill switch.
func (e *Engine) ResetKillSwitch() {
	e.mu.Lock()
	e.killSwitch = false
	e.mu.Unlock()
}

// balanceAsset returns the asset a symbol's hold is locked against. Spot
// quote-asset margining is assumed, and the asset is derived from the
// symbol's trailing characters: "USDT" for USDT-quoted pairs, otherwise
// the whole symbol.
func balanceAsset(symbol string) string {
	// Conservative default: last 4 chars for USDT-quoted pairs, else the
	// whole symbol. This core never interprets the wire format of a
	// symbol beyond this cosmetic split.
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return "USDT"
	}
	return symbol
}

// CheckOrder runs the six ordered pre-trade checks from spec §4.4. The
// first failing check short-circuits; risk never partially admits an
// order. openOrders is the caller-supplied current open-order count
// (typically oms.Store.OpenCount()).
func (e *Engine) CheckOrder(req model.OrderRequest, openOrders int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Kill switch.
	if e.killSwitch {
		e.reject(apperrors.TagRiskKillSwitch, string(req.Symbol), "kill switch engaged")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskKillSwitch, "kill switch engaged")
	}

	// 2. Open orders count.
	if e.cfg.MaxOpenOrders > 0 && openOrders >= e.cfg.MaxOpenOrders {
		e.reject(apperrors.TagRiskTooManyOrder, string(req.Symbol), "max_open_orders reached")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskTooManyOrder, "too many open orders")
	}

	st := e.stateFor(string(req.Symbol))
	limits := e.cfg.limitsFor(string(req.Symbol))
	signedQty := req.Qty
	if req.Side == model.Sell {
		signedQty = signedQty.Neg()
	}
	projectedQty := st.netQty.Add(signedQty)

	// 3. Position size.
	if !limits.MaxPositionSize.IsZero() && projectedQty.Abs().GreaterThan(limits.MaxPositionSize) {
		e.reject(apperrors.TagRiskPosition, string(req.Symbol), "max_position_size exceeded")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskPosition, "projected position exceeds max_position_size")
	}

	// 4. Notional.
	refPrice := req.Price
	if req.Type == model.Market {
		refPrice = st.markPrice
	}
	projectedNotional := projectedQty.Abs().Mul(refPrice)
	if !limits.MaxNotional.IsZero() && projectedNotional.GreaterThan(limits.MaxNotional) {
		e.reject(apperrors.TagRiskNotional, string(req.Symbol), "max_notional exceeded")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskNotional, "projected notional exceeds max_notional")
	}

	// 5. Daily loss.
	if e.dailyLossBreachedLocked() {
		e.killSwitch = true
		e.reject(apperrors.TagRiskDailyLoss, string(req.Symbol), "daily_loss_limit breached")
		e.notifier.NotifyKillSwitchEngaged("daily_loss_limit breached")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskDailyLoss, "daily loss limit breached")
	}

	// 6. Balance sufficiency.
	asset := balanceAsset(string(req.Symbol))
	required := req.Qty.Mul(refPrice)
	bal, ok := e.balances[asset]
	if ok && bal.Free.LessThan(required) {
		e.reject(apperrors.TagRiskInsufficient, string(req.Symbol), "insufficient free balance")
		return apperrors.New(apperrors.KindRisk, apperrors.TagRiskInsufficient, "insufficient free balance to lock required funds")
	}

	return nil
}

// ApplyFill updates position, realized PnL, and re-evaluates the daily
// loss / kill switch trip after a fill is applied to the OrderStore.
func (e *Engine) ApplyFill(symbol string, side model.Side, qty, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(symbol)
	signedQty := qty
	if side == model.Sell {
		signedQty = signedQty.Neg()
	}

	switch {
	case st.netQty.IsZero() || sameSign(st.netQty, signedQty):
		// opening or adding to a position: roll the average entry price.
		newQty := st.netQty.Add(signedQty)
		if newQty.IsZero() {
			st.avgEntryPrice = decimal.Zero
		} else {
			totalNotional := st.avgEntryPrice.Mul(st.netQty.Abs()).Add(price.Mul(signedQty.Abs()))
			st.avgEntryPrice = totalNotional.Div(newQty.Abs())
		}
		st.netQty = newQty
	default:
		// closing or flipping: realize PnL on the closed portion.
		closingQty := decimal.Min(signedQty.Abs(), st.netQty.Abs())
		var pnl decimal.Decimal
		if st.netQty.IsPositive() {
			pnl = price.Sub(st.avgEntryPrice).Mul(closingQty)
		} else {
			pnl = st.avgEntryPrice.Sub(price).Mul(closingQty)
		}
		st.realizedPnL = st.realizedPnL.Add(pnl)

		remaining := signedQty.Abs().Sub(closingQty)
		newQty := st.netQty.Add(signedQty)
		st.netQty = newQty
		if remaining.IsPositive() {
			// flipped through zero: the remainder opens a new position at price.
			st.avgEntryPrice = price
		} else if newQty.IsZero() {
			st.avgEntryPrice = decimal.Zero
		}
	}

	if e.dailyLossBreachedLocked() && !e.killSwitch {
		e.killSwitch = true
		e.reject(apperrors.TagRiskDailyLoss, symbol, "daily_loss_limit breached on post-fill update")
		e.notifier.NotifyKillSwitchEngaged("daily_loss_limit breached")
	}
}

func sameSign(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsPositive() == b.IsPositive()
}

// dailyLossBreachedLocked must be called with mu held. It sums realized PnL
// (and unrealized at mark, where known) across symbols and compares against
// -daily_loss_limit * start_equity.
func (e *Engine) dailyLossBreachedLocked() bool {
	if e.startEquity.IsZero() || e.cfg.DailyLossLimit.IsZero() {
		return false
	}
	total := decimal.Zero
	for _, st := range e.symbols {
		total = total.Add(st.realizedPnL)
		if !st.markPrice.IsZero() && !st.netQty.IsZero() {
			unrealized := st.markPrice.Sub(st.avgEntryPrice).Mul(st.netQty)
			total = total.Add(unrealized)
		}
	}
	threshold := e.cfg.DailyLossLimit.Mul(e.startEquity).Neg()
	return total.LessThanOrEqual(threshold)
}

func (e *Engine) reject(tag apperrors.Tag, symbol, detail string) {
	telemetry.GetGlobalMetrics().RiskRejections.Add(context.Background(), 1)
	e.logger.WithField("symbol", symbol).WithField("tag", string(tag)).Warn("risk rejection: " + detail)
	e.notifier.NotifyRiskTriggered(tag, symbol, detail)
}

// ForceSyncPosition overwrites the locally tracked net quantity for symbol,
// used by the live reconciler to auto-correct small venue/local divergence.
// Average entry price and realized PnL are left untouched.
func (e *Engine) ForceSyncPosition(symbol string, netQty decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stateFor(symbol)
	st.netQty = netQty
}

// Position returns a snapshot of the current position for a symbol.
func (e *Engine) Position(symbol string) model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stateFor(symbol)
	unrealized := decimal.Zero
	if !st.markPrice.IsZero() && !st.netQty.IsZero() {
		unrealized = st.markPrice.Sub(st.avgEntryPrice).Mul(st.netQty)
	}
	return model.Position{
		Symbol:              model.Symbol(symbol),
		NetQty:              st.netQty,
		AvgEntryPrice:       st.avgEntryPrice,
		RealizedPnL:         st.realizedPnL,
		UnrealizedPnLAtMark: unrealized,
	}
}
