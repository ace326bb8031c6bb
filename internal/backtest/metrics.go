package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"tradecore/internal/engine"
	"tradecore/internal/model"
	"tradecore/internal/oms"
)

// EquitySample is one point on the equity curve.
type EquitySample struct {
	TsNs   int64
	Equity decimal.Decimal
}

// closedTrade is one realized round-trip (a fill that closed all or part of
// an existing position), for win_rate/profit_factor.
type closedTrade struct {
	PnL decimal.Decimal
}

type symbolPosition struct {
	netQty        decimal.Decimal
	avgEntryPrice decimal.Decimal
	realizedPnL   decimal.Decimal
	markPrice     decimal.Decimal
}

// metricsTracker mirrors risk.Engine's average-cost position accounting
// (see internal/risk/engine.go ApplyFill) independently of the live
// RiskEngine, so the harness's equity curve reflects exactly the fills the
// strategy produced without reaching into RiskEngine's private state. One
// difference: a closing fill's fee is subtracted from that trade's realized
// PnL here, which risk.Engine does not do.
type metricsTracker struct {
	initialBalance   decimal.Decimal
	sampleIntervalNs int64

	positions    map[model.Symbol]*symbolPosition
	equityCurve  []EquitySample
	closedTrades []closedTrade
	totalFills   int
	lastSampleNs int64
}

func newMetricsTracker(initialBalance decimal.Decimal, sampleIntervalNs int64) *metricsTracker {
	return &metricsTracker{
		initialBalance:   initialBalance,
		sampleIntervalNs: sampleIntervalNs,
		positions:        make(map[model.Symbol]*symbolPosition),
	}
}

func (t *metricsTracker) positionFor(symbol model.Symbol) *symbolPosition {
	p, ok := t.positions[symbol]
	if !ok {
		p = &symbolPosition{}
		t.positions[symbol] = p
	}
	return p
}

func markPriceOf(evt model.MarketEvent) (decimal.Decimal, bool) {
	switch evt.Type {
	case model.EventTrade:
		return evt.Price, true
	case model.EventBookTop:
		if evt.BidPx.IsZero() && evt.AskPx.IsZero() {
			return decimal.Zero, false
		}
		return evt.BidPx.Add(evt.AskPx).Div(decimal.NewFromInt(2)), true
	case model.EventKline:
		return evt.Close, true
	default:
		return decimal.Zero, false
	}
}

func (t *metricsTracker) onMarket(evt model.MarketEvent) {
	if px, ok := markPriceOf(evt); ok {
		t.positionFor(evt.Symbol).markPrice = px
	}
	if t.sampleIntervalNs <= 0 || evt.TsNs-t.lastSampleNs >= t.sampleIntervalNs {
		t.sample(evt.TsNs)
	}
}

func (t *metricsTracker) onFill(f model.Fill, side model.Side) {
	t.totalFills++
	p := t.positionFor(f.Symbol)
	p.markPrice = f.Price

	signedQty := f.Qty
	if side == model.Sell {
		signedQty = signedQty.Neg()
	}

	switch {
	case p.netQty.IsZero() || sameSign(p.netQty, signedQty):
		newQty := p.netQty.Add(signedQty)
		if newQty.IsZero() {
			p.avgEntryPrice = decimal.Zero
		} else {
			totalNotional := p.avgEntryPrice.Mul(p.netQty.Abs()).Add(f.Price.Mul(signedQty.Abs()))
			p.avgEntryPrice = totalNotional.Div(newQty.Abs())
		}
		p.netQty = newQty
	default:
		closingQty := decimal.Min(signedQty.Abs(), p.netQty.Abs())
		var pnl decimal.Decimal
		if p.netQty.IsPositive() {
			pnl = f.Price.Sub(p.avgEntryPrice).Mul(closingQty)
		} else {
			pnl = p.avgEntryPrice.Sub(f.Price).Mul(closingQty)
		}
		pnl = pnl.Sub(f.Fee)
		p.realizedPnL = p.realizedPnL.Add(pnl)
		t.closedTrades = append(t.closedTrades, closedTrade{PnL: pnl})

		remaining := signedQty.Abs().Sub(closingQty)
		newQty := p.netQty.Add(signedQty)
		p.netQty = newQty
		if remaining.IsPositive() {
			p.avgEntryPrice = f.Price
		} else if newQty.IsZero() {
			p.avgEntryPrice = decimal.Zero
		}
	}

	t.sample(f.TsNs)
}

func sameSign(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsPositive() == b.IsPositive()
}

func (t *metricsTracker) equity() decimal.Decimal {
	eq := t.initialBalance
	for _, p := range t.positions {
		eq = eq.Add(p.realizedPnL)
		if !p.netQty.IsZero() && !p.markPrice.IsZero() {
			unrealized := p.markPrice.Sub(p.avgEntryPrice).Mul(p.netQty)
			eq = eq.Add(unrealized)
		}
	}
	return eq
}

func (t *metricsTracker) sample(tsNs int64) {
	t.equityCurve = append(t.equityCurve, EquitySample{TsNs: tsNs, Equity: t.equity()})
	t.lastSampleNs = tsNs
}

// Result is the Harness's computed metrics (spec §4.9).
type Result struct {
	TotalReturn  decimal.Decimal
	MaxDrawdown  decimal.Decimal
	SharpeRatio  float64
	WinRate      decimal.Decimal
	ProfitFactor float64
	TotalFills   int
	ClosedTrades int
	EquityCurve  []EquitySample
}

func (t *metricsTracker) result(periodsPerYear float64) Result {
	finalEquity := t.initialBalance
	if len(t.equityCurve) > 0 {
		finalEquity = t.equityCurve[len(t.equityCurve)-1].Equity
	}

	var totalReturn decimal.Decimal
	if !t.initialBalance.IsZero() {
		totalReturn = finalEquity.Sub(t.initialBalance).Div(t.initialBalance)
	}

	return Result{
		TotalReturn:  totalReturn,
		MaxDrawdown:  t.maxDrawdown(),
		SharpeRatio:  t.sharpeRatio(periodsPerYear),
		WinRate:      t.winRate(),
		ProfitFactor: t.profitFactor(),
		TotalFills:   t.totalFills,
		ClosedTrades: len(t.closedTrades),
		EquityCurve:  t.equityCurve,
	}
}

func (t *metricsTracker) maxDrawdown() decimal.Decimal {
	if len(t.equityCurve) == 0 {
		return decimal.Zero
	}
	peak := t.equityCurve[0].Equity
	maxDD := decimal.Zero
	for _, s := range t.equityCurve {
		if s.Equity.GreaterThan(peak) {
			peak = s.Equity
		}
		if peak.IsZero() {
			continue
		}
		dd := peak.Sub(s.Equity).Div(peak)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

func (t *metricsTracker) sharpeRatio(periodsPerYear float64) float64 {
	if len(t.equityCurve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(t.equityCurve)-1)
	for i := 1; i < len(t.equityCurve); i++ {
		prev := t.equityCurve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		r, _ := t.equityCurve[i].Equity.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}

	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return (mean / stdev) * math.Sqrt(periodsPerYear)
}

func (t *metricsTracker) winRate() decimal.Decimal {
	if len(t.closedTrades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, ct := range t.closedTrades {
		if ct.PnL.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(t.closedTrades))))
}

func (t *metricsTracker) profitFactor() float64 {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, ct := range t.closedTrades {
		if ct.PnL.IsPositive() {
			grossProfit = grossProfit.Add(ct.PnL)
		} else if ct.PnL.IsNegative() {
			grossLoss = grossLoss.Add(ct.PnL.Abs())
		}
	}
	if grossLoss.IsZero() {
		if grossProfit.IsZero() {
			return 0
		}
		return math.Inf(1)
	}
	f, _ := grossProfit.Div(grossLoss).Float64()
	return f
}

// trackingEmitter decorates a real Emitter, intercepting EmitMarket/EmitFill
// to feed the metrics tracker without altering what the caller sees on the
// event stream.
type trackingEmitter struct {
	engine.Emitter
	tracker *metricsTracker
	store   *oms.Store
}

func (e *trackingEmitter) EmitMarket(evt model.MarketEvent) {
	e.tracker.onMarket(evt)
	e.Emitter.EmitMarket(evt)
}

func (e *trackingEmitter) EmitFill(f model.Fill) {
	side := model.Buy
	if os, ok := e.store.Query(f.ClientOrderID); ok {
		side = os.Side
	}
	e.tracker.onFill(f, side)
	e.Emitter.EmitFill(f)
}
