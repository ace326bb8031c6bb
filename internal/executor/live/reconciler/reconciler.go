// Package reconciler implements the periodic venue-vs-local reconciliation
// loop for live mode: it compares the OrderStore's and RiskEngine's view of
// open orders and positions against the venue's, auto-correcting small
// divergences and halting trading on large ones.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/executor/live"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/risk/circuitbreaker"
	"tradecore/internal/telemetry"
)

// DivergenceThresholdPct is the position-divergence percentage below which a
// mismatch is auto-corrected rather than halting trading.
const DivergenceThresholdPct = 5

// Result is the outcome of one reconciliation pass.
type Result struct {
	RanAtNs           int64
	GhostLocalOrders  []string // cids believed open locally but absent at the venue
	GhostVenueOrders  []string // venue_order_ids present at the venue but unknown locally
	PositionMatched   bool
	LocalPosition     decimal.Decimal
	VenuePosition     decimal.Decimal
	DivergencePct     decimal.Decimal
	AutoCorrected     bool
	Halted            bool
}

// PositionReader exposes the local net position for the reconciler, without
// requiring it to depend on the full risk.Engine surface. Symbols are plain
// strings here to match risk.Engine's internal keying.
type PositionReader interface {
	Position(symbol string) model.Position
	ForceSyncPosition(symbol string, netQty decimal.Decimal)
}

// Reconciler runs periodic passes comparing the OrderStore/RiskEngine state
// against the venue's.
type Reconciler struct {
	adapter  live.VenueAdapter
	store    *oms.Store
	risk     PositionReader
	breaker  *circuitbreaker.Breaker
	symbol   model.Symbol
	interval time.Duration
	logger   telemetry.Logger

	mu         sync.Mutex
	lastResult Result
}

// New creates a Reconciler for one symbol. breaker may be nil if no
// circuit-breaker escalation is wired.
func New(adapter live.VenueAdapter, store *oms.Store, risk PositionReader, breaker *circuitbreaker.Breaker, symbol model.Symbol, interval time.Duration, logger telemetry.Logger) *Reconciler {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Reconciler{
		adapter:  adapter,
		store:    store,
		risk:     risk,
		breaker:  breaker,
		symbol:   symbol,
		interval: interval,
		logger:   logger.WithField("component", "reconciler"),
	}
}

// Run blocks, running a reconciliation pass every interval, until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Pass(ctx, time.Now().UnixNano())
		}
	}
}

// Pass performs a single reconciliation pass, safe to call directly (e.g.
// from a manual trigger or from tests) in addition to the Run loop.
func (r *Reconciler) Pass(ctx context.Context, nowNs int64) Result {
	res := Result{RanAtNs: nowNs, PositionMatched: true}

	venueOrders, err := r.adapter.OpenOrders(ctx, r.symbol)
	if err != nil {
		r.logger.Warn("reconciliation pass: open-orders lookup failed", "error", err.Error())
		return res
	}
	res.GhostLocalOrders, res.GhostVenueOrders = r.reconcileOrders(venueOrders)

	venuePos, err := r.adapter.PositionSnapshot(ctx, r.symbol)
	if err != nil {
		r.logger.Warn("reconciliation pass: position lookup failed", "error", err.Error())
		r.saveResult(res)
		return res
	}
	r.reconcilePosition(&res, venuePos)

	r.saveResult(res)
	return res
}

func (r *Reconciler) reconcileOrders(venueOrders []live.UserStreamUpdate) (ghostLocal, ghostVenue []string) {
	venueByVenueID := make(map[string]live.UserStreamUpdate, len(venueOrders))
	for _, vo := range venueOrders {
		venueByVenueID[vo.VenueOrderID] = vo
	}

	for _, st := range r.store.Snapshot() {
		if st.Status.IsTerminal() || st.VenueOrderID == "" {
			continue
		}
		if _, ok := venueByVenueID[st.VenueOrderID]; !ok {
			r.logger.Warn("order missing at venue, marking expired locally",
				"client_order_id", st.ClientOrderID, "venue_order_id", st.VenueOrderID)
			_ = r.store.OnExpire(st.ClientOrderID, 0)
			ghostLocal = append(ghostLocal, st.ClientOrderID)
		}
	}

	localByVenueID := make(map[string]bool)
	for _, st := range r.store.Snapshot() {
		if st.VenueOrderID != "" {
			localByVenueID[st.VenueOrderID] = true
		}
	}
	for _, vo := range venueOrders {
		if !localByVenueID[vo.VenueOrderID] {
			r.logger.Warn("unknown order at venue with no local record", "venue_order_id", vo.VenueOrderID)
			ghostVenue = append(ghostVenue, vo.VenueOrderID)
		}
	}
	return ghostLocal, ghostVenue
}

func (r *Reconciler) reconcilePosition(res *Result, venuePos live.VenuePosition) {
	local := r.risk.Position(string(r.symbol))
	res.LocalPosition = local.NetQty
	res.VenuePosition = venuePos.NetQty

	if local.NetQty.Equal(venuePos.NetQty) {
		res.PositionMatched = true
		return
	}
	res.PositionMatched = false

	divergence := venuePos.NetQty.Sub(local.NetQty)
	denominator := venuePos.NetQty.Abs()
	if denominator.IsZero() {
		denominator = decimal.NewFromFloat(0.0001)
	}
	res.DivergencePct = divergence.Div(denominator).Mul(decimal.NewFromInt(100)).Abs()

	if res.DivergencePct.LessThan(decimal.NewFromInt(DivergenceThresholdPct)) {
		r.logger.Info("auto-correcting small position divergence", "divergence_pct", res.DivergencePct.String())
		r.risk.ForceSyncPosition(string(r.symbol), venuePos.NetQty)
		res.AutoCorrected = true
		return
	}

	r.logger.Error("large position divergence detected, halting trading", "divergence_pct", res.DivergencePct.String())
	if r.breaker != nil {
		r.breaker.Trip()
	}
	res.Halted = true
}

func (r *Reconciler) saveResult(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastResult = res
}

// LastResult returns the most recent completed pass's result.
func (r *Reconciler) LastResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}
