// Package sim implements the SimExecutor (C6): a deterministic fill
// simulator that matches resting limit orders against incoming MarketEvents
// using price-time priority, and crosses market orders instantly against
// the latest known book top.
package sim

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// FeeConfig names the maker/taker rates applied to each fill.
type FeeConfig struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

// DefaultFees returns the spec's suggested defaults: 2bps maker, 4bps
// taker.
func DefaultFees() FeeConfig {
	return FeeConfig{
		MakerRate: decimal.NewFromFloat(0.0002),
		TakerRate: decimal.NewFromFloat(0.0004),
	}
}

// restingOrder is one resting limit order in the simulated book.
type restingOrder struct {
	cid       string
	side      model.Side
	price     decimal.Decimal
	remaining decimal.Decimal
	tif       model.TIF
	seq       uint64
}

// FillEvent is one simulated execution the Engine applies back to the
// OrderStore.
type FillEvent struct {
	ClientOrderID string
	Qty           decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	IsMaker       bool
}

// SubmitResult reports the outcome of Submit: any immediate fills, whether
// the order now rests in the book, and a rejection reason if it was
// refused outright.
type SubmitResult struct {
	Fills    []FillEvent
	Resting  bool
	Rejected bool
	Reason   string
}

type book struct {
	bids []*restingOrder // descending price
	asks []*restingOrder // ascending price
}

// Executor is the SimExecutor. Not safe across processes; deterministic
// for a single sequence of calls from one goroutine (the engine loop).
type Executor struct {
	mu      sync.Mutex
	fees    FeeConfig
	books   map[model.Symbol]*book
	tops    map[model.Symbol]model.MarketEvent // last known BookTop per symbol
	nextSeq uint64
}

// New creates an Executor with the given fee schedule.
func New(fees FeeConfig) *Executor {
	return &Executor{
		fees:  fees,
		books: make(map[model.Symbol]*book),
		tops:  make(map[model.Symbol]model.MarketEvent),
	}
}

func (e *Executor) bookFor(symbol model.Symbol) *book {
	b, ok := e.books[symbol]
	if !ok {
		b = &book{}
		e.books[symbol] = b
	}
	return b
}

// Submit places req against the current book. For Limit GTC/PostOnly
// orders that don't fully fill immediately, the remainder rests.
func (e *Executor) Submit(req model.OrderRequest) SubmitResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Type == model.Market {
		return e.submitMarketLocked(req)
	}
	return e.submitLimitLocked(req)
}

func (e *Executor) submitMarketLocked(req model.OrderRequest) SubmitResult {
	top, ok := e.tops[req.Symbol]
	if !ok {
		return SubmitResult{Rejected: true, Reason: string(apperrors.TagSimNoBook)}
	}

	var crossPrice decimal.Decimal
	if req.Side == model.Buy {
		crossPrice = top.AskPx
	} else {
		crossPrice = top.BidPx
	}

	fee := crossPrice.Mul(req.Qty).Mul(e.fees.TakerRate)
	return SubmitResult{
		Fills: []FillEvent{{ClientOrderID: req.ClientOrderID, Qty: req.Qty, Price: crossPrice, Fee: fee, IsMaker: false}},
	}
}

func (e *Executor) submitLimitLocked(req model.OrderRequest) SubmitResult {
	top, hasTop := e.tops[req.Symbol]

	immediatelyCrosses := false
	if hasTop {
		if req.Side == model.Buy && !top.AskPx.IsZero() {
			immediatelyCrosses = req.Price.GreaterThanOrEqual(top.AskPx)
		} else if req.Side == model.Sell && !top.BidPx.IsZero() {
			immediatelyCrosses = req.Price.LessThanOrEqual(top.BidPx)
		}
	}

	if req.TIF == model.PostOnly && immediatelyCrosses {
		return SubmitResult{Rejected: true, Reason: "would_cross_post_only"}
	}

	var fills []FillEvent
	remaining := req.Qty

	if immediatelyCrosses {
		fillQty := decimal.Min(remaining, availableLiquidity(top, req.Side))
		if fillQty.IsPositive() {
			price := crossPriceFor(top, req.Side)
			fee := price.Mul(fillQty).Mul(e.fees.TakerRate)
			fills = append(fills, FillEvent{ClientOrderID: req.ClientOrderID, Qty: fillQty, Price: price, Fee: fee, IsMaker: false})
			remaining = remaining.Sub(fillQty)
		}
	}

	if remaining.IsZero() {
		return SubmitResult{Fills: fills}
	}

	switch req.TIF {
	case model.FOK:
		if len(fills) > 0 {
			// partial fill in a single pass is not a full fill: FOK rejects entirely.
			return SubmitResult{Rejected: true, Reason: "fok_not_fully_fillable"}
		}
		return SubmitResult{Rejected: true, Reason: "fok_not_fully_fillable"}
	case model.IOC:
		return SubmitResult{Fills: fills}
	default: // GTC, PostOnly (already known not to cross here)
		e.nextSeq++
		ro := &restingOrder{cid: req.ClientOrderID, side: req.Side, price: req.Price, remaining: remaining, tif: req.TIF, seq: e.nextSeq}
		b := e.bookFor(req.Symbol)
		if req.Side == model.Buy {
			b.bids = append(b.bids, ro)
			sort.SliceStable(b.bids, func(i, j int) bool {
				if !b.bids[i].price.Equal(b.bids[j].price) {
					return b.bids[i].price.GreaterThan(b.bids[j].price)
				}
				return b.bids[i].seq < b.bids[j].seq
			})
		} else {
			b.asks = append(b.asks, ro)
			sort.SliceStable(b.asks, func(i, j int) bool {
				if !b.asks[i].price.Equal(b.asks[j].price) {
					return b.asks[i].price.LessThan(b.asks[j].price)
				}
				return b.asks[i].seq < b.asks[j].seq
			})
		}
		return SubmitResult{Fills: fills, Resting: true}
	}
}

// CancelResting removes a resting order. ok is false if it was not found
// (already filled or never rested).
func (e *Executor) CancelResting(symbol model.Symbol, cid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return false
	}
	for i, ro := range b.bids {
		if ro.cid == cid {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return true
		}
	}
	for i, ro := range b.asks {
		if ro.cid == cid {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return true
		}
	}
	return false
}

// OnMarketEvent updates book-top/last-trade state and matches resting
// orders against it, in price-time priority.
func (e *Executor) OnMarketEvent(evt model.MarketEvent) []FillEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch evt.Type {
	case model.EventBookTop:
		e.tops[evt.Symbol] = evt
		return e.matchBookTopLocked(evt)
	case model.EventTrade:
		return e.matchTradeLocked(evt)
	default:
		return nil
	}
}

func (e *Executor) matchBookTopLocked(evt model.MarketEvent) []FillEvent {
	b, ok := e.books[evt.Symbol]
	if !ok {
		return nil
	}
	var fills []FillEvent

	remainingAsk := evt.AskQty
	for len(b.bids) > 0 {
		top := b.bids[0]
		if !evt.AskPx.IsZero() && top.price.GreaterThanOrEqual(evt.AskPx) && remainingAsk.IsPositive() {
			fillQty := decimal.Min(top.remaining, remainingAsk)
			fills = append(fills, e.applyFill(top, evt.AskPx, fillQty, true))
			remainingAsk = remainingAsk.Sub(fillQty)
			top.remaining = top.remaining.Sub(fillQty)
			if top.remaining.IsZero() {
				b.bids = b.bids[1:]
				continue
			}
		}
		break
	}

	remainingBid := evt.BidQty
	for len(b.asks) > 0 {
		top := b.asks[0]
		if !evt.BidPx.IsZero() && top.price.LessThanOrEqual(evt.BidPx) && remainingBid.IsPositive() {
			fillQty := decimal.Min(top.remaining, remainingBid)
			fills = append(fills, e.applyFill(top, evt.BidPx, fillQty, true))
			remainingBid = remainingBid.Sub(fillQty)
			top.remaining = top.remaining.Sub(fillQty)
			if top.remaining.IsZero() {
				b.asks = b.asks[1:]
				continue
			}
		}
		break
	}

	return fills
}

func (e *Executor) matchTradeLocked(evt model.MarketEvent) []FillEvent {
	b, ok := e.books[evt.Symbol]
	if !ok {
		return nil
	}
	var fills []FillEvent
	available := evt.Qty

	if !evt.IsBuyerMaker {
		// buyer is taker: an aggressive buy lifts resting asks at or below trade price
		for len(b.asks) > 0 && available.IsPositive() {
			top := b.asks[0]
			if top.price.GreaterThan(evt.Price) {
				break
			}
			fillQty := decimal.Min(top.remaining, available)
			fills = append(fills, e.applyFill(top, evt.Price, fillQty, true))
			available = available.Sub(fillQty)
			top.remaining = top.remaining.Sub(fillQty)
			if top.remaining.IsZero() {
				b.asks = b.asks[1:]
			} else {
				break
			}
		}
	} else {
		// buyer is maker: an aggressive sell hits resting bids at or above trade price
		for len(b.bids) > 0 && available.IsPositive() {
			top := b.bids[0]
			if top.price.LessThan(evt.Price) {
				break
			}
			fillQty := decimal.Min(top.remaining, available)
			fills = append(fills, e.applyFill(top, evt.Price, fillQty, true))
			available = available.Sub(fillQty)
			top.remaining = top.remaining.Sub(fillQty)
			if top.remaining.IsZero() {
				b.bids = b.bids[1:]
			} else {
				break
			}
		}
	}
	return fills
}

func (e *Executor) applyFill(ro *restingOrder, price, qty decimal.Decimal, isMaker bool) FillEvent {
	rate := e.fees.TakerRate
	if isMaker {
		rate = e.fees.MakerRate
	}
	fee := price.Mul(qty).Mul(rate)
	return FillEvent{ClientOrderID: ro.cid, Qty: qty, Price: price, Fee: fee, IsMaker: isMaker}
}

func availableLiquidity(top model.MarketEvent, side model.Side) decimal.Decimal {
	if side == model.Buy {
		return top.AskQty
	}
	return top.BidQty
}

func crossPriceFor(top model.MarketEvent, side model.Side) decimal.Decimal {
	if side == model.Buy {
		return top.AskPx
	}
	return top.BidPx
}
