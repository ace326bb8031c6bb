// Package sim provides a documentation-only VenueAdapter: it satisfies
// live.VenueAdapter by accepting and filling every order instantly (a
// market order at the price the caller last reported via SetLastPrice, a
// limit order at its own price), with no network I/O at all. It exists so cmd/engine can demonstrate the full live-mode
// wiring (LiveExecutor, rate limiting, idempotency, reconciliation) without
// requiring a real exchange account; it is not a substitute for
// SimExecutor's backtest fill model (internal/executor/sim), which is what
// BacktestHarness actually drives.
package sim

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/executor/live"
	"tradecore/internal/model"
)

// Adapter is the loopback VenueAdapter.
type Adapter struct {
	mu         sync.Mutex
	lastPrice  map[model.Symbol]decimal.Decimal
	positions  map[model.Symbol]decimal.Decimal
	userStream chan live.UserStreamUpdate
}

// New builds a loopback Adapter.
func New() *Adapter {
	return &Adapter{
		lastPrice:  make(map[model.Symbol]decimal.Decimal),
		positions:  make(map[model.Symbol]decimal.Decimal),
		userStream: make(chan live.UserStreamUpdate, 256),
	}
}

// SetLastPrice lets the caller (e.g. a market-data feed the adapter isn't
// itself subscribed to) update the fill price Place uses.
func (a *Adapter) SetLastPrice(symbol model.Symbol, px decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastPrice[symbol] = px
}

func (a *Adapter) Place(ctx context.Context, req model.OrderRequest) live.PlaceResult {
	venueOrderID := uuid.NewString()
	a.mu.Lock()
	px := req.Price
	if req.Type == model.Market {
		if last, ok := a.lastPrice[req.Symbol]; ok {
			px = last
		}
	}
	signed := req.Qty
	if req.Side == model.Sell {
		signed = signed.Neg()
	}
	a.positions[req.Symbol] = a.positions[req.Symbol].Add(signed)
	a.mu.Unlock()

	select {
	case a.userStream <- live.UserStreamUpdate{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  venueOrderID,
		Status:        model.StatusFilled,
		FilledQty:     req.Qty,
		AvgPrice:      px,
	}:
	default:
	}

	return live.PlaceResult{Ack: &live.OrderAck{VenueOrderID: venueOrderID}}
}

// Cancel always rejects: Place already filled the order synchronously, so
// by the time a CANCEL command reaches the venue it is already terminal.
func (a *Adapter) Cancel(ctx context.Context, venueOrderID string) live.CancelResult {
	return live.CancelResult{Reject: &live.CancelReject{Reason: "order already filled"}}
}

func (a *Adapter) SubscribeMarket(ctx context.Context, symbols []model.Symbol) (<-chan model.MarketEvent, error) {
	ch := make(chan model.MarketEvent)
	close(ch)
	return ch, nil
}

func (a *Adapter) SubscribeUserStream(ctx context.Context) (<-chan live.UserStreamUpdate, error) {
	return a.userStream, nil
}

func (a *Adapter) LookupByClientOrderID(ctx context.Context, cid string) (*live.UserStreamUpdate, error) {
	return nil, nil
}

func (a *Adapter) OpenOrders(ctx context.Context, symbol model.Symbol) ([]live.UserStreamUpdate, error) {
	return nil, nil
}

func (a *Adapter) PositionSnapshot(ctx context.Context, symbol model.Symbol) (live.VenuePosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return live.VenuePosition{Symbol: symbol, NetQty: a.positions[symbol]}, nil
}
