// Package live implements the LiveExecutor (C7): forwards orders to a
// VenueAdapter and translates venue events back into OrderStore updates,
// guaranteeing at-most-once placement.
package live

import (
	"context"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
)

// OrderAck is the venue's confirmation that an order was accepted.
type OrderAck struct {
	VenueOrderID string
	TsNs         int64
}

// OrderReject is the venue's refusal to accept an order.
type OrderReject struct {
	Reason string
}

// CancelAck confirms a cancel was accepted by the venue.
type CancelAck struct {
	TsNs int64
}

// CancelReject is the venue's refusal to cancel.
type CancelReject struct {
	Reason string
}

// PlaceResult is the outcome of one Place call: exactly one of Ack, Reject,
// or Uncertain (timeout/connection-drop, outcome unknown) is populated.
type PlaceResult struct {
	Ack       *OrderAck
	Reject    *OrderReject
	Uncertain bool
	Err       error
}

// CancelResult is the outcome of one Cancel call.
type CancelResult struct {
	Ack       *CancelAck
	Reject    *CancelReject
	Uncertain bool
	Err       error
}

// UserStreamUpdate is a normalized account/order update off the venue's
// private stream, used both for live order tracking and place-uncertainty
// reconciliation.
type UserStreamUpdate struct {
	ClientOrderID string
	VenueOrderID  string
	Status        model.Status
	FilledQty     decimal.Decimal
	AvgPrice      decimal.Decimal
	TsNs          int64
	VenueTsNs     int64 // venue-reported timestamp, for clock-skew tracking
}

// VenuePosition is a venue-reported net position snapshot, used by the
// reconciler to detect local/venue position divergence.
type VenuePosition struct {
	Symbol model.Symbol
	NetQty decimal.Decimal
}

// VenueAdapter is the capability LiveExecutor consumes. Exchange-specific
// wire formats, auth, rate limiting, and reconnect are adapter concerns;
// LiveExecutor only ever sees these operations.
type VenueAdapter interface {
	Place(ctx context.Context, req model.OrderRequest) PlaceResult
	Cancel(ctx context.Context, venueOrderID string) CancelResult
	SubscribeMarket(ctx context.Context, symbols []model.Symbol) (<-chan model.MarketEvent, error)
	SubscribeUserStream(ctx context.Context) (<-chan UserStreamUpdate, error)

	// LookupByClientOrderID resolves whether an order with the given
	// client_order_id ever reached the venue, used to reconcile a
	// PendingAck after an uncertain Place.
	LookupByClientOrderID(ctx context.Context, cid string) (*UserStreamUpdate, error)

	// OpenOrders lists the venue's current view of open orders for symbol,
	// keyed by venue_order_id, for the reconciliation loop.
	OpenOrders(ctx context.Context, symbol model.Symbol) ([]UserStreamUpdate, error)

	// PositionSnapshot reports the venue's current net position for symbol.
	PositionSnapshot(ctx context.Context, symbol model.Symbol) (VenuePosition, error)
}
