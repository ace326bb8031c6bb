package model

import (
	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the order's execution style.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// TIF is the time-in-force instruction. GTX is treated as PostOnly, kept
// distinct from GTC per the spec's resolution of the source's ambiguous
// aliasing.
type TIF string

const (
	GTC      TIF = "GTC"
	IOC      TIF = "IOC"
	FOK      TIF = "FOK"
	PostOnly TIF = "POST_ONLY"
)

// OrderRequest is the caller's intent to submit a new order.
type OrderRequest struct {
	ClientOrderID string
	Symbol        Symbol
	Side          Side
	Type          OrderType
	TIF           TIF
	Qty           decimal.Decimal
	Price         decimal.Decimal // only meaningful when Type == Limit
	TsCreated     int64

	// IdempotencyKey correlates retried Place calls for the same
	// ClientOrderID at the venue, independent of ClientOrderID itself so a
	// venue that dedupes on a separate header still sees one request id
	// across the LiveExecutor's retry budget.
	IdempotencyKey string
}

// Status is a node in the OrderState lifecycle graph described in spec §4.3.
type Status string

const (
	StatusPendingNew       Status = "PENDING_NEW"
	StatusAccepted         Status = "ACCEPTED"
	StatusPartiallyFilled  Status = "PARTIALLY_FILLED"
	StatusFilled           Status = "FILLED"
	StatusCancelled        Status = "CANCELLED"
	StatusRejected         Status = "REJECTED"
	StatusExpired          Status = "EXPIRED"
	StatusPendingCancel    Status = "PENDING_CANCEL"
)

// IsTerminal reports whether no further transition is allowed from status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// OrderState is the authoritative, OrderStore-owned record of one order's
// lifecycle. Callers only ever see immutable snapshots of it.
type OrderState struct {
	ClientOrderID string
	VenueOrderID  string
	Symbol        Symbol
	Side          Side
	Type          OrderType
	TIF           TIF
	OrderQty      decimal.Decimal
	LimitPrice    decimal.Decimal
	Status        Status
	ExecutedQty   decimal.Decimal
	AvgPrice      decimal.Decimal
	LastReason    string
	LastTsNs      int64
	seq           uint64 // submission sequence assigned by OrderStore.Submit
}

// Seq returns the insertion sequence assigned when the order was submitted.
func (o *OrderState) Seq() uint64 { return o.seq }

// SetSeq assigns the insertion sequence. Called once by OrderStore.Submit.
func (o *OrderState) SetSeq(seq uint64) { o.seq = seq }

// Remaining returns OrderQty - ExecutedQty, floored at zero.
func (o *OrderState) Remaining() decimal.Decimal {
	r := o.OrderQty.Sub(o.ExecutedQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Clone returns a value copy safe to hand to external callers.
func (o *OrderState) Clone() OrderState { return *o }

// Fill is an immutable record of one partial or full execution.
type Fill struct {
	ClientOrderID string
	Symbol        Symbol
	Qty           decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	IsMaker       bool
	TsNs          int64
}

// Position is the net exposure for one (account-implicit, symbol) pair.
type Position struct {
	Symbol              Symbol
	NetQty              decimal.Decimal // signed: positive long, negative short
	AvgEntryPrice       decimal.Decimal
	RealizedPnL         decimal.Decimal
	UnrealizedPnLAtMark decimal.Decimal
}

// AccountBalance is the free/locked split for one asset.
type AccountBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}
