// Package model defines the data shapes shared by every core component:
// market data, orders, fills, positions, and the strategy action surface.
// It replaces the protobuf-generated wire types the original system used —
// the core has no wire format of its own, so plain decimal-backed structs
// are the idiomatic choice here.
package model

import (
	"github.com/shopspring/decimal"
)

// Venue tags which exchange (or the simulator) a MarketEvent or OrderState
// originated from.
type Venue string

const (
	VenueBinance Venue = "Binance"
	VenueOKX     Venue = "OKX"
	VenueBybit   Venue = "Bybit"
	VenueSim     Venue = "Sim"
)

// MarketKind distinguishes the instrument type a Symbol trades as.
type MarketKind string

const (
	MarketSpot         MarketKind = "Spot"
	MarketPerpFuture   MarketKind = "PerpFuture"
	MarketDatedFuture  MarketKind = "DatedFuture"
)

// Symbol is an interned trading pair identifier, e.g. "BTCUSDT".
type Symbol string

// EventType tags the concrete shape carried by a MarketEvent.
type EventType int

const (
	EventTrade EventType = iota
	EventBookTop
	EventBookDelta
	EventKline
	EventPriceTick
)

func (t EventType) String() string {
	switch t {
	case EventTrade:
		return "trade"
	case EventBookTop:
		return "book_top"
	case EventBookDelta:
		return "book_delta"
	case EventKline:
		return "kline"
	case EventPriceTick:
		return "price_tick"
	default:
		return "unknown"
	}
}

// PriceLevel is a single (price, quantity) entry in an order book delta.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// MarketEvent is a tagged variant carrying exactly one of the payloads
// below, selected by Type. Only the fields relevant to Type are populated;
// the zero value of the others is ignored by consumers.
type MarketEvent struct {
	Type   EventType
	Symbol Symbol
	Venue  Venue
	TsNs   int64

	// Trade
	Price        decimal.Decimal
	Qty          decimal.Decimal
	IsBuyerMaker bool
	TradeID      int64

	// BookTop
	BidPx  decimal.Decimal
	BidQty decimal.Decimal
	AskPx  decimal.Decimal
	AskQty decimal.Decimal

	// BookDelta
	Sequence int64
	Bids     []PriceLevel
	Asks     []PriceLevel

	// Kline
	Open, High, Low, Close, Volume decimal.Decimal
	StartMs, CloseMs               int64
}

// NewTrade builds a Trade-variant MarketEvent.
func NewTrade(symbol Symbol, venue Venue, price, qty decimal.Decimal, isBuyerMaker bool, tradeID, tsNs int64) MarketEvent {
	return MarketEvent{
		Type: EventTrade, Symbol: symbol, Venue: venue, TsNs: tsNs,
		Price: price, Qty: qty, IsBuyerMaker: isBuyerMaker, TradeID: tradeID,
	}
}

// NewBookTop builds a BookTop-variant MarketEvent.
func NewBookTop(symbol Symbol, venue Venue, bidPx, bidQty, askPx, askQty decimal.Decimal, tsNs int64) MarketEvent {
	return MarketEvent{
		Type: EventBookTop, Symbol: symbol, Venue: venue, TsNs: tsNs,
		BidPx: bidPx, BidQty: bidQty, AskPx: askPx, AskQty: askQty,
	}
}

// NewKline builds a Kline-variant MarketEvent.
func NewKline(symbol Symbol, venue Venue, o, h, l, c, v decimal.Decimal, startMs, closeMs, tsNs int64) MarketEvent {
	return MarketEvent{
		Type: EventKline, Symbol: symbol, Venue: venue, TsNs: tsNs,
		Open: o, High: h, Low: l, Close: c, Volume: v, StartMs: startMs, CloseMs: closeMs,
	}
}
