// Package eventqueue implements the priority-ordered scheduler the Engine
// drains on every loop iteration: a bounded min-heap keyed by
// (ts, -priority, seq) so that dispatch order is ascending timestamp, then
// descending priority, then FIFO insertion order.
package eventqueue

import (
	"tradecore/internal/model"
)

// Kind tags what payload an Event carries.
type Kind int

const (
	KindMarket Kind = iota
	KindOrderAck
	KindFill
	KindTimer
	KindCommand
)

// Event is the unit the EventQueue schedules. Exactly one payload field is
// populated, selected by Kind.
type Event struct {
	Kind     Kind
	TsNs     int64
	Priority model.Priority

	Market        model.MarketEvent
	Fill          model.Fill
	ClientOrderID string // KindOrderAck
	VenueOrderID  string // KindOrderAck, populated when Accepted
	Accepted      bool   // KindOrderAck
	Reason        string // KindOrderAck rejection reason, if any

	TimerName string // KindTimer
	Command   string // KindCommand, raw line

	seq uint64 // assigned by the queue on push
}

// MarketEventOf builds a KindMarket Event at normal priority.
func MarketEventOf(e model.MarketEvent) Event {
	return Event{Kind: KindMarket, TsNs: e.TsNs, Priority: model.PriorityNormal, Market: e}
}

// TimerEventOf builds a KindTimer Event.
func TimerEventOf(name string, atNs int64, prio model.Priority) Event {
	return Event{Kind: KindTimer, TsNs: atNs, Priority: prio, TimerName: name}
}

// FillEventOf builds a KindFill Event at high priority (fills settle ahead
// of normal market data at the same timestamp).
func FillEventOf(f model.Fill) Event {
	return Event{Kind: KindFill, TsNs: f.TsNs, Priority: model.PriorityHigh, Fill: f}
}

// OrderAckEventOf builds a KindOrderAck Event.
func OrderAckEventOf(cid, venueID string, accepted bool, reason string, tsNs int64) Event {
	return Event{Kind: KindOrderAck, TsNs: tsNs, Priority: model.PriorityHigh, ClientOrderID: cid, VenueOrderID: venueID, Accepted: accepted, Reason: reason}
}
