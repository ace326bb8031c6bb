package engine

import (
	"context"

	"tradecore/internal/eventqueue"
	"tradecore/internal/executor/live"
	"tradecore/internal/model"
)

// ConsumeUserStream pumps a live VenueAdapter's user-stream channel into the
// Engine: each update is applied to the OrderStore by LiveExecutor (the
// sole owner of that mutation, per its at-most-once contract), then a
// KindFill or KindOrderAck notification is pushed onto the EventQueue so
// the single dispatch-loop goroutine is the only place RiskEngine and
// StrategyRuntime callbacks run from, matching the spec's serialized-
// callback invariant even though the update itself arrived off-loop.
//
// Runs until ch is closed or ctx is cancelled. Callers typically launch
// this once per live run, right after Run(ctx) starts, feeding it the
// channel returned by VenueAdapter.SubscribeUserStream.
func (e *Engine) ConsumeUserStream(ctx context.Context, ch <-chan live.UserStreamUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-ch:
			if !ok {
				return
			}
			fill, err := e.liveExec.OnUserStreamUpdate(upd)
			if err != nil {
				e.logger.WithField("client_order_id", upd.ClientOrderID).Warn("user stream update rejected: " + err.Error())
				continue
			}
			if fill != nil {
				_ = e.queue.Push(eventqueue.FillEventOf(*fill))
				continue
			}
			_ = e.queue.Push(eventqueue.OrderAckEventOf(upd.ClientOrderID, upd.VenueOrderID, true, "", upd.TsNs))
		}
	}
}

// PushMarketEvent enqueues a market data event for dispatch. The live
// market-data feed in cmd/engine uses it; the BacktestHarness pushes its
// loaded events into the EventQueue directly.
func (e *Engine) PushMarketEvent(evt model.MarketEvent) error {
	return e.queue.Push(eventqueue.MarketEventOf(evt))
}

// PushCommand enqueues a raw command line (from CommandReader) for the
// dispatch loop to acknowledge having drained, after the command package's
// own parser has already acted on it.
func (e *Engine) PushCommand(line string, tsNs int64) error {
	return e.queue.Push(eventqueue.Event{Kind: eventqueue.KindCommand, TsNs: tsNs, Priority: model.PriorityNormal, Command: line})
}
