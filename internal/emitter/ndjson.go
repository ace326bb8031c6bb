// Package emitter implements the EventEmitter (C12): a buffered NDJSON
// writer over stdout (or any io.Writer) that serializes every engine/
// command-reader lifecycle notification to the wire format in spec §6.2.
package emitter

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// NDJSON writes one JSON object per line, synchronized so every
// EmitXxx call from the (single-threaded) dispatch loop or a concurrent
// CommandReader goroutine lands atomically.
type NDJSON struct {
	mu  sync.Mutex
	w   *bufio.Writer
	now func() int64
}

// New wraps w in a buffered NDJSON emitter. now supplies the ts_ns on
// events the caller doesn't already carry a timestamp for (e.g. lifecycle
// mirror events); pass a Clock's NowNs.
func New(w io.Writer, now func() int64) *NDJSON {
	return &NDJSON{w: bufio.NewWriter(w), now: now}
}

// Flush writes out anything still held in the buffer; write already flushes
// after every line, so this is a final safety net before process exit.
func (n *NDJSON) Flush() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.w.Flush()
}

func (n *NDJSON) write(b *objectBuilder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.w.WriteString(b.String())
	n.w.WriteByte('\n')
	n.w.Flush()
}

// --- Market data mirror -----------------------------------------------

func (n *NDJSON) EmitMarket(evt model.MarketEvent) {
	b := newObject(evt.Type.String(), evt.TsNs)
	b.str("symbol", string(evt.Symbol))
	b.str("venue", string(evt.Venue))
	switch evt.Type {
	case model.EventTrade:
		b.dec("price", evt.Price)
		b.dec("qty", evt.Qty)
		b.boolean("is_buyer_maker", evt.IsBuyerMaker)
		b.i64("trade_id", evt.TradeID)
	case model.EventBookTop:
		b.dec("bid_px", evt.BidPx)
		b.dec("bid_qty", evt.BidQty)
		b.dec("ask_px", evt.AskPx)
		b.dec("ask_qty", evt.AskQty)
	case model.EventBookDelta:
		b.i64("sequence", evt.Sequence)
		b.levels("bids", evt.Bids)
		b.levels("asks", evt.Asks)
	case model.EventKline:
		b.dec("open", evt.Open)
		b.dec("high", evt.High)
		b.dec("low", evt.Low)
		b.dec("close", evt.Close)
		b.dec("volume", evt.Volume)
		b.i64("start_ms", evt.StartMs)
		b.i64("close_ms", evt.CloseMs)
	}
	n.write(b)
}

// --- Command-stream lifecycle mirror -----------------------------------

func (n *NDJSON) EmitOrderReceived(clientOrderID string, lineNo int) {
	b := newObject("order_received", n.now())
	b.str("client_order_id", clientOrderID)
	b.i64("line_no", int64(lineNo))
	n.write(b)
}

func (n *NDJSON) EmitCancelReceived(clientOrderID string, lineNo int) {
	b := newObject("cancel_received", n.now())
	b.str("client_order_id", clientOrderID)
	b.i64("line_no", int64(lineNo))
	n.write(b)
}

func (n *NDJSON) EmitQueryReceived(queryType string, lineNo int) {
	b := newObject("query_received", n.now())
	b.str("query_type", queryType)
	b.i64("line_no", int64(lineNo))
	n.write(b)
}

func (n *NDJSON) EmitStrategyCommandReceived(subcommand string, lineNo int) {
	b := newObject("strategy_command_received", n.now())
	b.str("subcommand", subcommand)
	b.i64("line_no", int64(lineNo))
	n.write(b)
}

// --- Order/fill state ---------------------------------------------------

func (n *NDJSON) EmitOrderUpdate(st model.OrderState) {
	b := newObject("order_update", st.LastTsNs)
	writeOrderFields(b, st)
	n.write(b)
}

func (n *NDJSON) EmitOrderState(st model.OrderState) {
	b := newObject("order_state", st.LastTsNs)
	writeOrderFields(b, st)
	n.write(b)
}

func writeOrderFields(b *objectBuilder, st model.OrderState) {
	b.str("client_order_id", st.ClientOrderID)
	if st.VenueOrderID != "" {
		b.str("venue_order_id", st.VenueOrderID)
	}
	b.str("symbol", string(st.Symbol))
	b.str("side", string(st.Side))
	b.str("status", string(st.Status))
	b.dec("order_qty", st.OrderQty)
	b.dec("executed_qty", st.ExecutedQty)
	b.dec("avg_price", st.AvgPrice)
	if st.LastReason != "" {
		b.str("reason", st.LastReason)
	}
}

func (n *NDJSON) EmitFill(f model.Fill) {
	b := newObject("fill", f.TsNs)
	b.str("client_order_id", f.ClientOrderID)
	b.str("symbol", string(f.Symbol))
	b.dec("qty", f.Qty)
	b.dec("price", f.Price)
	b.dec("fee", f.Fee)
	b.boolean("is_maker", f.IsMaker)
	n.write(b)
}

// --- Account / subscription status --------------------------------------

func (n *NDJSON) EmitAccount(balances []model.AccountBalance) {
	b := newObject("account", n.now())
	b.rawKey("balances")
	b.sb.WriteByte('[')
	for i, bal := range balances {
		if i > 0 {
			b.sb.WriteByte(',')
		}
		b.sb.WriteByte('{')
		inner := &objectBuilder{sb: b.sb, first: true}
		inner.str("asset", bal.Asset)
		inner.dec("free", bal.Free)
		inner.dec("locked", bal.Locked)
		b.sb.WriteByte('}')
	}
	b.sb.WriteByte(']')
	n.write(b)
}

func (n *NDJSON) EmitSubscriptionStatus(venue model.Venue, symbol model.Symbol, eventType string, active bool, reason string) {
	b := newObject("subscription_status", n.now())
	b.str("venue", string(venue))
	b.str("symbol", string(symbol))
	b.str("event_type", eventType)
	b.boolean("active", active)
	if reason != "" {
		b.str("reason", reason)
	}
	n.write(b)
}

// --- Strategy lifecycle ---------------------------------------------------

func (n *NDJSON) EmitStrategyEvent(tag string, instanceID string, detail map[string]interface{}) {
	b := newObject("strategy_"+tag, n.now())
	if instanceID != "" {
		b.str("instance_id", instanceID)
	}
	for k, v := range detail {
		b.any(k, v)
	}
	n.write(b)
}

// --- Engine lifecycle -----------------------------------------------------

func (n *NDJSON) EmitEngineStarted(version string) {
	b := newObject("engine_started", n.now())
	b.str("version", version)
	n.write(b)
}

func (n *NDJSON) EmitEngineStopped(commandsProcessed int64) {
	b := newObject("engine_stopped", n.now())
	b.i64("commands_processed", commandsProcessed)
	n.write(b)
}

func (n *NDJSON) EmitError(message string) {
	b := newObject("error", n.now())
	b.str("message", message)
	n.write(b)
}

// --- Risk / reconcile, already wired into the dispatch loop --------------

func (n *NDJSON) EmitRiskTriggered(tag apperrors.Tag, symbol, detail string) {
	b := newObject("risk_triggered", n.now())
	b.str("tag", string(tag))
	b.str("symbol", symbol)
	b.str("detail", detail)
	n.write(b)
}

func (n *NDJSON) EmitKillSwitch(reason string) {
	b := newObject("kill_switch_engaged", n.now())
	b.str("reason", reason)
	n.write(b)
}

func (n *NDJSON) EmitReconcileRequired(clientOrderID, reason string) {
	b := newObject("order_reconcile_required", n.now())
	b.str("client_order_id", clientOrderID)
	b.str("reason", reason)
	n.write(b)
}

// --- minimal hand-rolled object builder ------------------------------------
//
// encoding/json can't express "no exponent, drop absent optionals instead
// of nulling them" for decimal.Decimal without a custom MarshalJSON per
// call site, so every event is built field-by-field instead.

type objectBuilder struct {
	sb    *strings.Builder
	first bool
}

func newObject(typeTag string, tsNs int64) *objectBuilder {
	b := &objectBuilder{sb: &strings.Builder{}, first: true}
	b.sb.WriteByte('{')
	b.rawKey("type")
	b.sb.WriteByte('"')
	b.sb.WriteString(escape(typeTag))
	b.sb.WriteByte('"')
	b.first = false
	b.i64("ts_ns", tsNs)
	return b
}

func (b *objectBuilder) rawKey(key string) {
	if !b.first {
		b.sb.WriteByte(',')
	}
	b.sb.WriteByte('"')
	b.sb.WriteString(key)
	b.sb.WriteString(`":`)
}

func (b *objectBuilder) str(key, val string) {
	b.rawKey(key)
	b.sb.WriteByte('"')
	b.sb.WriteString(escape(val))
	b.sb.WriteByte('"')
	b.first = false
}

func (b *objectBuilder) i64(key string, val int64) {
	b.rawKey(key)
	b.sb.WriteString(strconv.FormatInt(val, 10))
	b.first = false
}

func (b *objectBuilder) boolean(key string, val bool) {
	b.rawKey(key)
	b.sb.WriteString(strconv.FormatBool(val))
	b.first = false
}

func (b *objectBuilder) dec(key string, val decimalStringer) {
	b.rawKey(key)
	b.sb.WriteString(val.String())
	b.first = false
}

func (b *objectBuilder) levels(key string, levels []model.PriceLevel) {
	b.rawKey(key)
	b.sb.WriteByte('[')
	for i, lv := range levels {
		if i > 0 {
			b.sb.WriteByte(',')
		}
		b.sb.WriteByte('{')
		inner := &objectBuilder{sb: b.sb, first: true}
		inner.dec("price", lv.Price)
		inner.dec("qty", lv.Qty)
		b.sb.WriteByte('}')
	}
	b.sb.WriteByte(']')
	b.first = false
}

func (b *objectBuilder) any(key string, val interface{}) {
	switch v := val.(type) {
	case string:
		b.str(key, v)
	case int:
		b.i64(key, int64(v))
	case int64:
		b.i64(key, v)
	case float64:
		b.rawKey(key)
		b.sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		b.first = false
	case bool:
		b.boolean(key, v)
	case decimalStringer:
		b.dec(key, v)
	default:
		b.str(key, "")
	}
}

func (b *objectBuilder) String() string {
	return b.sb.String() + "}"
}

// decimalStringer matches shopspring/decimal.Decimal's String() method
// without importing the package into the builder's low-level helpers.
type decimalStringer interface {
	String() string
}

func escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
