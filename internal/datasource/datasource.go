// Package datasource implements the DataSource capability (spec §6.3): a
// historical feed of MarketEvents for the BacktestHarness, decoupled from
// any one storage format.
package datasource

import (
	"context"

	"tradecore/internal/model"
)

// DataType selects which MarketEvent shape a DataSource row decodes to.
type DataType string

const (
	DataTypeTrade DataType = "trade"
	DataTypeOHLCV DataType = "ohlcv"
	DataTypeBook  DataType = "book"
)

// TimeFrame is only meaningful for DataTypeOHLCV; it is carried through
// unexamined by sources that don't need it (e.g. raw trade tapes).
type TimeFrame string

const (
	TimeFrame1m TimeFrame = "1m"
	TimeFrame5m TimeFrame = "5m"
	TimeFrame1h TimeFrame = "1h"
	TimeFrame1d TimeFrame = "1d"
)

// Source is the DataSource capability. Connect/Disconnect bracket any
// underlying file handle or network connection; GetData and Stream may
// both be called many times between them.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// GetData returns every event for symbol in [startMs, endMs), sorted
	// non-decreasing by ts_ns.
	GetData(ctx context.Context, symbol model.Symbol, startMs, endMs int64, dataType DataType, tf TimeFrame) ([]model.MarketEvent, error)

	// Stream delivers events one at a time to sink, stopping early if sink
	// returns false.
	Stream(ctx context.Context, symbol model.Symbol, startMs, endMs int64, dataType DataType, tf TimeFrame, sink func(model.MarketEvent) bool) error
}
