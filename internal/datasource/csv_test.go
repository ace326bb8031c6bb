package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCSV_TradeFormatRoundTrip(t *testing.T) {
	path := writeCSV(t, "ts_ns,price,qty,is_buyer_maker,trade_id\n"+
		"1000,100.5,1.25,1,42\n"+
		"2000,101.0,0.5,0,43\n")

	src := NewCSV(CSVConfig{Path: path, Format: FormatTrade, HasHeader: true, Symbol: "BTCUSDT", Venue: model.VenueSim})
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	events, err := src.GetData(context.Background(), "BTCUSDT", 0, 0, DataTypeTrade, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1000), events[0].TsNs)
	assert.True(t, events[0].IsBuyerMaker)
	assert.Equal(t, int64(43), events[1].TradeID)
}

func TestCSV_SkipsInvalidRowsWhenConfigured(t *testing.T) {
	path := writeCSV(t, "1000,100.5,1.25\nNOT_A_NUMBER,1,1\n2000,101.0,0.5\n")

	src := NewCSV(CSVConfig{Path: path, Format: FormatTrade, SkipInvalidRows: true, Symbol: "BTCUSDT"})
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	events, err := src.GetData(context.Background(), "BTCUSDT", 0, 0, DataTypeTrade, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCSV_ErrorsOnInvalidRowWithoutSkip(t *testing.T) {
	path := writeCSV(t, "1000,100.5,1.25\nNOT_A_NUMBER,1,1\n")

	src := NewCSV(CSVConfig{Path: path, Format: FormatTrade, Symbol: "BTCUSDT"})
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	_, err := src.GetData(context.Background(), "BTCUSDT", 0, 0, DataTypeTrade, "")
	require.Error(t, err)
}

func TestCSV_StreamRespectsTimeRange(t *testing.T) {
	path := writeCSV(t, "1000000,1,1\n5000000,1,1\n10000000,1,1\n")

	src := NewCSV(CSVConfig{Path: path, Format: FormatTrade, Symbol: "BTCUSDT"})
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	var tsSeen []int64
	err := src.Stream(context.Background(), "BTCUSDT", 0, 6, DataTypeTrade, "", func(evt model.MarketEvent) bool {
		tsSeen = append(tsSeen, evt.TsNs)
		return true
	})
	require.NoError(t, err)
	assert.Contains(t, tsSeen, int64(1000000))
	assert.Contains(t, tsSeen, int64(5000000))
	assert.NotContains(t, tsSeen, int64(10000000))
}
