package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/datasource"
	"tradecore/internal/executor/sim"
	"tradecore/internal/model"
	"tradecore/internal/risk"
	"tradecore/internal/strategy"
	"tradecore/internal/strategy/momentum"
)

func writeOHLCV(t *testing.T, rows [][8]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "klines.csv")
	var contents string
	for _, r := range rows {
		contents += r[0] + "," + r[1] + "," + r[2] + "," + r[3] + "," + r[4] + "," + r[5] + "," + r[6] + "," + r[7] + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func newTestRuntime(t *testing.T) *strategy.Runtime {
	t.Helper()
	rt := strategy.NewRuntime([]strategy.Factory{
		momentum.New(momentum.Config{Symbol: "BTCUSDT", Fast: 2, Slow: 3, Qty: decimal.NewFromInt(1)}),
	}, nil)
	_, err := rt.Load("mom-1", "momentum", map[string]float64{"fast": 2, "slow": 3}, []strategy.Subscription{
		{Venue: model.VenueSim, Symbol: "BTCUSDT", EventType: model.EventKline},
	})
	require.NoError(t, err)
	return rt
}

func TestHarness_RunComputesResultFromSyntheticUptrend(t *testing.T) {
	var rows [][8]string
	price := 100
	for i := 0; i < 30; i++ {
		ts := int64((i + 1) * 60_000_000_000)
		startMs := int64((i + 1) * 60_000)
		closeMs := startMs + 60_000
		price += 1
		rows = append(rows, [8]string{
			itoa(ts), itoa(int64(price - 1)), itoa(int64(price + 1)), itoa(int64(price - 1)),
			itoa(int64(price)), "10", itoa(startMs), itoa(closeMs),
		})
	}
	path := writeOHLCV(t, rows)

	rt := newTestRuntime(t)

	cfg := Config{
		StartMs:        0,
		EndMs:          2_000_000,
		InitialBalance: decimal.NewFromInt(10000),
		Symbols:        []model.Symbol{"BTCUSDT"},
		PeriodsPerYear: 252,
		Fees:           sim.DefaultFees(),
		Risk:           risk.DefaultConfig(),
	}
	h := New(cfg, rt, nil)

	src := datasource.NewCSV(datasource.CSVConfig{Path: path, Format: datasource.FormatOHLCV, Symbol: "BTCUSDT", Venue: model.VenueSim})
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()
	require.NoError(t, h.Load(context.Background(), src, "BTCUSDT", datasource.DataTypeOHLCV, ""))

	require.NoError(t, h.Run(context.Background()))

	result := h.Result()
	assert.GreaterOrEqual(t, result.TotalFills, 0)
	assert.True(t, result.MaxDrawdown.GreaterThanOrEqual(decimal.Zero))
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
