package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

type fakeSource struct {
	states []model.OrderState
}

func (f fakeSource) Snapshot() []model.OrderState { return f.states }

func TestSQLiteDumper_DumpAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	src := fakeSource{states: []model.OrderState{
		{ClientOrderID: "cid-1", Symbol: "BTCUSDT", OrderQty: decimal.NewFromInt(1), Status: model.StatusFilled},
	}}

	require.NoError(t, d.Dump(context.Background(), src))

	loaded, err := d.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "cid-1", loaded[0].ClientOrderID)
	assert.Equal(t, model.Symbol("BTCUSDT"), loaded[0].Symbol)
}

func TestSQLiteDumper_LoadBeforeAnyDumpReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	loaded, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteDumper_DumpOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Dump(context.Background(), fakeSource{states: []model.OrderState{{ClientOrderID: "a"}}}))
	require.NoError(t, d.Dump(context.Background(), fakeSource{states: []model.OrderState{{ClientOrderID: "b"}}}))

	loaded, err := d.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ClientOrderID)
}
