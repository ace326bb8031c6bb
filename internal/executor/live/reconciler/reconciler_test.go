package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/executor/live"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/risk/circuitbreaker"
)

type fakeAdapter struct {
	openOrders []live.UserStreamUpdate
	position   live.VenuePosition
}

func (f *fakeAdapter) Place(ctx context.Context, req model.OrderRequest) live.PlaceResult { return live.PlaceResult{} }
func (f *fakeAdapter) Cancel(ctx context.Context, venueOrderID string) live.CancelResult  { return live.CancelResult{} }
func (f *fakeAdapter) SubscribeMarket(ctx context.Context, symbols []model.Symbol) (<-chan model.MarketEvent, error) {
	return nil, nil
}
func (f *fakeAdapter) SubscribeUserStream(ctx context.Context) (<-chan live.UserStreamUpdate, error) {
	return nil, nil
}
func (f *fakeAdapter) LookupByClientOrderID(ctx context.Context, cid string) (*live.UserStreamUpdate, error) {
	return nil, nil
}
func (f *fakeAdapter) OpenOrders(ctx context.Context, symbol model.Symbol) ([]live.UserStreamUpdate, error) {
	return f.openOrders, nil
}
func (f *fakeAdapter) PositionSnapshot(ctx context.Context, symbol model.Symbol) (live.VenuePosition, error) {
	return f.position, nil
}

type fakePositions struct {
	netQty  decimal.Decimal
	synced  decimal.Decimal
	synCall bool
}

func (f *fakePositions) Position(symbol string) model.Position {
	return model.Position{Symbol: model.Symbol(symbol), NetQty: f.netQty}
}
func (f *fakePositions) ForceSyncPosition(symbol string, netQty decimal.Decimal) {
	f.synCall = true
	f.synced = netQty
}

func storeWithOpenOrder(t *testing.T, cid, venueID string) *oms.Store {
	t.Helper()
	s := oms.New(nil)
	_, err := s.Submit(model.OrderRequest{ClientOrderID: cid, Symbol: "BTCUSDT", Side: model.Buy, Type: model.Limit, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.NoError(t, s.OnAck(cid, venueID, true, "", 1))
	return s
}

func TestReconciler_GhostLocalOrderExpiredWhenMissingAtVenue(t *testing.T) {
	store := storeWithOpenOrder(t, "c1", "v1")
	adapter := &fakeAdapter{} // venue reports no open orders
	pos := &fakePositions{}
	r := New(adapter, store, pos, nil, "BTCUSDT", time.Hour, nil)

	res := r.Pass(context.Background(), 1)
	require.Contains(t, res.GhostLocalOrders, "c1")

	st, _ := store.Query("c1")
	assert.Equal(t, model.StatusExpired, st.Status)
}

func TestReconciler_GhostVenueOrderReportedNotCancelled(t *testing.T) {
	store := oms.New(nil)
	adapter := &fakeAdapter{openOrders: []live.UserStreamUpdate{{VenueOrderID: "v-unknown"}}}
	pos := &fakePositions{}
	r := New(adapter, store, pos, nil, "BTCUSDT", time.Hour, nil)

	res := r.Pass(context.Background(), 1)
	assert.Contains(t, res.GhostVenueOrders, "v-unknown")
}

func TestReconciler_SmallDivergenceAutoCorrects(t *testing.T) {
	store := oms.New(nil)
	adapter := &fakeAdapter{position: live.VenuePosition{Symbol: "BTCUSDT", NetQty: decimal.NewFromFloat(10.1)}}
	pos := &fakePositions{netQty: decimal.NewFromInt(10)}
	r := New(adapter, store, pos, nil, "BTCUSDT", time.Hour, nil)

	res := r.Pass(context.Background(), 1)
	assert.True(t, res.AutoCorrected)
	assert.False(t, res.Halted)
	assert.True(t, pos.synCall)
	assert.True(t, pos.synced.Equal(decimal.NewFromFloat(10.1)))
}

func TestReconciler_LargeDivergenceTripsBreaker(t *testing.T) {
	store := oms.New(nil)
	adapter := &fakeAdapter{position: live.VenuePosition{Symbol: "BTCUSDT", NetQty: decimal.NewFromInt(100)}}
	pos := &fakePositions{netQty: decimal.NewFromInt(10)}
	breaker := circuitbreaker.New("BTCUSDT", circuitbreaker.Config{MaxConsecutiveLosses: 100, MaxDrawdownAmount: decimal.NewFromInt(1_000_000)})
	r := New(adapter, store, pos, breaker, "BTCUSDT", time.Hour, nil)

	res := r.Pass(context.Background(), 1)
	assert.True(t, res.Halted)
	assert.False(t, res.AutoCorrected)
	assert.True(t, breaker.IsTripped())
}

func TestReconciler_MatchedPositionIsNoOp(t *testing.T) {
	store := oms.New(nil)
	adapter := &fakeAdapter{position: live.VenuePosition{Symbol: "BTCUSDT", NetQty: decimal.NewFromInt(5)}}
	pos := &fakePositions{netQty: decimal.NewFromInt(5)}
	r := New(adapter, store, pos, nil, "BTCUSDT", time.Hour, nil)

	res := r.Pass(context.Background(), 1)
	assert.True(t, res.PositionMatched)
	assert.False(t, res.AutoCorrected)
	assert.False(t, res.Halted)
	assert.False(t, pos.synCall)
}
