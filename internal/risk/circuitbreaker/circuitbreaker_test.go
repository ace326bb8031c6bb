package circuitbreaker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsOnConsecutiveLosses(t *testing.T) {
	b := New("BTCUSDT", Config{MaxConsecutiveLosses: 3})
	assert.False(t, b.IsTripped())

	b.RecordTrade(decimal.NewFromInt(-1))
	b.RecordTrade(decimal.NewFromInt(-1))
	assert.False(t, b.IsTripped())
	b.RecordTrade(decimal.NewFromInt(-1))
	assert.True(t, b.IsTripped())
}

func TestBreaker_WinResetsConsecutiveCounter(t *testing.T) {
	b := New("BTCUSDT", Config{MaxConsecutiveLosses: 2})
	b.RecordTrade(decimal.NewFromInt(-1))
	b.RecordTrade(decimal.NewFromInt(1))
	b.RecordTrade(decimal.NewFromInt(-1))
	assert.False(t, b.IsTripped(), "a win between losses must reset the streak")
}

func TestBreaker_TripsOnDrawdownAmount(t *testing.T) {
	b := New("BTCUSDT", Config{MaxDrawdownAmount: decimal.NewFromInt(100)})
	b.RecordTrade(decimal.NewFromInt(-150))
	assert.True(t, b.IsTripped())
}

func TestBreaker_CooldownAutoResets(t *testing.T) {
	b := New("BTCUSDT", Config{MaxConsecutiveLosses: 1, CooldownPeriod: 10 * time.Millisecond})
	b.RecordTrade(decimal.NewFromInt(-1))
	require := assert.New(t)
	require.True(b.IsTripped())

	time.Sleep(15 * time.Millisecond)
	require.False(b.IsTripped())
}

func TestBreaker_ManualTripAndReset(t *testing.T) {
	b := New("ETHUSDT", Config{})
	assert.False(t, b.IsTripped())
	b.Trip()
	assert.True(t, b.IsTripped())
	b.Reset()
	assert.False(t, b.IsTripped())
}
