package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClock_AdvanceTo(t *testing.T) {
	c := NewVirtualClock(1000, 2000)
	assert.Equal(t, int64(1000), c.NowNs())
	assert.Equal(t, float64(0), c.Progress())

	require.NoError(t, c.AdvanceTo(1500))
	assert.Equal(t, int64(1500), c.NowNs())
	assert.Equal(t, float64(0.5), c.Progress())

	require.NoError(t, c.AdvanceTo(2000))
	assert.Equal(t, float64(1), c.Progress())
}

func TestVirtualClock_RejectsRewind(t *testing.T) {
	c := NewVirtualClock(1000, 2000)
	require.NoError(t, c.AdvanceTo(1500))

	err := c.AdvanceTo(1400)
	assert.Error(t, err)
	assert.Equal(t, int64(1500), c.NowNs(), "clock must not move on a rejected advance")
}

func TestVirtualClock_ProgressClampedWhenSpanZero(t *testing.T) {
	c := NewVirtualClock(1000, 1000)
	assert.Equal(t, float64(0), c.Progress())
}

func TestVirtualClock_ElapsedNs(t *testing.T) {
	c := NewVirtualClock(1000, 5000)
	require.NoError(t, c.AdvanceTo(3500))
	assert.Equal(t, int64(2500), c.ElapsedNs())
}

func TestWallClock_MonotonicNondecreasing(t *testing.T) {
	c := NewWallClock()
	first := c.NowNs()
	second := c.NowNs()
	assert.GreaterOrEqual(t, second, first)
	assert.Equal(t, float64(0), c.Progress())
}
