package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

func TestQueue_DispatchOrder_TsThenPriorityThenFIFO(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Push(Event{TsNs: 100, Priority: model.PriorityNormal, TimerName: "a"}))
	require.NoError(t, q.Push(Event{TsNs: 100, Priority: model.PriorityHigh, TimerName: "b"}))
	require.NoError(t, q.Push(Event{TsNs: 50, Priority: model.PriorityLow, TimerName: "c"}))
	require.NoError(t, q.Push(Event{TsNs: 100, Priority: model.PriorityHigh, TimerName: "d"}))

	order := []string{}
	for q.Len() > 0 {
		evt, ok := q.Pop()
		require.True(t, ok)
		order = append(order, evt.TimerName)
	}
	assert.Equal(t, []string{"c", "b", "d", "a"}, order)
}

func TestQueue_PeekTsDoesNotRemove(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Push(Event{TsNs: 10, Priority: model.PriorityNormal}))
	ts, ok := q.PeekTs()
	require.True(t, ok)
	assert.Equal(t, int64(10), ts)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_PopEmpty(t *testing.T) {
	q := New(0)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_Clear(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Push(Event{TsNs: 1}))
	require.NoError(t, q.Push(Event{TsNs: 2}))
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_CapacityRejectsNonLowOverflow(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push(Event{TsNs: 1, Priority: model.PriorityNormal}))
	err := q.Push(Event{TsNs: 2, Priority: model.PriorityCritical})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQueueFull)
}

func TestQueue_CapacityDropsOldestLowOnLowOverflow(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Push(Event{TsNs: 1, Priority: model.PriorityLow, TimerName: "old"}))
	require.NoError(t, q.Push(Event{TsNs: 2, Priority: model.PriorityHigh, TimerName: "kept"}))

	// queue full; pushing another Low must evict "old", not surface QueueFull
	require.NoError(t, q.Push(Event{TsNs: 3, Priority: model.PriorityLow, TimerName: "new"}))

	names := []string{}
	for q.Len() > 0 {
		evt, _ := q.Pop()
		names = append(names, evt.TimerName)
	}
	assert.ElementsMatch(t, []string{"kept", "new"}, names)
}

func TestQueue_LowOverflowWithNoLowToDropSurfacesQueueFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push(Event{TsNs: 1, Priority: model.PriorityHigh}))
	err := q.Push(Event{TsNs: 2, Priority: model.PriorityLow})
	assert.ErrorIs(t, err, apperrors.ErrQueueFull)
}
