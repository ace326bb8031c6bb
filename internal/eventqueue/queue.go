package eventqueue

import (
	"container/heap"
	"context"
	"sync"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
	"tradecore/internal/telemetry"
)

// item is the heap element: the Event (whose seq is the final tie-break in
// Less) plus its current heap index, kept up to date by Swap/Push/Pop.
type item struct {
	evt   Event
	index int
}

type heapSlice []*item

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	a, b := h[i].evt, h[j].evt
	if a.TsNs != b.TsNs {
		return a.TsNs < b.TsNs
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority // higher priority first
	}
	return a.seq < b.seq
}

func (h heapSlice) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *heapSlice) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a bounded, priority-ordered event scheduler. Capacity 0 means
// unbounded (used by the backtest harness, which loads a closed, already
// time-bounded event set). A positive capacity enables the live-mode
// backpressure policy: Low-priority overflow silently drops the oldest Low
// item; any other priority's overflow is returned as QueueFull.
type Queue struct {
	mu       sync.Mutex
	h        heapSlice
	capacity int
	nextSeq  uint64
}

// New creates a Queue with the given capacity (0 = unbounded).
func New(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	heap.Init(&q.h)
	return q
}

// Push inserts evt, assigning it the next insertion sequence. O(log n).
// Returns apperrors.ErrQueueFull if the queue is at capacity and evt is not
// a droppable Low-priority overflow candidate.
func (q *Queue) Push(evt Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.h) >= q.capacity {
		if evt.Priority == model.PriorityLow {
			if dropped := q.dropOldestLowLocked(); !dropped {
				telemetry.GetGlobalMetrics().QueueOverflow.Add(context.Background(), 1)
				return apperrors.ErrQueueFull
			}
		} else {
			telemetry.GetGlobalMetrics().QueueOverflow.Add(context.Background(), 1)
			return apperrors.ErrQueueFull
		}
	}

	evt.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, &item{evt: evt})
	telemetry.GetGlobalMetrics().SetQueueDepth(len(q.h))
	return nil
}

// dropOldestLowLocked removes the lowest-seq Low-priority item to make room
// for an incoming Low-priority push. Returns false if no Low item exists to
// drop, in which case the caller must surface QueueFull instead.
func (q *Queue) dropOldestLowLocked() bool {
	oldestIdx := -1
	var oldestSeq uint64
	for i, it := range q.h {
		if it.evt.Priority != model.PriorityLow {
			continue
		}
		if oldestIdx == -1 || it.evt.seq < oldestSeq {
			oldestIdx = i
			oldestSeq = it.evt.seq
		}
	}
	if oldestIdx == -1 {
		return false
	}
	heap.Remove(&q.h, oldestIdx)
	return true
}

// Pop removes and returns the next event to dispatch. ok is false when the
// queue is empty.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return Event{}, false
	}
	it := heap.Pop(&q.h).(*item)
	telemetry.GetGlobalMetrics().SetQueueDepth(len(q.h))
	return it.evt, true
}

// PeekTs returns the timestamp of the next event to dispatch without
// removing it. ok is false when the queue is empty.
func (q *Queue) PeekTs() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].evt.TsNs, true
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Clear discards all queued events.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.h = q.h[:0]
	telemetry.GetGlobalMetrics().SetQueueDepth(0)
}
