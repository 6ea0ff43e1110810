package scheduler

import (
	"container/heap"
	"time"
)

// slotItem is one service's entry in the due-queue, tracking the bounded
// failure backoff described in §4.G.
type slotItem struct {
	serviceID           string
	nextPollAt          time.Time
	intervalMs          int
	consecutiveFailures int
	index               int // maintained by container/heap
}

// slotQueue is a container/heap min-heap ordered by nextPollAt, generalizing
// the teacher's map-based Registry/LeaseManager into a single priority
// structure keyed by due time instead of by worker identity.
type slotQueue []*slotItem

func (q slotQueue) Len() int { return len(q) }

func (q slotQueue) Less(i, j int) bool { return q[i].nextPollAt.Before(q[j].nextPollAt) }

func (q slotQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *slotQueue) Push(x any) {
	item := x.(*slotItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *slotQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*slotQueue)(nil)
