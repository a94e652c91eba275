package scheduler

import (
	"container/heap"
	"time"
)

// periodicDeadline is one entry in the priority queue: the wall-clock
// instant at which a named periodic should next fire.
type periodicDeadline struct {
	name     string
	deadline time.Time
	period   time.Duration
}

type deadlineHeap []*periodicDeadline

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)         { *h = append(*h, x.(*periodicDeadline)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PeriodicQueue tracks the next firing deadline for every registered
// periodic, ordered by deadline, per spec.md §4.4's "priority queue of
// pending periodic firings".
type PeriodicQueue struct {
	h deadlineHeap
}

// NewPeriodicQueue constructs an empty queue.
func NewPeriodicQueue() *PeriodicQueue {
	return &PeriodicQueue{}
}

// Add schedules name's first firing one period from now.
func (pq *PeriodicQueue) Add(name string, period time.Duration, now time.Time) {
	heap.Push(&pq.h, &periodicDeadline{name: name, deadline: now.Add(period), period: period})
}

// EarliestDeadline reports the soonest pending deadline, or ok=false if no
// periodics are registered.
func (pq *PeriodicQueue) EarliestDeadline() (deadline time.Time, ok bool) {
	if len(pq.h) == 0 {
		return time.Time{}, false
	}
	return pq.h[0].deadline, true
}

// PopDue fires every periodic whose deadline has passed as of now, calling
// fire once for it and rescheduling it for now + its period (SPEC_FULL.md
// §7 Open Question 2). A periodic that has missed several deadlines fires
// once here, not once per missed deadline.
func (pq *PeriodicQueue) PopDue(now time.Time, fire func(name string)) {
	for len(pq.h) > 0 && !pq.h[0].deadline.After(now) {
		item := heap.Pop(&pq.h).(*periodicDeadline)
		fire(item.name)
		item.deadline = now.Add(item.period)
		heap.Push(&pq.h, item)
	}
}
