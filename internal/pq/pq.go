// Package pq implements the ordered waiting structure behind the dispatcher:
// a binary heap keyed by (privilege, enqueue time) with an auxiliary caller
// index so duplicate checks never have to walk or drain the heap.
//
// The queue is not safe for concurrent use on its own.  It is owned by the
// scheduler and every operation happens inside the scheduler's admission
// critical section.
package pq

import (
	"container/heap"
	"time"
)

// Item is a single queued request together with the attributes the queue
// orders and indexes by.
type Item[T any] struct {
	CallerID   string
	Privileged bool
	EnqueuedAt time.Time
	Payload    T

	// seq breaks ties between equal enqueue timestamps so that ordering
	// within a privilege class is strictly first-submitted-first.
	seq uint64
}

// Queue is a priority queue of requests.  Privileged items are dequeued
// before ordinary ones; within the same class, items dequeue in submission
// order.  At most one item per caller may be present at a time, which the
// owner enforces by consulting Contains before pushing.
type Queue[T any] struct {
	heap    items[T]
	callers map[string]struct{}
	nextSeq uint64
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		callers: make(map[string]struct{}),
	}
}

// Push inserts an item into the queue.
func (q *Queue[T]) Push(it Item[T]) {
	it.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, it)
	q.callers[it.CallerID] = struct{}{}
}

// PopMin removes and returns the highest-priority item.
// ok is false when the queue is empty.
func (q *Queue[T]) PopMin() (it Item[T], ok bool) {
	if len(q.heap) == 0 {
		return Item[T]{}, false
	}
	it = heap.Pop(&q.heap).(Item[T])
	delete(q.callers, it.CallerID)
	return it, true
}

// Contains reports whether the caller currently has an item queued.
// It runs in constant time off the caller index.
func (q *Queue[T]) Contains(callerID string) bool {
	_, ok := q.callers[callerID]
	return ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.heap)
}

// Clear empties the queue and returns the discarded items in dispatch order,
// so the owner can notify their submitters.
func (q *Queue[T]) Clear() []Item[T] {
	discarded := make([]Item[T], 0, len(q.heap))
	for {
		it, ok := q.PopMin()
		if !ok {
			return discarded
		}
		discarded = append(discarded, it)
	}
}

type items[T any] []Item[T]

func (h items[T]) Len() int { return len(h) }

func (h items[T]) Less(i, j int) bool {
	if h[i].Privileged != h[j].Privileged {
		return h[i].Privileged
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h items[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *items[T]) Push(x any) {
	*h = append(*h, x.(Item[T]))
}

func (h *items[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
