// Package queue implements the kernel's time-priority message queue: a
// min-heap over domain.Message ordered by delivery time, with a monotone
// sequence counter enforcing FIFO order among equal timestamps (spec §4.1).
package queue

import "container/heap"

// entry holds the delivery time and insertion sequence the heap orders
// by, plus the original payload. Kept package-private so callers
// never construct heap entries directly; they use Push.
type entry struct {
	at      int64
	seq     uint64
	payload interface{}
}

type innerHeap []*entry

func (h innerHeap) Len() int      { return len(h) }
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h innerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h *innerHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a min-priority container over arbitrary payloads, keyed by an
// explicit delivery time with FIFO tie-breaking (spec §4.1, §8).
type Queue struct {
	h      innerHeap
	nextSeq uint64
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push enqueues payload for delivery at time at. Insertion order is
// preserved as the tie-break key for equal at values.
func (q *Queue) Push(at int64, payload interface{}) {
	q.nextSeq++
	heap.Push(&q.h, &entry{at: at, seq: q.nextSeq, payload: payload})
}

// Peek returns the next payload to be popped and its delivery time,
// without removing it. ok is false if the queue is empty.
func (q *Queue) Peek() (payload interface{}, at int64, ok bool) {
	if len(q.h) == 0 {
		return nil, 0, false
	}
	return q.h[0].payload, q.h[0].at, true
}

// Pop removes and returns the payload with the smallest delivery time,
// breaking ties by insertion order. ok is false if the queue is empty.
func (q *Queue) Pop() (payload interface{}, at int64, ok bool) {
	if len(q.h) == 0 {
		return nil, 0, false
	}
	e := heap.Pop(&q.h).(*entry)
	return e.payload, e.at, true
}

// Len returns the number of pending payloads.
func (q *Queue) Len() int {
	return len(q.h)
}

// Clear removes every pending payload.
func (q *Queue) Clear() {
	q.h = q.h[:0]
}
