// Package delayqueue implements the bounded FIFO used by the KV arena and the
// tuple arena to delay physical reclamation of a freshly-zero-refcount entry.
//
// The shape is lifted from arena-cache's generation ring
// (internal/genring): a fixed-size circular slot array plus a monotonic
// write cursor. arena-cache rotated whole generations (arenas) to get O(1)
// bulk TTL expiry; this cache has no notion of time-bounded generations —
// every entry is reclaimed individually by refcount — so the ring here
// holds plain entry indices instead of generation objects, and "rotation"
// becomes "push one, and if the queue was already full, pop the oldest and
// hand it back to the caller for physical free."
//
// Delaying release by a bounded number of operations tolerates transient
// builder patterns (release-then-reacquire the same KV/tuple) without
// forcing a churn through the intern table on every single release.
package delayqueue

// Queue is a bounded FIFO of int32 indices. It never allocates after
// construction; Push either grows into free capacity or evicts the oldest
// entry once full.
type Queue struct {
	slots []int32
	head  int // next slot to evict (oldest)
	n     int // number of occupied slots
	cap   int
}

// New constructs a queue with the given fixed capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("delayqueue: capacity must be > 0")
	}
	return &Queue{
		slots: make([]int32, capacity),
		cap:   capacity,
	}
}

// Len reports the number of indices currently queued.
func (q *Queue) Len() int { return q.n }

// Cap reports the fixed capacity of the queue.
func (q *Queue) Cap() int { return q.cap }

// Push enqueues idx. If the queue was already at capacity, the oldest
// queued index is dequeued and returned as (evicted, true) so the caller
// can physically free it. Otherwise returns (0, false).
func (q *Queue) Push(idx int32) (evicted int32, ok bool) {
	if q.n < q.cap {
		tail := (q.head + q.n) % q.cap
		q.slots[tail] = idx
		q.n++
		return 0, false
	}
	evicted = q.slots[q.head]
	q.slots[q.head] = idx
	q.head = (q.head + 1) % q.cap
	return evicted, true
}

// Drain empties the queue, calling physicalFree for every still-queued
// index in FIFO order. Used by the owning arena's Flush.
func (q *Queue) Drain(physicalFree func(idx int32)) {
	for q.n > 0 {
		idx := q.slots[q.head]
		q.head = (q.head + 1) % q.cap
		q.n--
		physicalFree(idx)
	}
}
