// Package queue implements the run queue: a lock-free LIFO stack of
// scheduled task handles, backed by a bounded node freelist.
package queue

import (
	"sync/atomic"
)

// DefaultFreelistCap is the soft cap on recycled nodes kept on the
// freelist before new pushes are left for the garbage collector instead.
const DefaultFreelistCap = 256

type node struct {
	handle uint64
	next   *node
}

// RunQueue is a Treiber stack of scheduled handles.
type RunQueue struct {
	head atomic.Pointer[node]

	freeHead atomic.Pointer[node]
	freeLen  atomic.Int64
	freeCap  int64
}

// New creates an empty run queue with the given freelist capacity. A
// non-positive capacity selects DefaultFreelistCap.
func New(freelistCap int) *RunQueue {
	if freelistCap <= 0 {
		freelistCap = DefaultFreelistCap
	}
	return &RunQueue{freeCap: int64(freelistCap)}
}

func (q *RunQueue) allocNode(handle uint64) *node {
	for {
		head := q.freeHead.Load()
		if head == nil {
			return &node{handle: handle}
		}
		if q.freeHead.CompareAndSwap(head, head.next) {
			q.freeLen.Add(-1)
			head.handle = handle
			head.next = nil
			return head
		}
	}
}

func (q *RunQueue) releaseNode(n *node) {
	if q.freeLen.Load() >= q.freeCap {
		// Above the soft cap: let the node go, the Go garbage collector
		// reclaims it. The original's bump allocator could never reclaim
		// it either way; a real Go build has no reason to keep growing
		// past the cap just to mimic that limitation.
		return
	}
	for {
		head := q.freeHead.Load()
		n.next = head
		if q.freeHead.CompareAndSwap(head, n) {
			q.freeLen.Add(1)
			return
		}
	}
}

// Push schedules handle, making it the next candidate a worker will take.
func (q *RunQueue) Push(handle uint64) {
	n := q.allocNode(handle)
	for {
		head := q.head.Load()
		n.next = head
		if q.head.CompareAndSwap(head, n) {
			return
		}
	}
}

// Pop takes the most recently scheduled handle, if any.
func (q *RunQueue) Pop() (uint64, bool) {
	for {
		head := q.head.Load()
		if head == nil {
			return 0, false
		}
		if q.head.CompareAndSwap(head, head.next) {
			handle := head.handle
			q.releaseNode(head)
			return handle, true
		}
	}
}
