// File: pool/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Free-slot tracking. Which free index comes back from acquire is not part
// of the contract.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/pktbuf/internal/concurrency"
)

// registry tracks unallocated slot indices. The guard passed in is the
// context-appropriate critical section; implementations that are lock-free
// may ignore it.
type registry interface {
	acquire(g sync.Locker) (uint32, bool)
	release(g sync.Locker, idx uint32)
	len() int
	kind() string
}

// stackRegistry is a fixed LIFO of free indices, manipulated only inside the guard.
type stackRegistry struct {
	free []uint32
	top  int
	n    atomic.Int32
}

func newStackRegistry(count int) *stackRegistry {
	r := &stackRegistry{free: make([]uint32, count), top: count}
	// lowest index on top
	for i := range r.free {
		r.free[i] = uint32(count - 1 - i)
	}
	r.n.Store(int32(count))
	return r
}

func (r *stackRegistry) acquire(g sync.Locker) (uint32, bool) {
	g.Lock()
	if r.top == 0 {
		g.Unlock()
		return 0, false
	}
	r.top--
	idx := r.free[r.top]
	r.n.Store(int32(r.top))
	g.Unlock()
	return idx, true
}

func (r *stackRegistry) release(g sync.Locker, idx uint32) {
	g.Lock()
	if r.top == len(r.free) {
		g.Unlock()
		panic("pool: free registry overflow")
	}
	r.free[r.top] = idx
	r.top++
	r.n.Store(int32(r.top))
	g.Unlock()
}

func (r *stackRegistry) len() int { return int(r.n.Load()) }

func (r *stackRegistry) kind() string { return "stack" }

// queueRegistry keeps free indices in a lock-free bounded queue (FIFO reuse).
// The queue has twice as many cells as slots so a release rarely meets a
// cell still held by an unfinished acquire.
type queueRegistry struct {
	q *concurrency.IndexQueue
	n atomic.Int32
}

func newQueueRegistry(count int) *queueRegistry {
	r := &queueRegistry{q: concurrency.NewIndexQueue(2 * count)}
	for i := 0; i < count; i++ {
		r.q.Push(uint32(i))
	}
	r.n.Store(int32(count))
	return r
}

func (r *queueRegistry) acquire(_ sync.Locker) (uint32, bool) {
	idx, ok := r.q.Pop()
	if ok {
		r.n.Add(-1)
	}
	return idx, ok
}

func (r *queueRegistry) release(_ sync.Locker, idx uint32) {
	// count first so a concurrent acquire never drives n below zero
	r.n.Add(1)
	// at most count indices exist, so a full queue only means an
	// acquire is still finishing with its cell
	r.q.PushWait(idx)
}

func (r *queueRegistry) len() int { return int(r.n.Load()) }

func (r *queueRegistry) kind() string { return "queue" }
