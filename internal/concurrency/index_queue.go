// File: internal/concurrency/index_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue of slot indices (Vyukov sequence-number scheme).
// Capacity is fixed at construction; Push and Pop never allocate or park.

package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type indexCell struct {
	sequence atomic.Uint64
	index    uint32
}

// IndexQueue is a lock-free bounded FIFO of uint32 values.
type IndexQueue struct {
	head  atomic.Uint64
	_     cpu.CacheLinePad
	tail  atomic.Uint64
	_     cpu.CacheLinePad
	mask  uint64
	cells []indexCell
}

// NewIndexQueue creates a queue holding at least capacity entries
// (rounded up to a power of two).
func NewIndexQueue(capacity int) *IndexQueue {
	size := 2
	for size < capacity {
		size <<= 1
	}

	q := &IndexQueue{
		mask:  uint64(size - 1),
		cells: make([]indexCell, size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Push appends idx; returns false if the queue is full. A pop that has
// advanced head but not yet released its cell keeps that cell full, so Push
// can fail transiently with fewer than Cap() entries queued.
func (q *IndexQueue) Push(idx uint32) bool {
	for {
		tail := q.tail.Load()
		c := &q.cells[tail&q.mask]
		dif := int64(c.sequence.Load()) - int64(tail)

		switch {
		case dif == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.index = idx
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false
		}
		// another producer claimed the cell, retry
	}
}

// PushWait appends idx, waiting out pops that have claimed a cell but not
// yet released it. Callers must never hold more than Cap() entries, or it
// spins forever. It never parks or yields.
func (q *IndexQueue) PushWait(idx uint32) {
	for !q.Push(idx) {
	}
}

// Pop removes the oldest entry; ok is false if the queue is empty.
func (q *IndexQueue) Pop() (idx uint32, ok bool) {
	for {
		head := q.head.Load()
		c := &q.cells[head&q.mask]
		dif := int64(c.sequence.Load()) - int64(head+1)

		switch {
		case dif == 0:
			if q.head.CompareAndSwap(head, head+1) {
				idx = c.index
				c.sequence.Store(head + q.mask + 1)
				return idx, true
			}
		case dif < 0:
			return 0, false
		}
		// another consumer claimed the cell, retry
	}
}

// Len returns an approximate entry count.
func (q *IndexQueue) Len() int {
	n := int64(q.tail.Load()) - int64(q.head.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the rounded capacity.
func (q *IndexQueue) Cap() int {
	return len(q.cells)
}
