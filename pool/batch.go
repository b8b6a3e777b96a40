// Package pool
// Batched release of handles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Batch is NOT thread-safe; it is meant for one owner collecting handles
// (e.g. a transmit queue) and releasing them together.

package pool

import "github.com/momentics/pktbuf/api"

// Batch is a fixed-capacity collection of handles.
type Batch struct {
	handles []Handle
}

// NewBatch creates a batch holding up to capacity handles. It never grows.
func NewBatch(capacity int) *Batch {
	return &Batch{
		handles: make([]Handle, 0, capacity),
	}
}

// Append adds h; returns false if the batch is full. Null handles are skipped.
func (b *Batch) Append(h Handle) bool {
	if h.IsNil() {
		return true
	}
	if len(b.handles) == cap(b.handles) {
		return false
	}
	b.handles = append(b.handles, h)
	return true
}

// Len returns number of handles in the batch.
func (b *Batch) Len() int {
	return len(b.handles)
}

// Get retrieves handle at index.
func (b *Batch) Get(idx int) Handle {
	return b.handles[idx]
}

// Reset clears the batch retaining underlying storage. Handles are not released.
func (b *Batch) Reset() {
	clear(b.handles)
	b.handles = b.handles[:0]
}

// Release frees every handle with context ec and empties the batch.
// It returns how many releases succeeded and the first error seen.
func (b *Batch) Release(ec api.ExecContext) (int, error) {
	var first error
	released := 0
	for _, h := range b.handles {
		if err := h.p.Release(ec, h); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		released++
	}
	b.Reset()
	return released, first
}
