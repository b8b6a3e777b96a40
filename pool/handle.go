// File: pool/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"

	"github.com/momentics/pktbuf/api"
)

// Handle refers to one buffer of a Pool. It is a plain value: copying a
// Handle does not create an ownership share, RefInc does.
//
// Payload accessors are not synchronized; coordinate concurrent readers and
// writers of the same buffer yourself. Accessors on a null or released
// handle return zero values, and SetLen/SetData return api.ErrStaleHandle.
type Handle struct {
	p   *Pool
	idx uint32
	gen uint32
}

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool { return h.p == nil }

// Pool returns the owning pool, nil for the null handle.
func (h Handle) Pool() *Pool { return h.p }

// Index returns the slot index, or -1 for the null handle.
func (h Handle) Index() int {
	if h.p == nil {
		return -1
	}
	return int(h.idx)
}

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 { return h.gen }

// slot returns the buffer h refers to, nil unless h still holds a share of it.
// The check is a snapshot: releasing the last share concurrently with an
// accessor is a caller bug it cannot catch.
func (h Handle) slot() *slot {
	if h.p == nil {
		return nil
	}
	s := &h.p.slots[h.idx]
	if gen, refs := unpackState(s.state.Load()); gen != h.gen || refs == 0 {
		return nil
	}
	return s
}

// Refs returns the live reference count, 0 if h is null or stale.
func (h Handle) Refs() int {
	if h.p == nil {
		return 0
	}
	gen, refs := unpackState(h.p.slots[h.idx].state.Load())
	if gen != h.gen {
		return 0
	}
	return int(refs)
}

// Live reports whether h still holds a share of its buffer.
func (h Handle) Live() bool { return h.Refs() > 0 }

// Len returns the number of payload bytes in use.
func (h Handle) Len() int {
	if s := h.slot(); s != nil {
		return s.length
	}
	return 0
}

// SetLen sets the used length; it must not exceed the pool data size.
func (h Handle) SetLen(n int) error {
	s := h.slot()
	if s == nil {
		return api.ErrStaleHandle
	}
	if n < 0 || n > len(s.data) {
		return api.ErrLengthOverflow.WithContext("length", n).WithContext("data_size", len(s.data))
	}
	s.length = n
	return nil
}

// Data returns the used part of the payload.
func (h Handle) Data() []byte {
	if s := h.slot(); s != nil {
		return s.data[:s.length]
	}
	return nil
}

// Payload returns the whole fixed-capacity payload region.
func (h Handle) Payload() []byte {
	if s := h.slot(); s != nil {
		return s.data
	}
	return nil
}

// SetData copies b into the payload and sets the length to len(b).
func (h Handle) SetData(b []byte) error {
	s := h.slot()
	if s == nil {
		return api.ErrStaleHandle
	}
	if len(b) > len(s.data) {
		return api.ErrLengthOverflow.WithContext("length", len(b)).WithContext("data_size", len(s.data))
	}
	s.length = copy(s.data, b)
	return nil
}

// Header returns the packet metadata for in-place reads and writes.
func (h Handle) Header() *Header {
	if s := h.slot(); s != nil {
		return &s.hdr
	}
	return nil
}

func (h Handle) String() string {
	if h.p == nil {
		return "pktbuf(nil)"
	}
	return fmt.Sprintf("pktbuf(#%d gen %d)", h.idx, h.gen)
}
