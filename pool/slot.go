// File: pool/slot.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync/atomic"

// Header carries per-packet routing metadata filled in by the protocol layer.
// The pool zeroes it on allocation and copies it on Clone.
type Header struct {
	Pri   uint8
	Flags uint8
	Src   uint16
	Dst   uint16
	Dport uint8
	Sport uint8
}

// slot is one buffer in the pool. state packs generation (high 32 bits) and
// reference count (low 32 bits) so both move in a single CAS. The generation
// wraps after 2^32 reuses of one slot; a handle held that long reads as live.
type slot struct {
	state  atomic.Uint64
	length int
	hdr    Header
	data   []byte
}

const maxRefs = ^uint32(0)

func packState(gen, refs uint32) uint64 {
	return uint64(gen)<<32 | uint64(refs)
}

func unpackState(s uint64) (gen, refs uint32) {
	return uint32(s >> 32), uint32(s)
}
