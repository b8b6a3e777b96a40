// File: pool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size slab of packet buffers with dual-context allocation,
// reference counting and cloning.

package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/pktbuf/api"
)

// Allocator is the surface the protocol stack depends on.
type Allocator interface {
	Get(size int) Handle
	GetISR(size int) Handle
	Free(h Handle) error
	FreeISR(h Handle) error
	Clone(h Handle) (Handle, error)
	RefInc(h Handle) error
	Remaining() int
	DataSize() int
}

var (
	_ Allocator       = (*Pool)(nil)
	_ api.StatsSource = (*Pool)(nil)
)

// Pool is a fixed set of equally sized, reference-counted buffers.
type Pool struct {
	cfg    Config
	slots  []slot
	data   []byte
	free   registry
	locks  api.LockProvider
	log    api.Logger
	strict bool

	allocs    atomic.Uint64
	frees     atomic.Uint64
	clones    atomic.Uint64
	exhausted atomic.Uint64
	misuse    atomic.Uint64
	inUse     atomic.Int64
	highWater atomic.Int64
}

// New establishes slot storage and the free registry. It is the only place
// the pool allocates memory.
func New(cfg Config, opts ...Option) (p *Pool, err error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = errors.Wrapf(api.ErrInvalidConfig, "can't allocate %d buffers of %d bytes: %v", cfg.Count, cfg.DataSize, r)
		}
	}()

	p = &Pool{
		cfg:    cfg,
		data:   make([]byte, cfg.Count*cfg.DataSize),
		slots:  make([]slot, cfg.Count),
		locks:  o.locks,
		log:    o.log,
		strict: o.strict,
	}
	for i := range p.slots {
		off := i * cfg.DataSize
		p.slots[i].data = p.data[off : off+cfg.DataSize : off+cfg.DataSize]
	}
	if o.lockFree {
		p.free = newQueueRegistry(cfg.Count)
	} else {
		p.free = newStackRegistry(cfg.Count)
	}

	p.log.Infof("pool ready: %d buffers x %d bytes, %s registry", cfg.Count, cfg.DataSize, p.free.kind())
	return p, nil
}

// Get returns a free buffer from task context, or a null Handle if the pool
// is exhausted. The size argument is obsolete: every buffer is DataSize bytes.
func (p *Pool) Get(_ int) Handle {
	return p.Acquire(api.TaskContext)
}

// GetISR is Get for interrupt context. It never parks, yields or logs.
func (p *Pool) GetISR(_ int) Handle {
	return p.Acquire(api.ISRContext)
}

// Acquire takes a free slot under the guard of ec. The returned buffer has
// one reference, zero length and a zeroed header.
func (p *Pool) Acquire(ec api.ExecContext) Handle {
	idx, ok := p.free.acquire(api.Guard(p.locks, ec))
	if !ok {
		p.exhausted.Add(1)
		if ec == api.TaskContext {
			p.log.Debugf("pool exhausted, %d buffers in use", p.cfg.Count)
		}
		return Handle{}
	}

	s := &p.slots[idx]
	gen, refs := unpackState(s.state.Load())
	if refs != 0 {
		panic(fmt.Sprintf("pool: free registry returned live slot %d (refs %d)", idx, refs))
	}
	s.length = 0
	s.hdr = Header{}
	s.state.Store(packState(gen, 1))

	p.allocs.Add(1)
	p.trackInUse(1)
	return Handle{p: p, idx: idx, gen: gen}
}

// Free drops one reference from task context. A null Handle is a no-op.
func (p *Pool) Free(h Handle) error {
	return p.Release(api.TaskContext, h)
}

// FreeISR drops one reference from interrupt context. A null Handle is a no-op.
func (p *Pool) FreeISR(h Handle) error {
	return p.Release(api.ISRContext, h)
}

// Release drops one reference under the guard of ec. The last reference
// returns the slot to the free registry; its generation is bumped in the
// same step so outstanding copies of h become stale.
func (p *Pool) Release(ec api.ExecContext, h Handle) error {
	if h.p == nil {
		return nil
	}
	if h.p != p {
		return p.misused(ec, api.ErrForeignHandle, h)
	}

	s := &p.slots[h.idx]
	for {
		old := s.state.Load()
		gen, refs := unpackState(old)
		if err := checkState(gen, refs, h); err != nil {
			return p.misused(ec, err, h)
		}

		if refs > 1 {
			if s.state.CompareAndSwap(old, packState(gen, refs-1)) {
				return nil
			}
			continue
		}

		if s.state.CompareAndSwap(old, packState(gen+1, 0)) {
			p.free.release(api.Guard(p.locks, ec), h.idx)
			p.frees.Add(1)
			p.trackInUse(-1)
			return nil
		}
	}
}

// RefInc adds an ownership share to a live buffer. Each share is released
// by its own Free call.
func (p *Pool) RefInc(h Handle) error {
	if h.p == nil {
		return nil
	}
	if h.p != p {
		return p.misused(api.TaskContext, api.ErrForeignHandle, h)
	}

	s := &p.slots[h.idx]
	for {
		old := s.state.Load()
		gen, refs := unpackState(old)
		if err := checkState(gen, refs, h); err != nil {
			return p.misused(api.TaskContext, err, h)
		}
		if refs == maxRefs {
			return p.misused(api.TaskContext, api.ErrRefOverflow, h)
		}
		if s.state.CompareAndSwap(old, packState(gen, refs+1)) {
			return nil
		}
	}
}

// Clone allocates a new buffer from task context and copies the header and
// the used part of the payload of h into it. The clone has its own single
// reference. On exhaustion it returns a null Handle and leaves h untouched.
func (p *Pool) Clone(h Handle) (Handle, error) {
	if h.p == nil {
		return Handle{}, nil
	}
	if h.p != p {
		return Handle{}, p.misused(api.TaskContext, api.ErrForeignHandle, h)
	}
	src := &p.slots[h.idx]
	gen, refs := unpackState(src.state.Load())
	if err := checkState(gen, refs, h); err != nil {
		return Handle{}, p.misused(api.TaskContext, err, h)
	}

	c := p.Acquire(api.TaskContext)
	if c.IsNil() {
		return Handle{}, nil
	}
	dst := &p.slots[c.idx]
	dst.hdr = src.hdr
	dst.length = copy(dst.data, src.data[:src.length])

	p.clones.Add(1)
	return c, nil
}

// Remaining returns the number of free buffers at the time of the call.
func (p *Pool) Remaining() int {
	return p.free.len()
}

// DataSize returns the fixed payload capacity of every buffer.
func (p *Pool) DataSize() int {
	return p.cfg.DataSize
}

// Capacity returns the total number of buffers.
func (p *Pool) Capacity() int {
	return p.cfg.Count
}

// Stats returns an accounting snapshot. Fields are read independently and
// may be mutually inconsistent under concurrent use.
func (p *Pool) Stats() api.PoolStats {
	return api.PoolStats{
		Capacity:  p.cfg.Count,
		DataSize:  p.cfg.DataSize,
		Remaining: p.free.len(),
		InUse:     int(p.inUse.Load()),
		HighWater: int(p.highWater.Load()),
		Allocs:    p.allocs.Load(),
		Frees:     p.frees.Load(),
		Clones:    p.clones.Load(),
		Exhausted: p.exhausted.Load(),
		Misuse:    p.misuse.Load(),
	}
}

func (p *Pool) trackInUse(delta int64) {
	n := p.inUse.Add(delta)
	for {
		hw := p.highWater.Load()
		if n <= hw || p.highWater.CompareAndSwap(hw, n) {
			return
		}
	}
}

// checkState validates that h still owns a share of the slot state.
func checkState(gen, refs uint32, h Handle) *api.Error {
	if gen == h.gen && refs > 0 {
		return nil
	}
	if refs == 0 {
		return api.ErrDoubleFree
	}
	return api.ErrStaleHandle
}

// misused accounts a rejected call. Interrupt context gets the bare
// sentinel: no logging, no allocation.
func (p *Pool) misused(ec api.ExecContext, base *api.Error, h Handle) error {
	p.misuse.Add(1)
	if ec == api.ISRContext {
		if p.strict {
			panic(base)
		}
		return base
	}

	err := base.WithContext("index", h.idx).WithContext("generation", h.gen)
	p.log.Errorf("rejected %v", err)
	if p.strict {
		panic(err)
	}
	return err
}
