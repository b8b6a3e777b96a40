// Package soak drives a pool from simulated task and interrupt contexts and
// checks the ownership invariants while doing so.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package soak

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"

	"github.com/momentics/pktbuf/api"
	"github.com/momentics/pktbuf/pool"
)

// Params controls one soak run.
type Params struct {
	Iterations  int   // steps per worker
	TaskWorkers int   // goroutines using Get/Clone/RefInc/Free
	ISRWorkers  int   // goroutines using GetISR/FreeISR only
	Hold        int   // shares a worker keeps before releasing its oldest
	Seed        int64 // base seed, worker i uses Seed+i
}

// DefaultParams is a short run with one worker per context.
func DefaultParams() Params {
	return Params{Iterations: 10000, TaskWorkers: 1, ISRWorkers: 1, Hold: 2, Seed: 1}
}

func (p Params) validate() error {
	switch {
	case p.Iterations <= 0:
		return errors.Errorf("iterations must be positive, got %d", p.Iterations)
	case p.TaskWorkers < 0 || p.ISRWorkers < 0:
		return errors.New("worker counts must not be negative")
	case p.TaskWorkers+p.ISRWorkers == 0:
		return errors.New("at least one worker is required")
	case p.Hold <= 0:
		return errors.Errorf("hold must be positive, got %d", p.Hold)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Gets         uint64        `json:"gets"`
	GetsISR      uint64        `json:"gets_isr"`
	Frees        uint64        `json:"frees"`
	FreesISR     uint64        `json:"frees_isr"`
	Clones       uint64        `json:"clones"`
	RefIncs      uint64        `json:"ref_incs"`
	Exhausted    uint64        `json:"exhausted"`
	Errors       uint64        `json:"errors"`
	Violations   uint64        `json:"violations"`
	MinRemaining int           `json:"min_remaining"`
	MaxRemaining int           `json:"max_remaining"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Stats        api.PoolStats `json:"stats"`
}

// OK reports whether the run saw no invariant violation and no error.
func (r Report) OK() bool {
	return r.Violations == 0 && r.Errors == 0
}

type counters struct {
	gets, getsISR, frees, freesISR atomic.Uint64
	clones, refIncs, exhausted     atomic.Uint64
	errors, violations             atomic.Uint64
}

type run struct {
	p      *pool.Pool
	prm    Params
	owners []atomic.Int32
	c      counters

	mu     sync.Mutex
	minRem int
	maxRem int
}

// Run exercises p until every worker finished its iterations or ctx is done.
// The pool must be idle (all buffers free) when Run starts.
func Run(ctx context.Context, p *pool.Pool, prm Params) (Report, error) {
	if err := prm.validate(); err != nil {
		return Report{}, errors.Wrap(err, "invalid soak parameters")
	}
	if p.Remaining() != p.Capacity() {
		return Report{}, errors.Errorf("pool not idle: %d of %d buffers free", p.Remaining(), p.Capacity())
	}

	log := api.GetLogger().ChildLogger(map[string]interface{}{"component": "soak"})
	log.Infof("soak start: %d task + %d isr workers, %d iterations, hold %d",
		prm.TaskWorkers, prm.ISRWorkers, prm.Iterations, prm.Hold)

	r := &run{
		p:      p,
		prm:    prm,
		owners: make([]atomic.Int32, p.Capacity()),
		minRem: p.Capacity(),
		maxRem: 0,
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < prm.TaskWorkers+prm.ISRWorkers; i++ {
		wg.Add(1)
		go func(id int, isr bool) {
			defer wg.Done()
			r.worker(ctx, rand.New(rand.NewSource(prm.Seed+int64(id))), isr)
		}(i, i >= prm.TaskWorkers)
	}
	wg.Wait()

	if rem := p.Remaining(); rem != p.Capacity() {
		log.Errorf("pool leaked buffers: %d of %d free after drain", rem, p.Capacity())
		r.c.violations.Add(1)
	}

	rep := r.report(time.Since(start))
	log.Infof("soak done in %v: violations %d, errors %d, exhausted %d",
		rep.Elapsed, rep.Violations, rep.Errors, rep.Exhausted)
	return rep, ctx.Err()
}

func (r *run) worker(ctx context.Context, rnd *rand.Rand, isr bool) {
	held := queue.New()
	lo, hi := r.p.Capacity(), 0
	defer func() {
		for held.Length() > 0 {
			r.release(held, isr)
		}
		r.mu.Lock()
		if lo < r.minRem {
			r.minRem = lo
		}
		if hi > r.maxRem {
			r.maxRem = hi
		}
		r.mu.Unlock()
	}()

	for i := 0; i < r.prm.Iterations; i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return
		}

		switch op := rnd.Intn(10); {
		case op < 5:
			r.get(held, isr, byte(i))
		case op == 5 && !isr && held.Length() > 0:
			r.clone(held)
		case op == 6 && !isr && held.Length() > 0:
			r.refInc(held)
		default:
			if held.Length() > 0 {
				r.release(held, isr)
			}
		}
		for held.Length() > r.prm.Hold {
			r.release(held, isr)
		}

		rem := r.p.Remaining()
		if rem < 0 || rem > r.p.Capacity() {
			r.c.violations.Add(1)
		}
		if rem < lo {
			lo = rem
		}
		if rem > hi {
			hi = rem
		}
	}
}

func (r *run) get(held *queue.Queue, isr bool, fill byte) {
	var h pool.Handle
	if isr {
		h = r.p.GetISR(0)
		r.c.getsISR.Add(1)
	} else {
		h = r.p.Get(0)
		r.c.gets.Add(1)
	}
	if h.IsNil() {
		r.c.exhausted.Add(1)
		return
	}
	r.claim(h)
	h.Payload()[0] = fill
	if err := h.SetLen(1); err != nil {
		r.c.errors.Add(1)
	}
	held.Add(h)
}

func (r *run) clone(held *queue.Queue) {
	src := held.Peek().(pool.Handle)
	h, err := r.p.Clone(src)
	r.c.clones.Add(1)
	if err != nil {
		r.c.errors.Add(1)
		return
	}
	if h.IsNil() {
		r.c.exhausted.Add(1)
		return
	}
	r.claim(h)
	if h.Len() != src.Len() || h.Data()[0] != src.Data()[0] {
		r.c.violations.Add(1)
	}
	held.Add(h)
}

func (r *run) refInc(held *queue.Queue) {
	h := held.Peek().(pool.Handle)
	r.c.refIncs.Add(1)
	if err := r.p.RefInc(h); err != nil {
		r.c.errors.Add(1)
		return
	}
	held.Add(h)
}

// release drops the oldest share. Shares never leave their worker, so
// Refs()==1 identifies the final one.
func (r *run) release(held *queue.Queue, isr bool) {
	h := held.Remove().(pool.Handle)
	if h.Refs() == 1 {
		if r.owners[h.Index()].Add(-1) != 0 {
			r.c.violations.Add(1)
		}
	}

	var err error
	if isr {
		err = r.p.FreeISR(h)
		r.c.freesISR.Add(1)
	} else {
		err = r.p.Free(h)
		r.c.frees.Add(1)
	}
	if err != nil {
		r.c.errors.Add(1)
	}
}

// claim records a fresh allocation; a slot handed out twice while live is a violation.
func (r *run) claim(h pool.Handle) {
	if r.owners[h.Index()].Add(1) != 1 {
		r.c.violations.Add(1)
	}
}

func (r *run) report(elapsed time.Duration) Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{
		Gets:         r.c.gets.Load(),
		GetsISR:      r.c.getsISR.Load(),
		Frees:        r.c.frees.Load(),
		FreesISR:     r.c.freesISR.Load(),
		Clones:       r.c.clones.Load(),
		RefIncs:      r.c.refIncs.Load(),
		Exhausted:    r.c.exhausted.Load(),
		Errors:       r.c.errors.Load(),
		Violations:   r.c.violations.Load(),
		MinRemaining: r.minRem,
		MaxRemaining: r.maxRem,
		Elapsed:      elapsed,
		Stats:        r.p.Stats(),
	}
}
