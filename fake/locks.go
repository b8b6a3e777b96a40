// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/pktbuf/api"
)

var _ api.LockProvider = (*LockProvider)(nil)

// CountingLock is a mutex that counts acquisitions.
type CountingLock struct {
	mu    *sync.Mutex
	locks atomic.Int64
}

func (c *CountingLock) Lock() {
	c.mu.Lock()
	c.locks.Add(1)
}

func (c *CountingLock) Unlock() { c.mu.Unlock() }

// Count returns how many times the lock was taken.
func (c *CountingLock) Count() int64 { return c.locks.Load() }

// LockProvider is a test provider whose task and ISR guards share one mutex
// and count their use separately.
type LockProvider struct {
	mu      sync.Mutex
	TaskLck CountingLock
	ISRLck  CountingLock
}

// NewLockProvider returns a ready counting provider.
func NewLockProvider() *LockProvider {
	p := &LockProvider{}
	p.TaskLck.mu = &p.mu
	p.ISRLck.mu = &p.mu
	return p
}

func (p *LockProvider) Task() sync.Locker { return &p.TaskLck }
func (p *LockProvider) ISR() sync.Locker  { return &p.ISRLck }
