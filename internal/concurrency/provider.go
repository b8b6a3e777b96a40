// File: internal/concurrency/provider.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Default task/ISR lock provider.

package concurrency

import (
	"sync"

	"github.com/momentics/pktbuf/api"
)

var _ api.LockProvider = (*LockProvider)(nil)

// taskLock serializes task-context callers on a mutex, then enters the
// shared critical section. At most one task spins against ISR callers.
type taskLock struct {
	mu  sync.Mutex
	irq *SpinLock
}

func (t *taskLock) Lock() {
	t.mu.Lock()
	t.irq.Lock()
}

func (t *taskLock) Unlock() {
	t.irq.Unlock()
	t.mu.Unlock()
}

// LockProvider pairs a parking task guard with a spin-only ISR guard over
// one shared critical section.
type LockProvider struct {
	irq  SpinLock
	task taskLock
}

// NewLockProvider creates a provider whose guards exclude each other.
func NewLockProvider() *LockProvider {
	p := &LockProvider{}
	p.task.irq = &p.irq
	return p
}

// Task returns the task-context guard.
func (p *LockProvider) Task() sync.Locker { return &p.task }

// ISR returns the interrupt-context guard.
func (p *LockProvider) ISR() sync.Locker { return &p.irq }
