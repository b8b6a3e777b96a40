// File: internal/concurrency/spinlock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var _ sync.Locker = (*SpinLock)(nil)

// SpinLock is a test-and-test-and-set lock that never parks or yields.
// Critical sections under it must be O(1).
type SpinLock struct {
	_     cpu.CacheLinePad
	state atomic.Uint32
	_     cpu.CacheLinePad
}

// Lock spins until the lock is taken.
func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		for l.state.Load() != 0 {
		}
	}
}

// TryLock takes the lock if it is free.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking a free lock is a programming error.
func (l *SpinLock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("concurrency: unlock of unlocked SpinLock")
	}
}

// Locked reports whether the lock is currently held.
func (l *SpinLock) Locked() bool {
	return l.state.Load() != 0
}
