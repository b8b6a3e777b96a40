// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide pool with a single-initialization contract.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/pktbuf/api"
)

var (
	defaultMu   sync.Mutex
	defaultPool atomic.Pointer[Pool]
)

// Init builds the process-wide pool. It must be called exactly once before
// any component uses Default; later calls return api.ErrAlreadyInitialized.
func Init(cfg Config, opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool.Load() != nil {
		return api.ErrAlreadyInitialized
	}
	p, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defaultPool.Store(p)
	return nil
}

// Default returns the process-wide pool, nil before Init.
func Default() *Pool {
	return defaultPool.Load()
}
