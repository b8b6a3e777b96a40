// File: control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named diagnostic probes. A probe that panics shows up as a ProbeFailure in
// the dump instead of taking the process down.

package control

import (
	"fmt"
	"sync"

	"github.com/momentics/pktbuf/api"
)

var _ api.Debug = (*DebugProbes)(nil)

// ProbeFailure replaces the output of a probe that panicked.
type ProbeFailure struct {
	Panic string `json:"panic"`
}

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces the probe called name.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState runs every probe and collects its output by name.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for name, fn := range dp.probes {
		out[name] = runProbe(fn)
	}
	return out
}

func runProbe(fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = ProbeFailure{Panic: fmt.Sprint(r)}
		}
	}()
	return fn()
}

// RegisterPoolProbe exposes the live counters of src under name.
func RegisterPoolProbe(dp api.Debug, name string, src api.StatsSource) {
	dp.RegisterProbe(name, func() any { return ValuesOf(src.Stats()) })
}
