// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Published pool accounting. Each pool is sampled by name; readers get typed
// samples or a flat "name.key" view for reports.

package control

import (
	"sort"
	"sync"
	"time"

	"github.com/momentics/pktbuf/api"
)

// StatKey names one pool counter.
type StatKey string

const (
	StatCapacity  StatKey = "capacity"
	StatDataSize  StatKey = "data_size"
	StatRemaining StatKey = "remaining"
	StatInUse     StatKey = "in_use"
	StatHighWater StatKey = "high_water"
	StatAllocs    StatKey = "allocs"
	StatFrees     StatKey = "frees"
	StatClones    StatKey = "clones"
	StatExhausted StatKey = "exhausted"
	StatMisuse    StatKey = "misuse"
)

// StatKeys lists every key in report order.
var StatKeys = []StatKey{
	StatCapacity, StatDataSize, StatRemaining, StatInUse, StatHighWater,
	StatAllocs, StatFrees, StatClones, StatExhausted, StatMisuse,
}

// Of extracts the counter named by k from st; ok is false for unknown keys.
func (k StatKey) Of(st api.PoolStats) (v uint64, ok bool) {
	switch k {
	case StatCapacity:
		return uint64(st.Capacity), true
	case StatDataSize:
		return uint64(st.DataSize), true
	case StatRemaining:
		return uint64(st.Remaining), true
	case StatInUse:
		return uint64(st.InUse), true
	case StatHighWater:
		return uint64(st.HighWater), true
	case StatAllocs:
		return st.Allocs, true
	case StatFrees:
		return st.Frees, true
	case StatClones:
		return st.Clones, true
	case StatExhausted:
		return st.Exhausted, true
	case StatMisuse:
		return st.Misuse, true
	}
	return 0, false
}

// StatValues is a keyed view of one stats snapshot.
type StatValues map[StatKey]uint64

// ValuesOf converts st into a keyed view.
func ValuesOf(st api.PoolStats) StatValues {
	out := make(StatValues, len(StatKeys))
	for _, k := range StatKeys {
		out[k], _ = k.Of(st)
	}
	return out
}

// Sample is one published snapshot.
type Sample struct {
	Stats api.PoolStats
	At    time.Time
}

// MetricsRegistry keeps the latest sample of each published pool.
type MetricsRegistry struct {
	mu      sync.RWMutex
	samples map[string]Sample
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		samples: make(map[string]Sample),
	}
}

// Publish samples src and stores it under name, replacing the previous sample.
func (mr *MetricsRegistry) Publish(name string, src api.StatsSource) Sample {
	s := Sample{Stats: src.Stats(), At: time.Now()}
	mr.mu.Lock()
	mr.samples[name] = s
	mr.updated = s.At
	mr.mu.Unlock()
	return s
}

// Sample returns the latest sample published under name.
func (mr *MetricsRegistry) Sample(name string) (Sample, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	s, ok := mr.samples[name]
	return s, ok
}

// Value returns one counter of the pool published under name.
func (mr *MetricsRegistry) Value(name string, k StatKey) (uint64, bool) {
	s, ok := mr.Sample(name)
	if !ok {
		return 0, false
	}
	return k.Of(s.Stats)
}

// Names returns the published pool names, sorted.
func (mr *MetricsRegistry) Names() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make([]string, 0, len(mr.samples))
	for name := range mr.samples {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetSnapshot flattens every sample into "name.key" counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]uint64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]uint64, len(mr.samples)*len(StatKeys))
	for name, s := range mr.samples {
		for k, v := range ValuesOf(s.Stats) {
			out[name+"."+string(k)] = v
		}
	}
	return out
}

// Updated returns the time of the last Publish.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
