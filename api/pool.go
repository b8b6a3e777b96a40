// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Accounting snapshot exported by fixed-capacity packet pools.

package api

// PoolStats aggregates buffer allocation/reuse stats.
type PoolStats struct {
	Capacity  int
	DataSize  int
	Remaining int
	InUse     int
	HighWater int
	Allocs    uint64
	Frees     uint64
	Clones    uint64
	Exhausted uint64
	Misuse    uint64
}

// StatsSource is anything able to report a PoolStats snapshot.
type StatsSource interface {
	Stats() PoolStats
}
