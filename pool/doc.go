// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity, reference-counted packet buffer pool for protocol stacks
// that allocate from both task and interrupt context.
//
// Storage is established once by New: a slot array plus one contiguous
// payload region, nothing is allocated afterwards. Handles are small values
// (slot index and generation); the zero Handle is the null buffer.
//
// Get/Free and friends never block waiting for a buffer. Exhaustion is
// reported as a null Handle and is expected; callers apply backpressure.
// Misuse of a handle (double free, use after reclaim) is detected and
// reported as an *api.Error without touching pool state.
//
// See pool.go for the allocator, registry.go for free-slot tracking.
package pool
