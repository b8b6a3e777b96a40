// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives behind the packet pool: a spin lock standing in for
// "interrupts disabled", the task/ISR lock provider layered on it, and a
// bounded lock-free MPMC queue of slot indices.
//
// Nothing in this package parks the calling goroutine except the task guard's
// mutex; ISR-facing paths only spin on atomics.
package concurrency
