// Package api
// Author: momentics <momentics@gmail.com>
//
// Critical-section contract for task and interrupt execution contexts.

package api

import "sync"

// ExecContext names the execution context an operation is invoked from.
type ExecContext uint8

const (
	// TaskContext is ordinary goroutine execution; the guard may park briefly.
	TaskContext ExecContext = iota
	// ISRContext is interrupt-handler execution; nothing on its path may park or yield.
	ISRContext
)

func (c ExecContext) String() string {
	switch c {
	case TaskContext:
		return "task"
	case ISRContext:
		return "isr"
	default:
		return "unknown"
	}
}

// LockProvider hands out the guard for each execution context.
//
// The two guards must exclude each other: holding Task() keeps ISR() callers
// out and vice versa. ISR().Lock must complete in bounded time without parking.
type LockProvider interface {
	Task() sync.Locker
	ISR() sync.Locker
}

// Guard returns the guard matching ec.
func Guard(lp LockProvider, ec ExecContext) sync.Locker {
	if ec == ISRContext {
		return lp.ISR()
	}
	return lp.Task()
}
