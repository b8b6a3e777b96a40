// Package control
// Author: momentics <momentics@gmail.com>
//
// Startup configuration, runtime metrics and debug introspection for packet
// pools.
//
// Provides concurrent-safe state handling primitives including:
//   - JSON pool configuration with defaults and validation
//   - A config store frozen once the pool geometry is fixed
//   - Metrics publication of pool accounting snapshots
//   - Debug probe registration and state export
package control
