// File: pool/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"github.com/pkg/errors"

	"github.com/momentics/pktbuf/api"
	"github.com/momentics/pktbuf/internal/concurrency"
)

// Config fixes the pool geometry for its whole lifetime.
type Config struct {
	// Count is the number of buffers.
	Count int
	// DataSize is the payload capacity of every buffer in bytes.
	DataSize int
}

// MaxCount is the largest supported Count. It is a sizing limit, well
// below the uint32 slot index and the int32 free counters.
const MaxCount = 1 << 24

// maxTotalBytes bounds Count*DataSize.
const maxTotalBytes = 1 << 40

func (c Config) validate() error {
	switch {
	case c.Count <= 0:
		return errors.Wrapf(api.ErrInvalidConfig, "count must be positive, got %d", c.Count)
	case c.Count > MaxCount:
		return errors.Wrapf(api.ErrInvalidConfig, "count %d exceeds %d", c.Count, MaxCount)
	case c.DataSize <= 0:
		return errors.Wrapf(api.ErrInvalidConfig, "data size must be positive, got %d", c.DataSize)
	case int64(c.DataSize) > maxTotalBytes/int64(c.Count):
		return errors.Wrapf(api.ErrInvalidConfig, "%d buffers of %d bytes is too large", c.Count, c.DataSize)
	}
	return nil
}

type options struct {
	locks    api.LockProvider
	log      api.Logger
	lockFree bool
	strict   bool
}

// An Option configures a Pool at construction time.
type Option func(*options) error

// WithLockProvider replaces the default task/ISR guards.
func WithLockProvider(lp api.LockProvider) Option {
	return func(o *options) error {
		if lp == nil {
			return errors.New("nil lock provider")
		}
		o.locks = lp
		return nil
	}
}

// WithLogger sets the logger used on task-context paths.
func WithLogger(l api.Logger) Option {
	return func(o *options) error {
		if l == nil {
			return errors.New("nil logger")
		}
		o.log = l
		return nil
	}
}

// WithLockFreeRegistry tracks free slots in a lock-free queue instead of a
// guarded stack. Reuse order becomes FIFO.
func WithLockFreeRegistry() Option {
	return func(o *options) error {
		o.lockFree = true
		return nil
	}
}

// WithStrictMode panics on handle misuse instead of returning an error.
func WithStrictMode() Option {
	return func(o *options) error {
		o.strict = true
		return nil
	}
}

func buildOptions(opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, err
		}
	}
	if o.locks == nil {
		o.locks = concurrency.NewLockProvider()
	}
	if o.log == nil {
		o.log = api.GetLogger().ChildLogger(map[string]interface{}{"component": "pktbuf"})
	}
	return o, nil
}
