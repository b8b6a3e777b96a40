// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Pool configuration: JSON decoding, defaults, validation, and a store that
// becomes read-only once the pool is built.

package control

import (
	"io"
	"os"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/pktbuf/api"
	"github.com/momentics/pktbuf/pool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry kinds accepted in Config.Registry.
const (
	RegistryStack = "stack"
	RegistryQueue = "queue"
)

// ErrConfigFrozen is returned by ConfigStore.Update after Freeze.
var ErrConfigFrozen = errors.New("configuration is frozen")

// Config is the serialized startup configuration of a pool.
type Config struct {
	Count    int    `json:"count"`
	DataSize int    `json:"data_size"`
	Registry string `json:"registry"`
	Strict   bool   `json:"strict"`
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Count:    10,
		DataSize: 256,
		Registry: RegistryStack,
		LogLevel: "info",
	}
}

// LoadConfig decodes JSON from r on top of DefaultConfig and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "can't decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads and decodes a JSON config file.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "can't open config %s", path)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks fields that can be checked before building a pool.
func (c Config) Validate() error {
	if c.Count <= 0 {
		return errors.Wrapf(api.ErrInvalidConfig, "count must be positive, got %d", c.Count)
	}
	if c.DataSize <= 0 {
		return errors.Wrapf(api.ErrInvalidConfig, "data_size must be positive, got %d", c.DataSize)
	}
	switch strings.ToLower(c.Registry) {
	case RegistryStack, RegistryQueue:
	default:
		return errors.Wrapf(api.ErrInvalidConfig, "unknown registry %q", c.Registry)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(api.ErrInvalidConfig, "log_level: %v", err)
	}
	return nil
}

// Level returns the parsed log level, info if unparsable.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// PoolConfig returns the pool geometry.
func (c Config) PoolConfig() pool.Config {
	return pool.Config{Count: c.Count, DataSize: c.DataSize}
}

// PoolOptions translates behavioral settings into pool options.
func (c Config) PoolOptions() []pool.Option {
	var opts []pool.Option
	if strings.ToLower(c.Registry) == RegistryQueue {
		opts = append(opts, pool.WithLockFreeRegistry())
	}
	if c.Strict {
		opts = append(opts, pool.WithStrictMode())
	}
	return opts
}

// ConfigStore holds the active configuration. Updates are rejected once
// Freeze has been called, since a built pool is never resized.
type ConfigStore struct {
	mu     sync.RWMutex
	config Config
	frozen bool
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// Get returns a copy of the active configuration.
func (cs *ConfigStore) Get() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Update applies fn to a copy of the configuration and stores it if valid.
func (cs *ConfigStore) Update(fn func(*Config)) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.frozen {
		return ErrConfigFrozen
	}
	next := cs.config
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	cs.config = next
	return nil
}

// Freeze makes the store read-only.
func (cs *ConfigStore) Freeze() {
	cs.mu.Lock()
	cs.frozen = true
	cs.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (cs *ConfigStore) Frozen() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.frozen
}

// GetSnapshot returns the configuration as a generic map for diagnostics.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	c := cs.Get()
	return map[string]any{
		"count":     c.Count,
		"data_size": c.DataSize,
		"registry":  c.Registry,
		"strict":    c.Strict,
		"log_level": c.LogLevel,
		"frozen":    cs.Frozen(),
	}
}
