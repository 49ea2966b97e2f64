// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"periscope/internal/config"
)

var segmentCounter atomic.Uint64

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories and a
// unique shared-memory segment name per test, so parallel tests never share
// a segment.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.RuntimeDir = filepath.Join(base, "run")
	cfg.Segment.Name = fmt.Sprintf("periscope_test_%d", segmentCounter.Add(1))
	cfg.Segment.SlotCapacity = 4096
	cfg.Journal.Enabled = true

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithSlotCapacity overrides the shared-memory slot capacity.
func WithSlotCapacity(capacity int) ConfigOption {
	return func(c *config.Config) {
		c.Segment.SlotCapacity = capacity
	}
}

// WithHeartbeat overrides session heartbeat timing, in seconds.
func WithHeartbeat(interval, timeout int) ConfigOption {
	return func(c *config.Config) {
		c.Session.HeartbeatIntervalS = interval
		c.Session.HeartbeatTimeoutS = timeout
	}
}
