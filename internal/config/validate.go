package config

import (
	"fmt"
	"net"

	"periscope/internal/shm"
)

// Validate checks cross-field constraints after normalization.
func (c *Config) Validate() error {
	if c.Segment.SlotCapacity > shm.MaxSlotCapacity {
		return fmt.Errorf("segment.slot_capacity %d exceeds maximum %d", c.Segment.SlotCapacity, shm.MaxSlotCapacity)
	}
	if c.Channel.BridgeEnabled {
		if _, _, err := net.SplitHostPort(c.Channel.BridgeBind); err != nil {
			return fmt.Errorf("channel.bridge_bind %q: %w", c.Channel.BridgeBind, err)
		}
	}
	if c.Session.HeartbeatTimeoutS <= c.Session.HeartbeatIntervalS {
		return fmt.Errorf("session.heartbeat_timeout_s (%d) must exceed heartbeat_interval_s (%d)",
			c.Session.HeartbeatTimeoutS, c.Session.HeartbeatIntervalS)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q: must be console or json", c.Logging.Format)
	}
	return nil
}
