package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSegment()
	c.normalizeChannel()
	c.normalizeClock()
	c.normalizeSession()
	c.normalizeJournal()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if c.Paths.RuntimeDir, err = ExpandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	return nil
}

func defaultRuntimeDir() string {
	if dir, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, "periscope")
	}
	return "~/.local/share/periscope/run"
}

func (c *Config) normalizeSegment() {
	c.Segment.Name = strings.TrimSpace(c.Segment.Name)
	if c.Segment.Name == "" {
		c.Segment.Name = defaultSegmentName
	}
	if c.Segment.SlotCapacity <= 0 {
		c.Segment.SlotCapacity = defaultSlotCapacity
	}
	if c.Segment.ReadRetries <= 0 {
		c.Segment.ReadRetries = defaultReadRetries
	}
}

func (c *Config) normalizeChannel() {
	if c.Channel.ConnectTimeoutMS <= 0 {
		c.Channel.ConnectTimeoutMS = defaultConnectTimeoutMS
	}
	c.Channel.BridgeBind = strings.TrimSpace(c.Channel.BridgeBind)
	if c.Channel.BridgeBind == "" {
		c.Channel.BridgeBind = defaultBridgeBind
	}
}

func (c *Config) normalizeClock() {
	if c.Clock.WindowSize < 2 {
		c.Clock.WindowSize = defaultClockWindowSize
	}
	if c.Clock.SmoothingFactor <= 0 || c.Clock.SmoothingFactor > 1 {
		c.Clock.SmoothingFactor = defaultClockSmoothingFactor
	}
	if c.Clock.SnapBoundMS <= 0 {
		c.Clock.SnapBoundMS = defaultClockSnapBoundMS
	}
	if c.Clock.SyncIntervalS <= 0 {
		c.Clock.SyncIntervalS = defaultClockSyncIntervalS
	}
}

func (c *Config) normalizeSession() {
	if c.Session.HeartbeatIntervalS <= 0 {
		c.Session.HeartbeatIntervalS = defaultHeartbeatIntervalS
	}
	if c.Session.HeartbeatTimeoutS <= 0 {
		c.Session.HeartbeatTimeoutS = defaultHeartbeatTimeoutS
	}
}

func (c *Config) normalizeJournal() {
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = defaultJournalRetentionDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
