package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periscope/internal/config"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", path)
	}
	if cfg.Segment.Name != "periscope_frames" {
		t.Fatalf("segment name = %q", cfg.Segment.Name)
	}
	if cfg.Segment.SlotCapacity != 1<<20 {
		t.Fatalf("slot capacity = %d", cfg.Segment.SlotCapacity)
	}
	if cfg.Segment.ReadRetries != 3 {
		t.Fatalf("read retries = %d", cfg.Segment.ReadRetries)
	}
	if cfg.Clock.SmoothingFactor != 0.1 {
		t.Fatalf("smoothing factor = %v", cfg.Clock.SmoothingFactor)
	}
	if !filepath.IsAbs(cfg.Paths.LogDir) {
		t.Fatalf("log dir not absolute: %q", cfg.Paths.LogDir)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
log_dir = "` + dir + `/logs"
runtime_dir = "` + dir + `/run"

[segment]
name = "overlay_frames"
slot_capacity = 4096
read_retries = 7

[clock]
smoothing_factor = 0.25

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Segment.Name != "overlay_frames" || cfg.Segment.SlotCapacity != 4096 || cfg.Segment.ReadRetries != 7 {
		t.Fatalf("segment = %+v", cfg.Segment)
	}
	if cfg.Clock.SmoothingFactor != 0.25 {
		t.Fatalf("smoothing = %v", cfg.Clock.SmoothingFactor)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.SocketPath() != filepath.Join(dir, "run", "periscope.sock") {
		t.Fatalf("socket path = %q", cfg.SocketPath())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		errPart string
	}{
		{
			name:    "heartbeat timeout below interval",
			mutate:  func(c *config.Config) { c.Session.HeartbeatIntervalS = 10; c.Session.HeartbeatTimeoutS = 5 },
			errPart: "heartbeat_timeout_s",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "yaml" },
			errPart: "logging.format",
		},
		{
			name: "bad bridge bind",
			mutate: func(c *config.Config) {
				c.Channel.BridgeEnabled = true
				c.Channel.BridgeBind = "no-port"
			},
			errPart: "bridge_bind",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.errPart) {
				t.Fatalf("expected error mentioning %q, got %v", tc.errPart, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	defaults := config.Default()
	if cfg.Segment.Name != defaults.Segment.Name || cfg.Clock.SmoothingFactor != defaults.Clock.SmoothingFactor {
		t.Fatalf("sample config diverges from defaults: %+v", cfg.Segment)
	}
}
