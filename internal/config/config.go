package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// LogDir holds daemon logs, the journal database, and the lock file.
	LogDir string `toml:"log_dir"`
	// RuntimeDir holds the control socket. Defaults under XDG_RUNTIME_DIR
	// when available.
	RuntimeDir string `toml:"runtime_dir"`
}

// Segment contains shared-memory transport configuration.
type Segment struct {
	// Name is the logical segment name shared by producer and readers.
	Name string `toml:"name"`
	// SlotCapacity is the fixed per-frame byte capacity. Frames larger
	// than this are dropped, never truncated.
	SlotCapacity int `toml:"slot_capacity"`
	// ReadRetries bounds the seqlock retry loop before a read reports a
	// stale frame.
	ReadRetries int `toml:"read_retries"`
}

// Channel contains control-channel configuration.
type Channel struct {
	// ConnectTimeoutMS bounds the Connecting state of a dial attempt.
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`
	// BridgeEnabled serves remote consumers over WebSocket.
	BridgeEnabled bool `toml:"bridge_enabled"`
	// BridgeBind is the WebSocket bridge listen address.
	BridgeBind string `toml:"bridge_bind"`
}

// Clock contains clock-synchronization tunables.
type Clock struct {
	WindowSize      int     `toml:"window_size"`
	SmoothingFactor float64 `toml:"smoothing_factor"`
	SnapBoundMS     int     `toml:"snap_bound_ms"`
	SyncIntervalS   int     `toml:"sync_interval_s"`
}

// Session contains peer-session timing configuration.
type Session struct {
	HeartbeatIntervalS int `toml:"heartbeat_interval_s"`
	HeartbeatTimeoutS  int `toml:"heartbeat_timeout_s"`
}

// Journal contains session-event journal configuration.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for periscope.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Segment Segment `toml:"segment"`
	Channel Channel `toml:"channel"`
	Clock   Clock   `toml:"clock"`
	Session Session `toml:"session"`
	Journal Journal `toml:"journal"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/periscope/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path, the third whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("periscope.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// SocketPath returns the control socket location for this configuration.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "periscope.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "periscoped.lock")
}

// PidPath returns the daemon pid file location.
func (c *Config) PidPath() string {
	return filepath.Join(c.Paths.LogDir, "periscoped.pid")
}

// JournalPath returns the session-event journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

// EnsureDirectories creates the directories daemon operation requires.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.RuntimeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded, commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to the given path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// ExpandPath expands a leading ~ and resolves the path to absolute form.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
