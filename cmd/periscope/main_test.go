package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periscope/internal/config"
	"periscope/internal/daemon"
	"periscope/internal/logging"
	"periscope/internal/testsupport"
)

// writeTestConfig materializes a config file pointing at temp directories so
// CLI runs never touch the user's real daemon.
func writeTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	encoded := fmt.Sprintf(`[paths]
log_dir = %q
runtime_dir = %q

[segment]
name = %q
slot_capacity = %d
`, cfg.Paths.LogDir, cfg.Paths.RuntimeDir, cfg.Segment.Name, cfg.Segment.SlotCapacity)

	path := filepath.Join(t.TempDir(), "periscope.toml")
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return cfg, path
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startTestDaemon(t *testing.T, cfg *config.Config) {
	t.Helper()
	d := daemon.New(cfg, logging.NewNop(), nil)
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "permission denied") {
			t.Skipf("cannot create shared memory in this environment: %v", err)
		}
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q does not contain %q", haystack, needle)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	_, configPath := writeTestConfig(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, err = runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[segment]")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("second init without --overwrite succeeded")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("init with --overwrite: %v", err)
	}
}

func TestPeersAgainstRunningDaemon(t *testing.T) {
	cfg, configPath := writeTestConfig(t)
	startTestDaemon(t, cfg)

	out, err := runCLI(t, []string{"peers"}, configPath)
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	// The CLI's own session is listed.
	requireContains(t, out, "peers")
	requireContains(t, out, "consumer")
}

func TestStatusAgainstRunningDaemon(t *testing.T) {
	cfg, configPath := writeTestConfig(t)
	startTestDaemon(t, cfg)

	out, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "No primary producer")
}

func TestStatusWithoutDaemon(t *testing.T) {
	_, configPath := writeTestConfig(t)

	out, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestFrameWithoutSegment(t *testing.T) {
	_, configPath := writeTestConfig(t)

	if _, err := runCLI(t, []string{"frame"}, configPath); err == nil {
		t.Fatal("frame without a segment succeeded")
	}
}
