// Package daemonrun wires the daemon runtime: configuration, logging, the
// session journal, the shared-memory segment, and the control listeners,
// plus signal handling for clean shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"periscope/internal/config"
	"periscope/internal/daemon"
	"periscope/internal/journal"
	"periscope/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the periscope daemon and blocks until a signal or a control
// stop command arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "periscoped.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := writePIDFile(cfg.PidPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PidPath())

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg)
		if err != nil {
			logger.Error("open session journal", logging.Error(err))
			return err
		}
		defer store.Close()
		pruneJournal(signalCtx, cfg, logger, store)
	}

	d := daemon.New(cfg, logger, store)
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, shutting down")
	case <-d.StopRequested():
		logger.Info("stop command received, shutting down")
	}
	return nil
}

// pruneJournal drops session events past the configured retention.
func pruneJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *journal.Store) {
	if cfg.Journal.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Journal.RetentionDays)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logger.Warn("prune session journal", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("pruned session journal", logging.Int64("removed", removed))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
