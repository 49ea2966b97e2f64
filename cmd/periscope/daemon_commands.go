package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"periscope/internal/client"
	"periscope/internal/daemonctl"
	"periscope/internal/wire"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the periscope daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cfg, exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the periscope daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cfg, 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the periscope daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			stopResult, stopErr := daemonctl.StopAndTerminate(cfg, 5*time.Second)
			if stopErr != nil && !errors.Is(stopErr, daemonctl.ErrDaemonNotRunning) {
				return stopErr
			}
			if stopErr == nil {
				if stopResult.ForcedKill && stopResult.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", stopResult.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			if _, err := daemonctl.EnsureStarted(cfg, exe, daemonLaunchOptions(ctx), 10*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, segment, and telemetry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(ctx, cmd)
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func runStatus(ctx *commandContext, cmd *cobra.Command) error {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	cfg := ctx.configValue()

	err := ctx.withClient("status", func(cl *client.Client) error {
		snap, err := cl.Status()
		if err != nil {
			return err
		}
		printer := message.NewPrinter(language.English)

		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderStatusLine("Periscope", statusOK, "Running", colorize))
		fmt.Fprintln(stdout, renderStatusLine("Segment", statusOK, cfg.Segment.Name, colorize))
		droppedKind := statusOK
		if snap.DroppedFrames > 0 {
			droppedKind = statusWarn
		}
		fmt.Fprintln(stdout, renderStatusLine("Dropped frames", droppedKind, printer.Sprintf("%d", snap.DroppedFrames), colorize))
		if snap.ProducerID != "" {
			fmt.Fprintln(stdout, renderStatusLine("Producer", statusOK, snap.ProducerID, colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Producer", statusWarn, "No primary producer", colorize))
		}

		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Telemetry", colorize) {
			fmt.Fprintln(stdout, line)
		}
		if snap.RectValid {
			detail := fmt.Sprintf("%.0fx%.0f at (%.0f, %.0f), visible: %s",
				snap.Rect.W, snap.Rect.H, snap.Rect.X, snap.Rect.Y, yesNo(snap.Rect.Visible))
			fmt.Fprintln(stdout, renderStatusLine("Screen rect", statusOK, detail, colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Screen rect", statusInfo, "Not reported", colorize))
		}
		if snap.AnimValid {
			detail := fmt.Sprintf("track %d frame %d, playing: %s", snap.Anim.Track, snap.Anim.Frame, yesNo(snap.Anim.Playing))
			fmt.Fprintln(stdout, renderStatusLine("Animation", statusOK, detail, colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Animation", statusInfo, "Not reported", colorize))
		}
		if snap.AudioValid {
			detail := printer.Sprintf("playing: %s, muted: %s, position %d ms", yesNo(snap.Audio.Playing), yesNo(snap.Audio.Muted), snap.Audio.PositionMS)
			fmt.Fprintln(stdout, renderStatusLine("Audio", statusOK, detail, colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Audio", statusInfo, "Not reported", colorize))
		}

		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Peers", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderPeerTable(snap.Peers))
		return nil
	})
	if errors.Is(err, client.ErrRejected) {
		return err
	}
	if err != nil {
		fmt.Fprintln(stdout, renderStatusLine("Periscope", statusWarn, "Not running (run `periscope start`)", colorize))
		return nil
	}
	return nil
}

func renderPeerTable(peers []wire.PeerInfo) string {
	if len(peers) == 0 {
		return "No connected peers"
	}
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		lastSeen := "never"
		if p.LastSeen > 0 {
			lastSeen = time.Since(time.Unix(0, p.LastSeen)).Truncate(time.Millisecond).String() + " ago"
		}
		rows = append(rows, []string{p.ID, p.Name, p.Role.String(), p.State, yesNo(p.Primary), lastSeen})
	}
	return renderTable(
		[]string{"ID", "Name", "Role", "State", "Primary", "Last Seen"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.configFlag != nil {
		opts.ConfigPath = *ctx.configFlag
	}
	return opts
}
