package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdgtools/desktop-indexer/internal/cache"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/ipc"
	"github.com/xdgtools/desktop-indexer/internal/launch"
	"github.com/xdgtools/desktop-indexer/internal/logging"
	"github.com/xdgtools/desktop-indexer/internal/output"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background indexing daemon",
		Long: `The daemon keeps parsed desktop-entry indexes warm in memory so
typeahead queries answer without rescanning the filesystem.

Commands:
  start    Start the daemon in the background
  stop     Ask the running daemon to shut down
  restart  Stop, then start
  status   Show whether the daemon is running`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonRestartCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonRunCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long: `Start the indexing daemon in the background and pre-build the index
for the XDG application directories.

Use --foreground for debugging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runDaemonStop(cmd); err != nil {
				return err
			}
			return runDaemonStart(cmd.Context(), cmd, false)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

// newDaemonRunCmd is the hidden foreground entry point the background start
// re-executes into.
func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonForeground(cmd.Context())
		},
	}
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	client := ipc.NewClient()

	if client.Probe() {
		out.Line("daemon already running")
		warmupDaemon(client)
		return nil
	}

	if foreground {
		return runDaemonForeground(ctx)
	}

	execPath, err := os.Executable()
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "resolve executable path", err)
	}

	args := []string{"daemon", "run"}
	if flagDebug {
		args = append(args, "--debug")
	}
	bg := exec.Command(execPath, args...)
	bg.Stdin = nil
	bg.Stdout = nil
	bg.Stderr = nil
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bg.Start(); err != nil {
		return ierr.Wrap(ierr.KindIO, "start daemon", err)
	}

	// Reap in the background and notice a premature exit.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for i := 0; i < 40; i++ {
		select {
		case err := <-done:
			if err != nil {
				return ierr.Wrap(ierr.KindIO, "daemon exited during startup", err)
			}
			return ierr.New(ierr.KindIO, "daemon exited during startup")
		default:
		}
		time.Sleep(50 * time.Millisecond)
		if client.Probe() {
			out.Linef("daemon started (pid: %d)", bg.Process.Pid)
			warmupDaemon(client)
			return nil
		}
	}
	return ierr.New(ierr.KindIO, "daemon failed to start within timeout")
}

// warmupDaemon pre-builds the index for the XDG-derived roots so the first
// interactive query doesn't pay the build. Skipped under --no-daemon.
func warmupDaemon(client *ipc.Client) {
	if flagNoDaemon {
		return
	}
	if err := client.Warmup(scanRoots(), flagRespectTryExec); err != nil {
		trace("daemon warmup failed: %v", err)
		return
	}
	trace("daemon warmup ok")
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	client := ipc.NewClient()

	if !client.Probe() {
		out.Line("daemon not running")
		return nil
	}

	if err := client.Shutdown(); err != nil {
		return err
	}

	// Wait for the socket to disappear.
	for i := 0; i < 40; i++ {
		if !client.Probe() {
			out.Line("daemon stopped")
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return ierr.New(ierr.KindIO, "daemon did not stop within timeout")
}

func runDaemonStatus(cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	client := ipc.NewClient()
	socket := xdg.SocketPath()

	type statusOut struct {
		Daemon        bool   `json:"daemon"`
		HasIndexCount *int   `json:"has_index_count,omitempty"`
		Socket        string `json:"socket"`
	}

	st := statusOut{Socket: socket}
	if resp, err := client.Status(); err == nil {
		st.Daemon = true
		st.HasIndexCount = resp.HasIndexCount
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	if st.Daemon {
		count := 0
		if st.HasIndexCount != nil {
			count = *st.HasIndexCount
		}
		out.Linef("daemon running (indexes=%d)", count)
	} else {
		out.Line("daemon not running")
	}
	out.Linef("socket=%s", socket)
	return nil
}

// runDaemonForeground runs the IPC server in this process until a signal or
// a shutdown request arrives.
func runDaemonForeground(ctx context.Context) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	if flagDebug {
		logCfg = logging.DebugConfig()
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	pidFile := ipc.NewPIDFile(xdg.PIDPath())
	if err := pidFile.Write(); err != nil {
		slog.Warn("PID file write failed", slog.String("error", err.Error()))
	}
	defer func() { _ = pidFile.Remove() }()

	registry := index.NewRegistry(cache.DefaultPath())
	usageStore := loadUsage()

	server, err := ipc.NewServer(xdg.SocketPath(), registry, usageStore, launch.New())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("daemon starting",
		slog.String("socket", xdg.SocketPath()),
		slog.Int("pid", os.Getpid()))

	if err := server.ListenAndServe(ctx); err != nil {
		if ierr.IsKind(err, ierr.KindAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "desktop-indexer: daemon already running")
		}
		return err
	}
	slog.Info("daemon stopped")
	return nil
}
