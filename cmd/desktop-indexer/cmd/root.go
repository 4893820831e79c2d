// Package cmd provides the CLI commands for desktop-indexer.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdgtools/desktop-indexer/internal/cache"
	"github.com/xdgtools/desktop-indexer/internal/config"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/logging"
	"github.com/xdgtools/desktop-indexer/internal/profiling"
	"github.com/xdgtools/desktop-indexer/internal/usage"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
	"github.com/xdgtools/desktop-indexer/pkg/version"
)

// Global flags.
var (
	flagPaths          []string
	flagTrace          bool
	flagNoDaemon       bool
	flagRespectTryExec bool
	flagDebug          bool
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

var (
	cfg            config.Config
	loggingCleanup func()
)

// codedError pins a specific exit code onto an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// daemonUnreachable marks the exit-3 case: the daemon path was attempted and
// the local fallback failed too.
func daemonUnreachable(err error) error {
	return &codedError{code: ierr.ExitDaemonUnreachable, err: err}
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desktop-indexer",
		Short: "Index, search and launch desktop applications",
		Long: `desktop-indexer keeps a ranked, personalized index of the .desktop
entries under the XDG application directories.

A background daemon holds the index warm so typeahead queries answer in
sub-millisecond time; without the daemon every command falls back to a
one-shot in-process build.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("desktop-indexer version {{.Version}}\n")

	cmd.PersistentFlags().StringArrayVarP(&flagPaths, "path", "p", nil, "Extra scan roots (repeatable)")
	cmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "Print whether the daemon or local fallback served the command (stderr)")
	cmd.PersistentFlags().BoolVar(&flagNoDaemon, "no-daemon", false, "Force local execution (do not use the daemon)")
	cmd.PersistentFlags().BoolVar(&flagRespectTryExec, "respect-try-exec", false, "Exclude entries whose TryExec does not resolve on PATH")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(config.DefaultPath())
		if err != nil {
			return err
		}
		cfg = loaded
		if !cmd.PersistentFlags().Changed("respect-try-exec") {
			flagRespectTryExec = cfg.RespectTryExec
		}

		if flagDebug {
			logger, cleanup, err := logging.Setup(logging.DebugConfig())
			if err != nil {
				return ierr.Wrap(ierr.KindIO, "setup debug logging", err)
			}
			loggingCleanup = cleanup
			slog.SetDefault(logger)
		}

		if profileCPU != "" {
			cleanup, err := profiler.StartCPU(profileCPU)
			if err != nil {
				return ierr.Wrap(ierr.KindIO, "start CPU profile", err)
			}
			cpuCleanup = cleanup
		}
		if profileTrace != "" {
			cleanup, err := profiler.StartTrace(profileTrace)
			if err != nil {
				if cpuCleanup != nil {
					cpuCleanup()
				}
				return ierr.Wrap(ierr.KindIO, "start trace", err)
			}
			traceCleanup = cleanup
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if cpuCleanup != nil {
			cpuCleanup()
			cpuCleanup = nil
		}
		if traceCleanup != nil {
			traceCleanup()
			traceCleanup = nil
		}
		if profileMem != "" {
			if err := profiler.WriteHeap(profileMem); err != nil {
				return ierr.Wrap(ierr.KindIO, "write memory profile", err)
			}
		}
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
		return nil
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &codedError{code: ierr.ExitInvalidArgs, err: err}
	})

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newLaunchCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return ierr.ExitOK
	}
	fmt.Fprintf(os.Stderr, "desktop-indexer: %v\n", err)

	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ierr.ExitCode(err)
}

// scanRoots assembles the ordered root list: XDG dirs, then config paths,
// then -p flags.
func scanRoots() []string {
	extra := append(append([]string{}, cfg.Paths...), flagPaths...)
	return xdg.Roots(extra)
}

// trace prints the served mode when --trace is set.
func trace(format string, args ...any) {
	if flagTrace {
		fmt.Fprintf(os.Stderr, "desktop-indexer: "+format+"\n", args...)
	}
}

// timing prints the total command duration when DESKTOP_INDEXER_TIMING is
// 1, true or yes. Per-phase timings come from the index builder.
func timing(mode string, start time.Time) {
	switch os.Getenv("DESKTOP_INDEXER_TIMING") {
	case "1", "true", "yes":
		fmt.Fprintf(os.Stderr, "desktop-indexer timing: mode=%s total=%v\n", mode, time.Since(start))
	}
}

// localBuild performs a one-shot in-process index build.
func localBuild(ctx context.Context, roots []string, respectTryExec bool) (*index.Index, error) {
	return index.Build(ctx, index.NewKey(roots, respectTryExec), cache.DefaultPath())
}

// loadUsage loads the usage store from its default path.
func loadUsage() *usage.Store {
	return usage.Load(usage.DefaultPath())
}
