package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/ipc"
	"github.com/xdgtools/desktop-indexer/internal/launch"
)

func newLaunchCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "launch <desktop-id>",
		Short: "Launch an application by desktop-id",
		Long: `Launch an application by desktop-id, optionally selecting one of its
desktop actions. Successful launches feed the frequency and recency
ranking of later searches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), args[0], action)
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Desktop action id (from [Desktop Action <id>])")
	return cmd
}

func runLaunch(ctx context.Context, desktopID, action string) error {
	start := time.Now()
	roots := scanRoots()

	if !flagNoDaemon {
		client := ipc.NewClient()
		derr := client.Launch(roots, desktopID, action, flagRespectTryExec)
		if derr == nil {
			trace("mode=daemon (launch)")
			timing("daemon", start)
			return nil
		}
		if !ierr.IsKind(derr, ierr.KindIO) {
			return derr
		}
	}

	trace("mode=local (launch)")

	idx, err := localBuild(ctx, roots, flagRespectTryExec)
	if err != nil {
		if !flagNoDaemon {
			return daemonUnreachable(err)
		}
		return err
	}

	id := strings.TrimSuffix(desktopID, ".desktop")
	for _, e := range idx.Entries {
		if e.ID != id {
			continue
		}
		if action != "" {
			if _, ok := e.FindAction(action); !ok {
				return ierr.NotFound("unknown action %q for id=%s", action, id)
			}
		}
		if err := launch.New().Launch(e, action); err != nil {
			return err
		}
		if err := loadUsage().RecordLaunch(id, time.Now().UnixNano()); err != nil {
			trace("usage store save failed: %v", err)
		}
		timing("local", start)
		return nil
	}
	return ierr.NotFound("unknown desktop-id: %s", id)
}
