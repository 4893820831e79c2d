package cmd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/ipc"
	"github.com/xdgtools/desktop-indexer/internal/output"
	"github.com/xdgtools/desktop-indexer/internal/search"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all desktop entries",
		Long:  `List all visible desktop entries sorted by name.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	start := time.Now()
	roots := scanRoots()

	var entries []ipc.Entry
	served := "local"
	if !flagNoDaemon {
		client := ipc.NewClient()
		got, derr := client.List(roots, flagRespectTryExec)
		if derr == nil {
			entries = got
			served = "daemon"
		} else if !ierr.IsKind(derr, ierr.KindIO) {
			return derr
		}
	}

	if served == "local" {
		idx, lerr := localBuild(ctx, roots, flagRespectTryExec)
		if lerr != nil {
			if !flagNoDaemon {
				return daemonUnreachable(lerr)
			}
			return lerr
		}
		entries = ipc.WireEntries(search.List(idx))
	}

	trace("mode=%s (list)", served)
	timing(served, start)

	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
	}

	out := output.New(cmd.OutOrStdout())
	for _, e := range entries {
		out.Entry(e.ID, e.Name)
	}
	return nil
}
