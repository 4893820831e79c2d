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

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		emptyMode  string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search desktop entries",
		Long: `Search desktop entries with ranked typeahead matching.

An empty query lists applications by recency or launch frequency instead of
text relevance. The daemon serves the query when running; otherwise a
one-shot local index build answers it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			return runSearch(cmd.Context(), cmd, query, limit, emptyMode, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Max results to return (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.Flags().StringVar(&emptyMode, "empty-mode", "", "Ordering for empty queries: recency or frequency")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, emptyMode string, jsonOutput bool) error {
	start := time.Now()

	if limit <= 0 {
		limit = cfg.Search.Limit
	}
	if emptyMode == "" {
		emptyMode = cfg.Search.EmptyMode
	}
	mode, err := search.ParseEmptyMode(emptyMode)
	if err != nil {
		return &codedError{code: ierr.ExitInvalidArgs, err: err}
	}

	roots := scanRoots()

	var entries []ipc.Entry
	served := "local"
	if !flagNoDaemon {
		client := ipc.NewClient()
		got, derr := client.Search(roots, query, limit, string(mode), flagRespectTryExec)
		if derr == nil {
			entries = got
			served = "daemon"
		} else if !ierr.IsKind(derr, ierr.KindIO) {
			// The daemon answered with a real error; surface it.
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
		scored := search.Search(idx, query, loadUsage().Snapshot(), search.Options{
			Limit:     limit,
			EmptyMode: mode,
			Now:       time.Now(),
		})
		entries = ipc.WireScoredEntries(scored)
	}

	trace("mode=%s (search)", served)
	timing(served, start)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(entries)
	}

	out := output.New(cmd.OutOrStdout())
	for _, e := range entries {
		out.Entry(e.ID, e.Name)
	}
	return nil
}
