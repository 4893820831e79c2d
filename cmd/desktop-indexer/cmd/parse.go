package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	"github.com/xdgtools/desktop-indexer/internal/output"
)

func newParseCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a single .desktop file",
		Long:  `Parse one .desktop file and print the extracted fields.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func runParse(cmd *cobra.Command, path string, jsonOutput bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	entry, err := desktop.ParseFile(idUsingRoots(abs, scanRoots()), abs, desktop.SystemLocales())
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entry)
	}

	out := output.New(cmd.OutOrStdout())
	out.Entry(entry.ID, entry.Name)
	if entry.GenericName != "" {
		out.Linef("generic_name\t%s", entry.GenericName)
	}
	if entry.Comment != "" {
		out.Linef("comment\t%s", entry.Comment)
	}
	if entry.Exec != "" {
		out.Linef("exec\t%s", entry.Exec)
	}
	if len(entry.Categories) > 0 {
		out.Linef("categories\t%s", strings.Join(entry.Categories, ";"))
	}
	if len(entry.Keywords) > 0 {
		out.Linef("keywords\t%s", strings.Join(entry.Keywords, ";"))
	}
	for _, a := range entry.Actions {
		out.Linef("action\t%s\t%s", a.ID, a.Name)
	}
	return nil
}

// idUsingRoots derives the desktop-id from the first root containing the
// path, falling back to the file stem.
func idUsingRoots(path string, roots []string) string {
	for _, root := range roots {
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			return desktop.DesktopID(root, path)
		}
	}
	return strings.TrimSuffix(filepath.Base(path), ".desktop")
}
