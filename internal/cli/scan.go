package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/facebookarchive/commoner/internal/source"
)

// ScanEntry is one file that declares a module id.
type ScanEntry struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <source-dir>",
		Short: "List files that declare a module id",
		Long: `Scan a source directory for id directives (@providesModule by default)
and print each declaring file with the id it declares.

The directive name, file patterns and ignores come from the config file.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runScan(cmd *cobra.Command, opts *RootOptions, dir string) error {
	f := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())
	ctx := cmd.Context()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return f.Usage(fmt.Sprintf("source directory not found: %s", dir))
	}
	cfg, err := loadConfig(ctx, opts, cmd.InOrStdin(), logger, f)
	if err != nil {
		return err
	}

	found, err := source.ScanDirectives(ctx, os.DirFS(dir), source.ScanOptions{
		Directive:    cfg.Source.Directive,
		Patterns:     cfg.Source.Patterns,
		Ignore:       cfg.Source.Ignore,
		PreferredExt: cfg.Extension,
	})
	if err != nil {
		return f.Fail(ExitFailure, "scan failed", err)
	}
	f.VerboseLog("Found %d declaring file(s) in %s", len(found), dir)

	entries := make([]ScanEntry, 0, len(found))
	for _, p := range slices.Sorted(maps.Keys(found)) {
		entries = append(entries, ScanEntry{Path: p, ID: found[p]})
	}
	if f.Format == "json" {
		return f.Success(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%s\t%s\n", e.Path, e.ID)
	}
	return nil
}
