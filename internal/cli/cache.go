package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/store"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Limit int // ledger rows to show
}

// CacheReport is the output of cache stats.
type CacheReport struct {
	Dir    string              `json:"dir"`
	Stats  cache.Stats         `json:"stats"`
	Builds []store.BuildRecord `json:"builds,omitempty"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the content cache",
	}

	stats := &cobra.Command{
		Use:   "stats <output-dir>",
		Short: "Show artifact count and size for an output directory's cache",
		Long: `Show how many artifacts the configured cache backend holds for an
output directory and their total size. With the sqlite backend the most
recent build ledger rows are listed as well.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd, opts, args[0])
		},
	}
	stats.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "ledger rows to show (sqlite backend)")

	cmd.AddCommand(stats)
	return cmd
}

func runCacheStats(cmd *cobra.Command, opts *CacheOptions, outDir string) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, opts.RootOptions, cmd.InOrStdin(), logger, f)
	if err != nil {
		return err
	}
	if cfg.Cache.Backend == cache.BackendMemory {
		return f.Usage("the memory cache does not outlive a build; select disk or sqlite")
	}

	dir := cfg.CacheDir(outDir)
	probe := dir
	if cfg.Cache.Backend == cache.BackendSQLite {
		probe = filepath.Join(dir, LedgerFile)
	}
	if _, err := os.Stat(probe); err != nil {
		return f.Usage(fmt.Sprintf("no %s cache at %s", cfg.Cache.Backend, probe))
	}

	be, err := openBackend(cfg, outDir, logger, nil)
	if err != nil {
		return f.Fail(ExitCommandError, "open cache", err)
	}
	defer be.Close()

	statter, ok := be.cache.(cache.Statter)
	if !ok {
		return f.Usage(fmt.Sprintf("the %s cache cannot report statistics", cfg.Cache.Backend))
	}
	stats, err := statter.Stats(ctx)
	if err != nil {
		return f.Fail(ExitFailure, "read cache stats", err)
	}

	report := CacheReport{Dir: dir, Stats: stats}
	if be.ledger != nil && opts.Limit > 0 {
		report.Builds, err = be.ledger.ListBuilds(ctx, opts.Limit)
		if err != nil {
			return f.Fail(ExitFailure, "read build ledger", err)
		}
	}

	if f.Format == "json" {
		return f.Success(report)
	}

	fmt.Fprintf(f.Writer, "%s cache at %s\n", stats.Backend, dir)
	fmt.Fprintf(f.Writer, "  entries: %d\n  bytes:   %d\n", stats.Entries, stats.Bytes)
	if len(report.Builds) == 0 {
		return nil
	}
	fmt.Fprintln(f.Writer)
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUILD\tMODE\tSTATUS\tSTARTED\tFINISHED")
	for _, b := range report.Builds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Mode, b.Status, b.StartedAt, b.FinishedAt)
	}
	return tw.Flush()
}
