package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/config"
	"github.com/facebookarchive/commoner/internal/engine"
	"github.com/facebookarchive/commoner/internal/lockfile"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/schema"
	"github.com/facebookarchive/commoner/internal/source"
	"github.com/facebookarchive/commoner/internal/watch"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Schema string // schema file; mutually exclusive with module ids
	Watch  bool   // rebuild on source changes
	Stdin  bool   // build one module read from stdin
	Debug  bool   // overrides config debug
	Cache  string // overrides config cache.backend
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <source-dir> <output-dir> [module-id...]",
		Short: "Build modules or bundles into an output directory",
		Long: `Build modules from a source directory.

With module ids, each id and its dependencies are published as
<output-dir>/<id>.js and the published ids are printed. With --schema, the
schema file (CUE, JSON or YAML) describes a bundle tree and the result tree
is printed. A schema that is a list of ids behaves like ids on the command
line.

With "-" as the only argument (or --stdin), a single module is read from
standard input, built in memory and written to standard output. An optional
argument names the source directory used to canonicalize its requires.

Exit codes:
  0 - Build succeeded
  1 - Build failed
  2 - Command error (bad arguments or config, output directory in use)

Examples:
  commoner build ./src ./out main
  commoner build ./src ./out --schema bundles.cue
  commoner build ./src ./out --schema bundles.cue --watch
  commoner build - < widget.js`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "bundle schema file (.cue, .json, .yaml)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "rebuild when sources change")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "build one module read from stdin")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "skip minification (overrides config)")
	cmd.Flags().StringVar(&opts.Cache, "cache", "", "cache backend: disk, sqlite or memory (overrides config)")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdinBuild := opts.Stdin || (len(args) > 0 && args[0] == config.StdinPath)
	if stdinBuild && len(args) > 0 && args[0] == config.StdinPath {
		args = args[1:]
	}

	if stdinBuild {
		switch {
		case opts.Config == config.StdinPath:
			return f.Usage("cannot read both the config and the module from stdin")
		case opts.Watch:
			return f.Usage("--watch cannot be combined with a stdin build")
		case opts.Schema != "":
			return f.Usage("--schema cannot be combined with a stdin build")
		case len(args) > 1:
			return f.Usage("a stdin build takes at most one source directory")
		}
	} else if len(args) < 2 {
		return f.Usage("build requires <source-dir> and <output-dir>")
	}

	cfg, err := loadConfig(ctx, opts.RootOptions, cmd.InOrStdin(), logger, f)
	if err != nil {
		return err
	}
	if opts.Debug {
		cfg.Debug = true
	}
	if opts.Cache != "" {
		cfg.Cache.Backend = opts.Cache
	}
	if err := cfg.Validate(); err != nil {
		return f.report(ExitCommandError, ErrCodeInvalidConfig, "invalid config", err, nil)
	}

	if stdinBuild {
		srcDir := "."
		if len(args) == 1 {
			srcDir = args[0]
		}
		return runStdinBuild(ctx, cmd, f, cfg, srcDir, logger)
	}

	srcDir, outDir := args[0], args[1]
	sch, err := buildSchema(opts.Schema, args[2:])
	if err != nil {
		var usage *ExitError
		if errors.As(err, &usage) {
			return f.Usage(usage.Message)
		}
		return f.Fail(ExitCommandError, "load schema", err)
	}
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return f.Usage(fmt.Sprintf("source directory not found: %s", srcDir))
	}

	lock, err := lockfile.Acquire(outDir, logger)
	if err != nil {
		return f.Fail(ExitCommandError, "lock output directory", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release output lock", "path", lock.Path(), "error", err)
		}
	}()

	var rec *metrics.Recorder
	if cfg.Metrics.Addr != "" {
		rec = metrics.NewRecorder()
		go func() {
			if err := rec.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	be, err := openBackend(cfg, outDir, logger, rec)
	if err != nil {
		return f.Fail(ExitCommandError, "open cache", err)
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Warn("close cache", "error", err)
		}
	}()

	var files *watch.Files
	if opts.Watch {
		files = watch.NewFiles(srcDir)
	}
	eng, err := newEngine(cfg, srcDir, outDir, be, files, logger, rec)
	if err != nil {
		return f.Fail(ExitCommandError, "configure build", err)
	}

	build := func(ctx context.Context) (*engine.Report, error) {
		if sch.IsGraph() {
			return eng.BuildGraph(ctx, sch.Roots)
		}
		return eng.BuildTree(ctx, sch.Tree)
	}

	report, err := build(ctx)
	if !opts.Watch {
		if err != nil {
			return f.Fail(ExitFailure, "build failed", err)
		}
		return printReport(f, report)
	}

	if err != nil {
		logger.Error("initial build failed", "error", err)
	} else if err := printReport(f, report); err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		Patterns: cfg.Source.Patterns,
		Ignore:   watchIgnores(cfg, srcDir, outDir),
		Debounce: cfg.Watch.Debounce,
		Files:    files,
		Logger:   logger,
		OnChange: func(ctx context.Context, changed []string) error {
			report, err := build(ctx)
			if err != nil {
				return err
			}
			return printReport(f, report)
		},
	})
	if err != nil {
		return f.Fail(ExitCommandError, "start watcher", err)
	}
	logger.Info("watching for changes", "dir", srcDir)
	if err := w.Run(ctx); err != nil {
		return f.Fail(ExitFailure, "watch", err)
	}
	return nil
}

// newEngine wires an engine over srcDir. files, when set, is the watch
// mode read cache shared between rebuilds.
func newEngine(cfg *config.Config, srcDir, outDir string, be *backend, files *watch.Files, logger *slog.Logger, rec *metrics.Recorder) (*engine.Engine, error) {
	hash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}
	fallbacks, err := shellProviders(cfg, srcDir)
	if err != nil {
		return nil, err
	}
	srcOpts := engine.SourceOptions{
		Extension:   cfg.Extension,
		Directive:   cfg.Source.Directive,
		GracePeriod: cfg.Source.GracePeriod,
		Patterns:    cfg.Source.Patterns,
		Ignore:      cfg.Source.Ignore,
		Fallbacks:   fallbacks,
		Metrics:     rec,
	}
	if files != nil {
		srcOpts.Files = files
	}
	return engine.New(engine.Config{
		Cache:      be.cache,
		NewChain:   engine.DirChains(srcDir, srcOpts),
		ConfigHash: hash,
		Debug:      cfg.Debug,
		OutputDir:  outDir,
		Ledger:     be.ledger,
		Logger:     logger,
		Metrics:    rec,
	})
}

func shellProviders(cfg *config.Config, dir string) ([]source.Provider, error) {
	providers := make([]source.Provider, 0, len(cfg.Source.Shell))
	for _, sh := range cfg.Source.Shell {
		p, err := source.NewShellProvider(sh.Name, sh.Script, dir, sh.Timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// buildSchema returns the schema from file, or a graph schema over ids.
func buildSchema(file string, ids []string) (schema.Schema, error) {
	switch {
	case file != "" && len(ids) > 0:
		return schema.Schema{}, NewExitError(ExitCommandError, "pass module ids or --schema, not both")
	case file != "":
		return schema.Load(file)
	case len(ids) == 0:
		return schema.Schema{}, NewExitError(ExitCommandError, "nothing to build: pass module ids or --schema")
	}
	for i, id := range ids {
		norm, err := module.Normalize(id)
		if err != nil {
			return schema.Schema{}, err
		}
		ids[i] = norm
	}
	return schema.FromRoots(ids...), nil
}

// watchIgnores keeps the output directory out of the watch set when it
// lives inside the source directory.
func watchIgnores(cfg *config.Config, srcDir, outDir string) []string {
	ignores := append([]string{}, cfg.Source.Ignore...)
	ignores = append(ignores, cfg.Watch.Ignore...)
	src, err1 := filepath.Abs(srcDir)
	out, err2 := filepath.Abs(outDir)
	if err1 != nil || err2 != nil {
		return ignores
	}
	rel, err := filepath.Rel(src, out)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ignores
	}
	rel = filepath.ToSlash(rel)
	return append(ignores, rel, rel+"/**")
}

func printReport(f *OutputFormatter, r *engine.Report) error {
	if f.Format == "json" {
		return f.Success(r)
	}
	switch {
	case r.Graph != nil:
		for _, id := range r.Graph.IDs() {
			fmt.Fprintln(f.Writer, id)
		}
		return nil
	case r.Tree != nil:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(r.Tree)
	}
	return nil
}

// stdinResult is the JSON payload of a stdin build.
type stdinResult struct {
	BuildID string         `json:"build_id"`
	Module  *module.Module `json:"module"`
	Source  string         `json:"source"`
}

func runStdinBuild(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, cfg *config.Config, srcDir string, logger *slog.Logger) error {
	text, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitCommandError, "read stdin", err)
	}

	cfg.Cache.Backend = cache.BackendMemory
	be, err := openBackend(cfg, "", logger, nil)
	if err != nil {
		return f.Fail(ExitCommandError, "open cache", err)
	}
	eng, err := newEngine(cfg, srcDir, "", be, nil, logger, nil)
	if err != nil {
		return f.Fail(ExitCommandError, "configure build", err)
	}

	report, err := eng.BuildSource(ctx, string(text))
	if err != nil {
		return f.Fail(ExitFailure, "build failed", err)
	}
	if f.Format == "json" {
		return f.Success(stdinResult{BuildID: report.BuildID, Module: report.Module, Source: report.Module.Source})
	}
	_, err = io.WriteString(f.Writer, report.Module.Source)
	return err
}
