package engine

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/source"
)

// SourceOptions configures DirChains.
type SourceOptions struct {
	// Files reads sources. Nil reads the directory directly; watch mode
	// passes its change-tracking cache here.
	Files source.FileReader

	Extension   string
	Directive   string
	GracePeriod time.Duration
	Patterns    []string
	Ignore      []string

	// Fallbacks are consulted after the directory and its aliases decline.
	Fallbacks []source.Provider

	Metrics *metrics.Recorder
}

// DirChains returns a ChainFactory over a source directory. Every call
// rescans the directory for id directives, so files added or renamed
// between builds are seen.
func DirChains(dir string, opts SourceOptions) ChainFactory {
	fsys := os.DirFS(dir)
	files := opts.Files
	if files == nil {
		files = source.FSReader{FS: fsys}
	}
	return func(ctx context.Context, logger *slog.Logger) (*source.Chain, error) {
		aliases, err := source.ScanDirectives(ctx, fsys, source.ScanOptions{
			Directive:    opts.Directive,
			Patterns:     opts.Patterns,
			Ignore:       opts.Ignore,
			PreferredExt: opts.Extension,
		})
		if err != nil {
			return nil, err
		}

		var chainOpts []source.ChainOption
		if opts.Directive != "" {
			chainOpts = append(chainOpts, source.WithDirective(opts.Directive))
		}
		if opts.GracePeriod > 0 {
			chainOpts = append(chainOpts, source.WithGracePeriod(opts.GracePeriod))
		}
		chainOpts = append(chainOpts, source.WithMetrics(opts.Metrics))

		c := source.NewChain(logger, chainOpts...)
		// Later registrations are consulted first.
		c.Register(opts.Fallbacks...)
		c.Register(source.NewDirProvider(files, opts.Extension), source.NewAliasProvider(files, aliases))
		logger.Debug("source chain ready", "dir", dir, "aliases", len(aliases), "fallbacks", len(opts.Fallbacks))
		return c, nil
	}
}
