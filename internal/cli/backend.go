package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/facebookarchive/commoner/internal/bundle"
	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/config"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/store"
)

// LedgerFile is the SQLite database inside the cache directory.
const LedgerFile = "commoner.db"

// backend is an opened content cache plus, for SQLite, the build ledger
// that shares its database.
type backend struct {
	cache  cache.Cache
	ledger *store.Store
}

func (b *backend) Close() error {
	if b.ledger == nil {
		return nil
	}
	return b.ledger.Close()
}

// openBackend opens the cache selected by cfg for outputDir.
func openBackend(cfg *config.Config, outputDir string, logger *slog.Logger, rec *metrics.Recorder) (*backend, error) {
	opts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(rec)}
	dir := cfg.CacheDir(outputDir)

	switch cfg.Cache.Backend {
	case cache.BackendMemory:
		return &backend{cache: cache.NewMemoryCache(opts...)}, nil
	case cache.BackendSQLite:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		st, err := store.Open(filepath.Join(dir, LedgerFile))
		if err != nil {
			return nil, err
		}
		return &backend{cache: cache.NewSQLiteCache(st, opts...), ledger: st}, nil
	default:
		c, err := cache.NewDiskCache(dir, bundle.FileExt, opts...)
		if err != nil {
			return nil, err
		}
		return &backend{cache: c}, nil
	}
}

// loadConfig loads the configuration named by the --config flag.
func loadConfig(ctx context.Context, opts *RootOptions, stdin io.Reader, logger *slog.Logger, f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.LoadOptions{
		Path:   opts.Config,
		Stdin:  stdin,
		Logger: logger,
	})
	if err != nil {
		return nil, f.report(ExitCommandError, ErrCodeInvalidConfig, "load config", err, nil)
	}
	return cfg, nil
}
