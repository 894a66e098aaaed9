package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/steps"
)

// FileExt is appended to every published bundle and module.
const FileExt = ".js"

// WriterConfig configures a Writer.
type WriterConfig struct {
	Steps      []steps.Step
	Cache      cache.Cache
	ConfigHash string
	OutputDir  string
	Debug      bool
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// Writer runs the bundle pipeline and publishes bundles to OutputDir.
type Writer struct {
	cfg  WriterConfig
	salt string
}

// NewWriter computes the writer salt from the config hash and bundle steps.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("bundle writer: cache is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	stepSalt, err := steps.Salt(digest.DomainSteps, cfg.Steps)
	if err != nil {
		return nil, fmt.Errorf("bundle writer: %w", err)
	}
	return &Writer{
		cfg:  cfg,
		salt: digest.Sum(digest.DomainWriter, cfg.ConfigHash, stepSalt),
	}, nil
}

// Salt identifies the configuration and bundle pipeline.
func (w *Writer) Salt() string { return w.salt }

// FileName is the published name of b: a hash of the bundle and the writer
// salt, so any change to members or pipeline yields a new name.
func (w *Writer) FileName(b *Bundle) string {
	return digest.Sum(digest.DomainBundleFile, b.Hash, w.salt) + FileExt
}

// Write builds b's artifact if needed and publishes it, returning the file
// name relative to OutputDir. Empty bundles are not written, and nothing is
// published when OutputDir is empty.
func (w *Writer) Write(ctx context.Context, b *Bundle) (string, error) {
	if b.Empty() {
		return "", nil
	}
	name := w.FileName(b)
	key := strings.TrimSuffix(name, FileExt)

	unit := steps.Unit{ID: b.Entry(), Root: b.Root(), Debug: w.cfg.Debug}
	_, err := w.cfg.Cache.GetOrBuild(ctx, key, func(ctx context.Context) ([]byte, error) {
		out, err := steps.Run(ctx, w.cfg.Steps, unit, b.Source())
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	})
	if err != nil {
		return "", fmt.Errorf("build bundle %s: %w", unit.ID, err)
	}

	if w.cfg.OutputDir == "" {
		w.cfg.Logger.Debug("built bundle without publishing", "id", unit.ID, "file", name)
		return name, nil
	}
	if err := w.cfg.Cache.Publish(ctx, key, filepath.Join(w.cfg.OutputDir, name)); err != nil {
		return "", fmt.Errorf("publish bundle %s: %w", unit.ID, err)
	}
	w.cfg.Metrics.BundleWritten()
	w.cfg.Logger.Debug("wrote bundle", "id", unit.ID, "file", name, "modules", len(b.Modules))
	return name, nil
}
