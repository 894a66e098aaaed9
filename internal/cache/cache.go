// Package cache stores build artifacts by content hash and publishes them to
// output locations.
//
// Every implementation gives each key at most one build per process (the
// first caller builds, everyone else waits for the same result) and resolves
// cross-process races by letting the first persisted value win.
package cache

import (
	"context"
	"log/slog"

	"github.com/facebookarchive/commoner/internal/metrics"
)

// Backend names accepted by configuration.
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// BuildFunc computes the artifact for a key on a cache miss.
type BuildFunc func(ctx context.Context) ([]byte, error)

// Cache is a key → artifact store with at-most-one-writer-per-key semantics.
type Cache interface {
	// GetOrBuild returns the artifact for key, invoking build at most once
	// per process when the key is not yet stored. A build error is returned
	// to every caller waiting on key.
	GetOrBuild(ctx context.Context, key string, build BuildFunc) ([]byte, error)

	// Publish materializes the artifact for key at dest. Readers of dest
	// never observe a partially written file. Publishing a key that has not
	// been built fails with a COLD_CACHE error.
	Publish(ctx context.Context, key, dest string) error
}

// Stats summarizes a cache's contents.
type Stats struct {
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Statter is implemented by caches that can report their contents.
type Statter interface {
	Stats(ctx context.Context) (Stats, error)
}

// Option configures a cache.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	writer  string
}

// WithLogger sets the logger used for race and publish diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records lookups on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithWriter tags persisted entries with a writer identity (a build ID).
// Only the SQLite backend records it.
func WithWriter(id string) Option {
	return func(o *options) { o.writer = id }
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
