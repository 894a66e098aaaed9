package cache

import (
	"context"
	"fmt"

	"github.com/facebookarchive/commoner/internal/memo"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/store"
)

// SQLiteCache persists artifacts as rows in a shared SQLite database.
//
// The store's insert-or-ignore followed by a read of the stored row gives
// the same first-writer-wins behaviour as the disk cache's exclusive link.
type SQLiteCache struct {
	st   *store.Store
	opts options
	memo memo.Group[string, []byte]
}

var (
	_ Cache   = (*SQLiteCache)(nil)
	_ Statter = (*SQLiteCache)(nil)
)

// NewSQLiteCache wraps an open store. The caller owns the store.
func NewSQLiteCache(st *store.Store, opts ...Option) *SQLiteCache {
	return &SQLiteCache{st: st, opts: applyOptions(opts)}
}

// GetOrBuild implements Cache.
func (c *SQLiteCache) GetOrBuild(ctx context.Context, key string, build BuildFunc) ([]byte, error) {
	return c.memo.Do(key, func() ([]byte, error) {
		data, ok, err := c.st.ReadArtifact(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		if ok {
			c.opts.metrics.CacheLookup(BackendSQLite, metrics.ResultHit)
			return data, nil
		}

		c.opts.metrics.CacheLookup(BackendSQLite, metrics.ResultMiss)
		data, err = build(ctx)
		if err != nil {
			return nil, err
		}

		stored, won, err := c.st.PutArtifact(ctx, key, data, c.opts.writer)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		if !won {
			c.opts.metrics.CacheLookup(BackendSQLite, metrics.ResultRace)
			c.opts.logger.Debug("cache write race lost; using stored value", "key", key)
		}
		return stored, nil
	})
}

// Publish implements Cache by writing the stored bytes to dest.
func (c *SQLiteCache) Publish(ctx context.Context, key, dest string) error {
	data, ok := c.memo.Peek(key)
	if !ok {
		var err error
		data, ok, err = c.st.ReadArtifact(ctx, key)
		if err != nil {
			return fmt.Errorf("sqlite cache: publish %s: %w", key, err)
		}
		if !ok {
			return module.NewColdCacheError(key)
		}
	}
	return publishBytes(data, dest)
}

// Stats implements Statter.
func (c *SQLiteCache) Stats(ctx context.Context) (Stats, error) {
	count, size, err := c.st.ArtifactStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("sqlite cache: %w", err)
	}
	return Stats{Backend: BackendSQLite, Entries: count, Bytes: size}, nil
}
