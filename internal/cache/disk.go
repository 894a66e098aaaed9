package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookarchive/commoner/internal/memo"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
)

// DiskCache persists artifacts as files named <key><suffix> in one directory.
//
// New entries are written to a temporary file, synced, and then hard-linked
// into place. Linking fails if the name already exists, which is how a
// losing writer in another process detects the collision; it then discards
// its bytes and reads the winner's file. The directory is shared across
// processes without a directory-level lock.
type DiskCache struct {
	dir    string
	suffix string
	opts   options
	memo   memo.Group[string, []byte]
}

var (
	_ Cache   = (*DiskCache)(nil)
	_ Statter = (*DiskCache)(nil)
)

// NewDiskCache creates dir if needed and returns a cache rooted there.
func NewDiskCache(dir, suffix string, opts ...Option) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	return &DiskCache{
		dir:    dir,
		suffix: suffix,
		opts:   applyOptions(opts),
	}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

// Path returns the backing file for key.
func (c *DiskCache) Path(key string) string {
	return filepath.Join(c.dir, key+c.suffix)
}

// GetOrBuild implements Cache.
func (c *DiskCache) GetOrBuild(ctx context.Context, key string, build BuildFunc) ([]byte, error) {
	return c.memo.Do(key, func() ([]byte, error) {
		path := c.Path(key)

		data, err := os.ReadFile(path)
		if err == nil {
			c.opts.metrics.CacheLookup(BackendDisk, metrics.ResultHit)
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("disk cache: read %s: %w", key, err)
		}

		c.opts.metrics.CacheLookup(BackendDisk, metrics.ResultMiss)
		data, err = build(ctx)
		if err != nil {
			return nil, err
		}
		return c.store(key, path, data)
	})
}

// store persists data under path and returns the authoritative bytes.
func (c *DiskCache) store(key, path string, data []byte) ([]byte, error) {
	tmp, err := writeTemp(c.dir, data)
	if err != nil {
		return nil, fmt.Errorf("disk cache: write %s: %w", key, err)
	}
	defer os.Remove(tmp)

	err = os.Link(tmp, path)
	switch {
	case err == nil:
		return data, nil

	case errors.Is(err, fs.ErrExist):
		winner, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("disk cache: read winner for %s: %w", key, rerr)
		}
		c.opts.metrics.CacheLookup(BackendDisk, metrics.ResultRace)
		c.opts.logger.Debug("cache write race lost; using stored value", "key", key)
		return winner, nil

	default:
		// No hard links here. Rename is still atomic and the value for a key
		// is a pure function of the key, so the last rename is harmless.
		if rerr := os.Rename(tmp, path); rerr != nil {
			return nil, fmt.Errorf("disk cache: store %s: %w", key, rerr)
		}
		return data, nil
	}
}

// Publish implements Cache by hard-linking the cache file to dest.
func (c *DiskCache) Publish(ctx context.Context, key, dest string) error {
	src := c.Path(key)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return module.NewColdCacheError(key)
		}
		return fmt.Errorf("disk cache: publish %s: %w", key, err)
	}
	return publishFile(src, dest)
}

// Stats implements Statter by scanning the cache directory.
func (c *DiskCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: BackendDisk}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return st, fmt.Errorf("disk cache: stats: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), c.suffix) || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += info.Size()
	}
	return st, nil
}
